package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"wavelink-service/internal/client"
	"wavelink-service/internal/domain"
	"wavelink-service/internal/projection"
)

// NewPlayCmd runs an interactive terminal session against a running server.
func NewPlayCmd() *cobra.Command {
	var (
		server  string
		gameID  string
		userID  string
		name    string
		partner string
		vsAI    bool
	)
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play a game from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return errors.New("--user is required")
			}
			ctx := cmd.Context()
			if gameID == "" {
				if partner == "" && !vsAI {
					return errors.New("one of --game, --partner or --ai is required")
				}
				game, err := openGame(ctx, server, domain.Participant{ID: userID, DisplayName: name}, partner, vsAI)
				if err != nil {
					return err
				}
				gameID = game.ID
			}

			session, err := client.Dial(ctx, server, gameID, userID)
			if err != nil {
				return err
			}
			defer session.Close()
			return playLoop(ctx, session, os.Stdin, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "server base URL")
	cmd.Flags().StringVar(&gameID, "game", "", "game to join")
	cmd.Flags().StringVar(&userID, "user", "", "your participant id")
	cmd.Flags().StringVar(&name, "name", "", "your display name")
	cmd.Flags().StringVar(&partner, "partner", "", "open or resume the game with this participant")
	cmd.Flags().BoolVar(&vsAI, "ai", false, "play against the stand-in")
	return cmd
}

func openGame(ctx context.Context, server string, me domain.Participant, partner string, vsAI bool) (domain.Game, error) {
	type player struct {
		ID   string `json:"id,omitempty"`
		Name string `json:"name,omitempty"`
		AI   bool   `json:"ai,omitempty"`
	}
	other := player{ID: partner}
	if vsAI {
		other = player{AI: true}
	}
	body, err := json.Marshal(map[string][]player{"players": {{ID: me.ID, Name: me.DisplayName}, other}})
	if err != nil {
		return domain.Game{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(server, "/")+"/games", bytes.NewReader(body))
	if err != nil {
		return domain.Game{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return domain.Game{}, fmt.Errorf("open game: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return domain.Game{}, &client.RemoteError{Code: e.Code, Message: e.Message}
	}
	var game domain.Game
	if err := json.NewDecoder(resp.Body).Decode(&game); err != nil {
		return domain.Game{}, fmt.Errorf("decode game: %w", err)
	}
	return game, nil
}

// playLoop reads commands from in: "/start", "/quit", or a word to submit.
func playLoop(ctx context.Context, session *client.Session, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
	}()

	render(out, session.View())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-session.Done():
			return session.Err()
		case v := <-session.Updates():
			render(out, v)
		case line, ok := <-lines:
			if !ok || line == "/quit" {
				return nil
			}
			switch {
			case line == "":
				continue
			case line == "/start":
				if _, err := session.StartTurn(ctx); err != nil {
					fmt.Fprintf(out, "! %v\n", err)
				}
			default:
				res, err := session.Submit(ctx, line)
				if err != nil {
					fmt.Fprintf(out, "! %v\n", err)
					continue
				}
				describe(out, res)
			}
		}
	}
}

func describe(out io.Writer, res domain.SubmitResult) {
	switch {
	case res.Matched == nil:
		fmt.Fprintln(out, "  sent, waiting for your partner")
	case *res.Matched:
		fmt.Fprintf(out, "  match! both said %q, +%d\n", res.OpposingWord, *res.Score)
	case res.TurnClosed:
		fmt.Fprintf(out, "  partner said %q, out of attempts\n", res.OpposingWord)
	default:
		fmt.Fprintf(out, "  partner said %q, try to connect the two\n", res.OpposingWord)
	}
}

func render(out io.Writer, v projection.View) {
	fmt.Fprintf(out, "[%s] score %d, %d turns played\n", v.State, v.TotalScore, len(v.History))
	if v.OpenTurn == nil {
		fmt.Fprintln(out, "  type /start for a new turn")
		return
	}
	t := v.OpenTurn
	fmt.Fprintf(out, "  turn %d: %s + %s\n", t.Seq, t.Word1, t.Word2)
	for _, a := range t.Attempts {
		if a.Complete {
			fmt.Fprintf(out, "    #%d %s / %s\n", a.Attempt, a.WordA, a.WordB)
		}
	}
	switch v.State {
	case projection.YourMove, projection.YourMoveAfterMismatch:
		fmt.Fprintln(out, "  your word?")
	case projection.WaitingOnPartner:
		fmt.Fprintln(out, "  waiting on partner")
	}
}
