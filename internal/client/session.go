// Package client is a websocket player session that keeps a local projection
// of one game in sync with the server.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"wavelink-service/internal/domain"
	"wavelink-service/internal/matching"
	"wavelink-service/internal/projection"
	transport "wavelink-service/internal/transport/http"
)

// ErrClosed is returned by requests on a closed session.
var ErrClosed = errors.New("session closed")

// RemoteError is an error reported by the server. It unwraps to the matching
// domain sentinel so callers can use errors.Is.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	return e.Code + ": " + e.Message
}

var remoteSentinels = map[string]error{
	"no_pairs_available":   domain.ErrNoPairsAvailable,
	"no_open_turn":         domain.ErrNoOpenTurn,
	"slot_filled":          domain.ErrSlotFilled,
	"invalid_submission":   domain.ErrInvalidSubmission,
	"invalid_game":         domain.ErrInvalidGame,
	"stand_in_unavailable": domain.ErrStandInUnavailable,
	"game_not_found":       domain.ErrGameNotFound,
	"turn_not_found":       domain.ErrTurnNotFound,
	"not_participant":      domain.ErrNotParticipant,
}

func (e *RemoteError) Unwrap() error {
	return remoteSentinels[e.Code]
}

type message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Session owns one websocket connection and the Mirror it feeds.
type Session struct {
	conn   *websocket.Conn
	mirror *projection.Mirror

	writeMu sync.Mutex
	reqMu   sync.Mutex
	waiting atomic.Bool
	replies chan message
	polling atomic.Bool

	updates chan projection.View
	done    chan struct{}
	closeMu sync.Once
	err     error
}

// Dial connects to the server at baseURL (http or ws scheme) as userID and
// waits for the initial snapshot.
func Dial(ctx context.Context, baseURL, gameID, userID string) (*Session, error) {
	u, err := wsURL(baseURL, gameID, userID)
	if err != nil {
		return nil, err
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s", u, resp.Status)
		}
		return nil, fmt.Errorf("dial %s: %w", u, err)
	}

	s := &Session{
		conn:    conn,
		mirror:  projection.NewMirror(userID),
		replies: make(chan message, 1),
		updates: make(chan projection.View, 1),
		done:    make(chan struct{}),
	}

	var first message
	if err := conn.ReadJSON(&first); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if err := s.handle(first); err != nil {
		conn.Close()
		return nil, err
	}
	if first.Type != transport.MsgSnapshot {
		conn.Close()
		return nil, fmt.Errorf("expected snapshot, got %s", first.Type)
	}

	go s.readLoop()
	return s, nil
}

func wsURL(baseURL, gameID, userID string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	q := url.Values{}
	q.Set("gameId", gameID)
	q.Set("userId", userID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *Session) readLoop() {
	defer s.shutdown(nil)
	for {
		var msg message
		if err := s.conn.ReadJSON(&msg); err != nil {
			s.shutdown(err)
			return
		}
		if err := s.handle(msg); err != nil {
			log.Warn().Err(err).Str("type", msg.Type).Msg("session message")
		}
	}
}

func (s *Session) handle(msg message) error {
	switch msg.Type {
	case transport.MsgSnapshot:
		var state domain.GameState
		if err := json.Unmarshal(msg.Payload, &state); err != nil {
			return fmt.Errorf("decode snapshot: %w", err)
		}
		if err := s.mirror.Load(state); err != nil {
			return err
		}
		s.polling.Store(false)
	case transport.MsgChange:
		var ev domain.ChangeEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return fmt.Errorf("decode change: %w", err)
		}
		s.mirror.Apply(ev)
		s.catchUp(false)
	case transport.MsgChanges:
		var changes transport.ChangesPayload
		if err := json.Unmarshal(msg.Payload, &changes); err != nil {
			return fmt.Errorf("decode changes: %w", err)
		}
		s.mirror.ApplyBatch(changes.Events)
		s.polling.Store(false)
		// A gap that a pull cannot close (trimmed history) needs a fresh snapshot.
		s.catchUp(true)
	default:
		if s.waiting.Load() {
			s.replies <- msg
			return nil
		}
		if msg.Type == transport.MsgError {
			var e transport.ErrorPayload
			_ = json.Unmarshal(msg.Payload, &e)
			return &RemoteError{Code: e.Code, Message: e.Message}
		}
		return nil
	}
	s.notify()
	return nil
}

// catchUp asks for missing events, or for a snapshot when resync is set.
func (s *Session) catchUp(resync bool) {
	if !s.mirror.Gap() || !s.polling.CompareAndSwap(false, true) {
		return
	}
	var err error
	if resync {
		err = s.write(transport.MsgSnapshot, nil)
	} else {
		err = s.write(transport.MsgPoll, transport.PollPayload{Since: s.mirror.Cursor()})
	}
	if err != nil {
		s.polling.Store(false)
		log.Debug().Err(err).Msg("catch-up request")
	}
}

func (s *Session) notify() {
	v := s.mirror.View()
	select {
	case s.updates <- v:
	default:
		// Replace the stale pending view.
		select {
		case <-s.updates:
		default:
		}
		select {
		case s.updates <- v:
		default:
		}
	}
}

func (s *Session) write(typ string, payload any) error {
	msg := map[string]any{"type": typ}
	if payload != nil {
		msg["payload"] = payload
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(msg)
}

// request sends one command and waits for its reply.
func (s *Session) request(ctx context.Context, typ string, payload any, out any) error {
	s.reqMu.Lock()
	defer s.reqMu.Unlock()

	s.waiting.Store(true)
	defer s.waiting.Store(false)
	if err := s.write(typ, payload); err != nil {
		return fmt.Errorf("send %s: %w", typ, err)
	}

	select {
	case msg := <-s.replies:
		if msg.Type == transport.MsgError {
			var e transport.ErrorPayload
			if err := json.Unmarshal(msg.Payload, &e); err != nil {
				return fmt.Errorf("decode error: %w", err)
			}
			return &RemoteError{Code: e.Code, Message: e.Message}
		}
		return json.Unmarshal(msg.Payload, out)
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StartTurn returns the open turn, allocating one if needed.
func (s *Session) StartTurn(ctx context.Context) (domain.Turn, error) {
	var turn domain.Turn
	if err := s.request(ctx, transport.MsgStart, nil, &turn); err != nil {
		return domain.Turn{}, err
	}
	return turn, nil
}

// Submit plays word on the open turn and merges the reply into the mirror.
func (s *Session) Submit(ctx context.Context, word string) (domain.SubmitResult, error) {
	view := s.mirror.View()
	if view.OpenTurn == nil {
		return domain.SubmitResult{}, domain.ErrNoOpenTurn
	}
	var res domain.SubmitResult
	err := s.request(ctx, transport.MsgSubmit, transport.SubmitPayload{TurnID: view.OpenTurn.ID, Word: word}, &res)
	if err != nil {
		return domain.SubmitResult{}, err
	}
	s.mirror.ApplyResult(res, matching.Clean(word))
	s.notify()
	return res, nil
}

// Compose marks the player as typing; Resume undoes it.
func (s *Session) Compose() bool {
	ok := s.mirror.BeginComposing()
	s.notify()
	return ok
}

func (s *Session) Resume() {
	s.mirror.Resume()
	s.notify()
}

// View returns the current projection.
func (s *Session) View() projection.View {
	return s.mirror.View()
}

// Updates delivers the latest view after every change. Intermediate views may be skipped.
func (s *Session) Updates() <-chan projection.View {
	return s.updates
}

// Done is closed when the connection ends; Err reports why.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Err() error {
	<-s.done
	return s.err
}

func (s *Session) Close() error {
	err := s.conn.Close()
	s.shutdown(nil)
	return err
}

func (s *Session) shutdown(err error) {
	s.closeMu.Do(func() {
		s.err = err
		close(s.done)
	})
}
