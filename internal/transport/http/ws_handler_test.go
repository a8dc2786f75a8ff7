package http

import (
	"context"
	"encoding/json"
	"math/rand"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"wavelink-service/internal/app"
	"wavelink-service/internal/domain"
	"wavelink-service/internal/infra/memory"
	"wavelink-service/internal/wordpair"
)

func TestWebSocketTurnFlow(t *testing.T) {
	service := newTestService()
	server := httptest.NewServer(NewRouter(service, NewWSHandler(service)))
	defer server.Close()

	game := openGame(t, service)
	alice := dial(t, server, game.ID, "u1")
	defer alice.Close()
	bob := dial(t, server, game.ID, "u2")
	defer bob.Close()

	readNext(t, alice, MsgSnapshot)
	readNext(t, bob, MsgSnapshot)

	send(t, alice, MsgStart, nil)
	var turn domain.Turn
	decode(t, readUntil(t, alice, MsgTurn), &turn)
	if turn.Pair.Word1 != "Fire" {
		t.Fatalf("expected easy pair, got %+v", turn.Pair)
	}

	send(t, alice, MsgSubmit, SubmitPayload{TurnID: turn.ID, Word: "Steam"})
	var res domain.SubmitResult
	decode(t, readUntil(t, alice, MsgSubmitResult), &res)
	if !res.Accepted || res.Matched != nil {
		t.Fatalf("expected partial submission, got %+v", res)
	}

	// Bob sees the turn start and Alice's fill without her word.
	var ev domain.ChangeEvent
	decode(t, readUntil(t, bob, MsgChange), &ev)
	if ev.Kind != domain.ChangeTurnStarted {
		t.Fatalf("expected turn start first, got %+v", ev)
	}
	decode(t, readUntil(t, bob, MsgChange), &ev)
	if ev.Kind != domain.ChangeSlotFilled || !ev.FilledA || ev.WordA != "" {
		t.Fatalf("expected hidden slot fill, got %+v", ev)
	}

	send(t, bob, MsgSubmit, SubmitPayload{TurnID: turn.ID, Word: "steam"})
	decode(t, readUntil(t, bob, MsgSubmitResult), &res)
	if res.Score == nil || *res.Score != domain.MaxScore || !res.TurnClosed {
		t.Fatalf("expected match on first attempt, got %+v", res)
	}

	send(t, bob, MsgPoll, PollPayload{Since: 1})
	var changes ChangesPayload
	decode(t, readUntil(t, bob, MsgChanges), &changes)
	if len(changes.Events) != 2 || changes.Cursor != 3 {
		t.Fatalf("expected two events up to cursor 3, got %+v", changes)
	}

	send(t, alice, MsgSubmit, SubmitPayload{TurnID: turn.ID, Word: "Vapor"})
	var errPayload ErrorPayload
	decode(t, readUntil(t, alice, MsgError), &errPayload)
	if errPayload.Code != "no_open_turn" {
		t.Fatalf("expected no_open_turn, got %+v", errPayload)
	}
}

func TestWebSocketRejectsOutsiders(t *testing.T) {
	service := newTestService()
	server := httptest.NewServer(NewRouter(service, NewWSHandler(service)))
	defer server.Close()

	game := openGame(t, service)
	u := "ws" + server.URL[len("http"):] + "/ws?gameId=" + game.ID + "&userId=u9"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != 403 {
		t.Fatalf("expected 403, got %+v", resp)
	}
}

func dial(t *testing.T, server *httptest.Server, gameID, userID string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws?gameId=" + gameID + "&userId=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	msg := map[string]any{"type": typ}
	if payload != nil {
		msg["payload"] = payload
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

type rawMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func readNext(t *testing.T, conn *websocket.Conn, expect string) rawMessage {
	t.Helper()
	var msg rawMessage
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg
}

// readUntil skips pushed changes interleaved with replies.
func readUntil(t *testing.T, conn *websocket.Conn, expect string) rawMessage {
	t.Helper()
	for i := 0; i < 10; i++ {
		msg := readNext(t, conn, "")
		if msg.Type == expect {
			return msg
		}
	}
	t.Fatalf("no %s message received", expect)
	return rawMessage{}
}

func decode(t *testing.T, msg rawMessage, v any) {
	t.Helper()
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		t.Fatalf("decode %s: %v", msg.Type, err)
	}
}

func openGame(t *testing.T, service *app.GameService) domain.Game {
	t.Helper()
	game, err := service.OpenGame(context.Background(),
		domain.Participant{ID: "u1", DisplayName: "Alice"},
		domain.Participant{ID: "u2", DisplayName: "Bob"},
	)
	if err != nil {
		t.Fatalf("open game: %v", err)
	}
	return game
}

func newTestService() *app.GameService {
	catalog := memory.NewPairCatalog(wordpair.NewStaticLoader([]domain.WordPair{
		{ID: "1", Word1: "Fire", Word2: "Water", Easy: true},
		{ID: "2", Word1: "Sun", Word2: "Moon"},
	}), time.Minute)
	return app.NewGameService(memory.NewGameRepository(), catalog, memory.NewChangeFeed(),
		app.WithAllocator(wordpair.NewAllocatorWithRand(rand.New(rand.NewSource(1)))))
}

func TestDeliverStopsWhenWriterExits(t *testing.T) {
	send := make(chan OutboundMessage[any], 1)
	writerDone := make(chan struct{})

	if !deliver(send, writerDone, OutboundMessage[any]{Type: MsgTurn}) {
		t.Fatalf("expected the first message to be queued")
	}

	close(writerDone)
	result := make(chan bool, 1)
	go func() {
		result <- deliver(send, writerDone, OutboundMessage[any]{Type: MsgSubmitResult})
	}()
	select {
	case ok := <-result:
		if ok {
			t.Fatalf("expected delivery to fail once the writer is gone")
		}
	case <-time.After(time.Second):
		t.Fatalf("deliver blocked on a full queue after the writer exited")
	}
}
