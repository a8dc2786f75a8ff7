package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"wavelink-service/internal/domain"
)

func TestRESTGameFlow(t *testing.T) {
	service := newTestService()
	router := NewRouter(service, NewWSHandler(service))

	var game domain.Game
	do(t, router, http.MethodPost, "/games", `{"players":[{"id":"u2","name":"Bob"},{"id":"u1","name":"Alice"}]}`, http.StatusOK, &game)
	if game.A.ID != "u1" {
		t.Fatalf("expected canonical order, got %+v", game)
	}

	var turn domain.Turn
	do(t, router, http.MethodPost, "/games/"+game.ID+"/turns", "", http.StatusOK, &turn)

	var res domain.SubmitResult
	do(t, router, http.MethodPost, "/turns/"+turn.ID+"/submissions", `{"participantId":"u2","word":"Gas"}`, http.StatusOK, &res)
	if res.Matched != nil {
		t.Fatalf("expected partial submission, got %+v", res)
	}

	var state domain.GameState
	do(t, router, http.MethodGet, "/games/"+game.ID+"?participantId=u1", "", http.StatusOK, &state)
	sub := state.OpenTurn.Submissions[0]
	if !sub.Filled(domain.SlotB) || *sub.WordB != "" {
		t.Fatalf("expected partner word hidden, got %+v", sub)
	}

	var changes ChangesPayload
	do(t, router, http.MethodGet, "/games/"+game.ID+"/changes?since=0", "", http.StatusOK, &changes)
	if len(changes.Events) != 2 || changes.Cursor != 2 {
		t.Fatalf("expected two events, got %+v", changes)
	}

	var games []domain.Game
	do(t, router, http.MethodGet, "/participants/u1/games?awaiting=true", "", http.StatusOK, &games)
	if len(games) != 1 {
		t.Fatalf("expected alice to owe a move, got %+v", games)
	}
}

func TestRESTErrorMapping(t *testing.T) {
	service := newTestService()
	router := NewRouter(service, NewWSHandler(service))

	var game domain.Game
	do(t, router, http.MethodPost, "/games", `{"players":[{"id":"u1","name":"Alice"},{"id":"u2","name":"Bob"}]}`, http.StatusOK, &game)
	var turn domain.Turn
	do(t, router, http.MethodPost, "/games/"+game.ID+"/turns", "", http.StatusOK, &turn)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"seed word", http.MethodPost, "/turns/" + turn.ID + "/submissions", `{"participantId":"u1","word":"Firefly"}`, http.StatusUnprocessableEntity, "invalid_submission"},
		{"outsider", http.MethodPost, "/turns/" + turn.ID + "/submissions", `{"participantId":"u9","word":"Steam"}`, http.StatusForbidden, "not_participant"},
		{"unknown turn", http.MethodPost, "/turns/nope/submissions", `{"participantId":"u1","word":"Steam"}`, http.StatusNotFound, "turn_not_found"},
		{"unknown game", http.MethodGet, "/games/nope", "", http.StatusNotFound, "game_not_found"},
		{"bad cursor", http.MethodGet, "/games/" + game.ID + "/changes?since=-1", "", http.StatusBadRequest, "bad_cursor"},
		{"one player", http.MethodPost, "/games", `{"players":[{"id":"u1"}]}`, http.StatusUnprocessableEntity, "invalid_game"},
		{"stand-in missing", http.MethodPost, "/games", `{"players":[{"id":"u1"},{"ai":true}]}`, http.StatusServiceUnavailable, "stand_in_unavailable"},
	}
	for _, tc := range cases {
		var body ErrorPayload
		do(t, router, tc.method, tc.path, tc.body, tc.status, &body)
		if body.Code != tc.code {
			t.Fatalf("%s: expected code %s, got %+v", tc.name, tc.code, body)
		}
	}
}

func TestHealthz(t *testing.T) {
	service := newTestService()
	router := NewRouter(service, NewWSHandler(service))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected health response %d %q", rec.Code, rec.Body.String())
	}
}

func do(t *testing.T, h http.Handler, method, path, body string, status int, out any) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != status {
		t.Fatalf("%s %s: expected %d, got %d: %s", method, path, status, rec.Code, rec.Body.String())
	}
	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
}
