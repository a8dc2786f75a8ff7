package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"wavelink-service/internal/app"
	"wavelink-service/internal/domain"
)

// API serves the REST surface of the game service.
type API struct {
	service *app.GameService
}

func NewAPI(service *app.GameService) *API {
	return &API{service: service}
}

// NewRouter installs middleware and mounts the REST routes and the websocket endpoint.
func NewRouter(service *app.GameService, ws *WSHandler) chi.Router {
	api := NewAPI(service)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(accessLog)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/ws", ws.ServeWS)

	r.Post("/games", api.openGame)
	r.Route("/games/{gameID}", func(r chi.Router) {
		r.Get("/", api.snapshot)
		r.Post("/turns", api.startTurn)
		r.Get("/changes", api.changes)
	})
	r.Post("/turns/{turnID}/submissions", api.submit)
	r.Get("/participants/{participantID}/games", api.listGames)
	return r
}

// accessLog writes one zerolog line per request.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("requestId", chimw.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("http request")
	})
}

type playerRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	AI   bool   `json:"ai"`
}

type openGameRequest struct {
	Players []playerRequest `json:"players"`
}

func (a *API) openGame(w http.ResponseWriter, r *http.Request) {
	var req openGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidGame, err))
		return
	}
	if len(req.Players) != 2 {
		writeError(w, r, fmt.Errorf("%w: exactly two players required", domain.ErrInvalidGame))
		return
	}
	players := make([]domain.Participant, 2)
	for i, p := range req.Players {
		if p.AI {
			players[i] = domain.AIParticipant()
			continue
		}
		players[i] = domain.Participant{ID: p.ID, DisplayName: p.Name}
	}
	game, err := a.service.OpenGame(r.Context(), players[0], players[1])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, game)
}

// snapshot hides unfinished attempt words from everyone but their author,
// identified by the optional participantId query parameter.
func (a *API) snapshot(w http.ResponseWriter, r *http.Request) {
	state, err := a.service.Snapshot(r.Context(), chi.URLParam(r, "gameID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var viewer domain.Slot
	if id := r.URL.Query().Get("participantId"); id != "" {
		if viewer, err = state.Game.SlotOf(id); err != nil {
			writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, state.Redacted(viewer))
}

func (a *API) startTurn(w http.ResponseWriter, r *http.Request) {
	turn, err := a.service.StartTurn(r.Context(), chi.URLParam(r, "gameID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, redactTurn(turn, ""))
}

type submitRequest struct {
	ParticipantID string `json:"participantId"`
	Word          string `json:"word"`
}

func (a *API) submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, domain.InvalidSubmission("malformed request body"))
		return
	}
	res, err := a.service.SubmitWord(r.Context(), chi.URLParam(r, "turnID"), req.ParticipantID, req.Word)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ChangesPayload answers a pull: every event after the requested cursor.
type ChangesPayload struct {
	Events []domain.ChangeEvent `json:"events"`
	Cursor uint64               `json:"cursor"`
}

func (a *API) changes(w http.ResponseWriter, r *http.Request) {
	since, err := parseCursor(r.URL.Query().Get("since"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorPayload{Code: "bad_cursor", Message: err.Error()})
		return
	}
	payload, err := pollChanges(r, a.service, chi.URLParam(r, "gameID"), since)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (a *API) listGames(w http.ResponseWriter, r *http.Request) {
	participantID := chi.URLParam(r, "participantID")
	var (
		games []domain.Game
		err   error
	)
	if r.URL.Query().Get("awaiting") == "true" {
		games, err = a.service.AwaitingGames(r.Context(), participantID)
	} else {
		games, err = a.service.ListGames(r.Context(), participantID)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, games)
}

func parseCursor(raw string) (uint64, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, errors.New("since must be a non-negative integer")
	}
	return n, nil
}

func pollChanges(r *http.Request, service *app.GameService, gameID string, since uint64) (ChangesPayload, error) {
	events, err := service.PollChanges(r.Context(), gameID, since)
	if err != nil {
		return ChangesPayload{}, err
	}
	cursor := since
	for _, ev := range events {
		if ev.Seq > cursor {
			cursor = ev.Seq
		}
	}
	return ChangesPayload{Events: events, Cursor: cursor}, nil
}

func redactTurn(turn domain.Turn, viewer domain.Slot) domain.Turn {
	return *domain.GameState{OpenTurn: &turn}.Redacted(viewer).OpenTurn
}
