package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"wavelink-service/internal/app"
	"wavelink-service/internal/domain"
)

// Message types exchanged over the websocket.
const (
	MsgSnapshot     = "snapshot"
	MsgChange       = "change"
	MsgTurn         = "turn"
	MsgSubmitResult = "submitResult"
	MsgChanges      = "changes"
	MsgError        = "error"

	MsgStart  = "start"
	MsgSubmit = "submit"
	MsgPoll   = "poll"
)

type WSHandler struct {
	service  *app.GameService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.GameService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// InboundMessage is sent by clients; Payload depends on Type.
type InboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SubmitPayload carries a word for the given turn.
type SubmitPayload struct {
	TurnID string `json:"turnId"`
	Word   string `json:"word"`
}

// PollPayload asks for every change after Since.
type PollPayload struct {
	Since uint64 `json:"since"`
}

// OutboundMessage is sent by the server.
type OutboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the game use cases.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	gameID := r.URL.Query().Get("gameId")
	userID := r.URL.Query().Get("userId")
	if gameID == "" || userID == "" {
		http.Error(w, "missing gameId or userId", http.StatusBadRequest)
		return
	}

	// Subscribe before reading the snapshot so every later change is pushed;
	// the client drops what the snapshot already covers.
	updates, cancel, err := h.service.Subscribe(r.Context(), gameID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer cancel()

	state, err := h.service.Snapshot(r.Context(), gameID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	slot, err := state.Game.SlotOf(userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("gameId", gameID).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	send := make(chan OutboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug().Err(err).Str("gameId", gameID).Str("userId", userID).Msg("ws write error")
				return
			}
		}
	}()

	send <- OutboundMessage[any]{Type: MsgSnapshot, Payload: state.Redacted(slot)}

	go func() {
		defer close(updatesDone)
		for {
			select {
			case ev, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- OutboundMessage[any]{Type: MsgChange, Payload: ev}:
				case <-writerDone:
					return
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound InboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if !deliver(send, writerDone, h.handle(r, gameID, userID, slot, inbound)) {
			break
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// deliver queues msg for the writer and reports false once the writer has stopped.
func deliver(send chan<- OutboundMessage[any], writerDone <-chan struct{}, msg OutboundMessage[any]) bool {
	select {
	case send <- msg:
		return true
	case <-writerDone:
		return false
	}
}

func (h *WSHandler) handle(r *http.Request, gameID, userID string, slot domain.Slot, inbound InboundMessage) OutboundMessage[any] {
	ctx := r.Context()
	switch inbound.Type {
	case MsgSnapshot:
		state, err := h.service.Snapshot(ctx, gameID)
		if err != nil {
			return wsError(err)
		}
		return OutboundMessage[any]{Type: MsgSnapshot, Payload: state.Redacted(slot)}
	case MsgStart:
		turn, err := h.service.StartTurn(ctx, gameID)
		if err != nil {
			return wsError(err)
		}
		return OutboundMessage[any]{Type: MsgTurn, Payload: redactTurn(turn, slot)}
	case MsgSubmit:
		var payload SubmitPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return wsError(domain.InvalidSubmission("invalid submit payload"))
		}
		res, err := h.service.SubmitWord(ctx, payload.TurnID, userID, payload.Word)
		if err != nil {
			return wsError(err)
		}
		return OutboundMessage[any]{Type: MsgSubmitResult, Payload: res}
	case MsgPoll:
		var payload PollPayload
		if len(inbound.Payload) > 0 {
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				return OutboundMessage[any]{Type: MsgError, Payload: ErrorPayload{Code: "bad_cursor", Message: "invalid poll payload"}}
			}
		}
		changes, err := pollChanges(r, h.service, gameID, payload.Since)
		if err != nil {
			return wsError(err)
		}
		return OutboundMessage[any]{Type: MsgChanges, Payload: changes}
	}
	return OutboundMessage[any]{Type: MsgError, Payload: ErrorPayload{Code: "unsupported", Message: "unsupported message type"}}
}

func wsError(err error) OutboundMessage[any] {
	if status, _ := classify(err); status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("ws request failed")
	}
	return OutboundMessage[any]{Type: MsgError, Payload: errorPayload(err)}
}
