package http

import (
	"encoding/json"
	"net/http"

	"competition-service/internal/app"
	"competition-service/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/labstack/gommon/log"
)

type WSHandler struct {
	service  *app.Service
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.Service) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	User   string `json:"user"`
	Level  int    `json:"level"`
	Answer string `json:"answer"`
}

type answerResult struct {
	Level     int  `json:"level"`
	Correct   bool `json:"correct"`
	NextLevel int  `json:"nextLevel"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS streams leaderboard snapshots of one competition (the active one when
// competition_id is omitted). Clients may also submit answers over the same socket.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	competitionID := r.URL.Query().Get("competition_id")

	updates, cancel, err := h.service.Subscribe(r.Context(), competitionID)
	if err != nil {
		writeError(w, err)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// only the writer goroutine touches conn for writes
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Warnf("ws write error: %v", err)
				// unblocks ReadJSON below
				_ = conn.Close()
				for range send {
				}
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "leaderboard", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			send <- h.handleAnswer(r, competitionID, inbound.Payload)
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func (h *WSHandler) handleAnswer(r *http.Request, competitionID string, raw json.RawMessage) outboundMessage[any] {
	var payload answerPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}}
	}
	if !domain.ValidUser(payload.User) {
		return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "user must be alphanumeric"}}
	}
	correct, next, err := h.service.SubmitLevelAnswer(r.Context(), payload.User, competitionID, payload.Level, payload.Answer)
	if err != nil {
		_, msg := errorStatus(err)
		return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: msg}}
	}
	return outboundMessage[any]{Type: "answerResult", Payload: answerResult{
		Level:     payload.Level,
		Correct:   correct,
		NextLevel: next,
	}}
}
