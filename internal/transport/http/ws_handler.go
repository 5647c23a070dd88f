package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"quiz-runner/internal/app"
)

// WSHandler streams machine snapshots of one open quiz and accepts the same
// commands as the REST routes.
type WSHandler struct {
	server   *Server
	upgrader websocket.Upgrader
}

func NewWSHandler(server *Server) *WSHandler {
	return &WSHandler{
		server: server,
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

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type tickPayload struct {
	TimeRemaining int `json:"time_remaining"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// messageFor classifies a snapshot against the previous one sent.
func messageFor(prev *app.Snapshot, snap app.Snapshot, m *app.Machine) outboundMessage {
	switch {
	case snap.State == app.StateSubmitted:
		return outboundMessage{Type: "submitted", Payload: submitResponse{Message: m.Result().Message, State: snap}}
	case snap.State == app.StateError:
		return outboundMessage{Type: "error", Payload: errorPayload{Message: snap.Error}}
	case prev != nil && prev.State == snap.State && prev.Index == snap.Index &&
		prev.Answers.Answered() == snap.Answers.Answered() && prev.Remaining != snap.Remaining:
		return outboundMessage{Type: "tick", Payload: tickPayload{TimeRemaining: snap.Remaining}}
	default:
		return outboundMessage{Type: "state", Payload: snap}
	}
}

// ServeWS upgrades the request and pumps snapshots until the client leaves.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	m, ok := h.server.machine(w, r)
	if !ok {
		return
	}
	log := h.server.log.With().Int64("quiz_id", m.QuizID()).Logger()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	updates, cancel := m.Subscribe()
	defer cancel()

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	enqueue := func(msg outboundMessage) bool {
		select {
		case send <- msg:
			return true
		case <-writerDone:
			return false
		case <-closeSignals:
			return false
		}
	}

	// single writer: gorilla connections allow one concurrent writer
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug().Err(err).Msg("ws write failed")
				conn.Close()
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		var prev *app.Snapshot
		for {
			select {
			case snap, ok := <-updates:
				if !ok {
					return
				}
				if !enqueue(messageFor(prev, snap, m)) {
					return
				}
				prev = &snap
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
		if err := h.apply(r.Context(), m, inbound); err != nil {
			if !enqueue(outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error()}}) {
				break
			}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

type commandError string

func (e commandError) Error() string { return string(e) }

// apply runs one client command. State changes reach the client through the
// subscription, so only failures are answered directly.
func (h *WSHandler) apply(ctx context.Context, m *app.Machine, in inboundMessage) error {
	switch in.Type {
	case "answer":
		var req answerRequest
		if err := json.Unmarshal(in.Payload, &req); err != nil {
			return commandError("invalid answer payload")
		}
		if err := h.server.validate.Struct(req); err != nil {
			return err
		}
		return applyAnswer(ctx, m, req)
	case "next":
		_, err := m.Next(ctx)
		return err
	case "prev":
		_, err := m.Prev(ctx)
		return err
	case "submit":
		_, err := m.Submit(context.WithoutCancel(ctx))
		return err
	default:
		return commandError("unsupported message type")
	}
}
