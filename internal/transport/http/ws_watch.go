package http

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"school-quiz-service/internal/app"
)

// WatchHandler serves leaderboard snapshots over a websocket. Ranking stays
// an on-demand read: a snapshot goes out on connect and again whenever the
// client sends a refresh message; nothing is pushed unprompted.
type WatchHandler struct {
	service  *app.Service
	auth     app.Authenticator
	upgrader websocket.Upgrader
}

func NewWatchHandler(service *app.Service, auth app.Authenticator) *WatchHandler {
	return &WatchHandler{
		service: service,
		auth:    auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type watchMessage struct {
	Type       string `json:"type"`
	Generation int    `json:"generation,omitempty"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and serves refresh-driven leaderboard reads.
func (h *WatchHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	quizID := r.URL.Query().Get("quizId")
	if quizID == "" {
		http.Error(w, "missing quizId", http.StatusBadRequest)
		return
	}
	if _, err := h.auth.Authenticate(r.Context(), bearerToken(r)); err != nil {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	generation := 0
	if raw := r.URL.Query().Get("generation"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			generation = n
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	send := make(chan any, 16)
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	h.snapshot(r, send, writerDone, quizID, generation)

	for {
		var inbound watchMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		var queued bool
		switch inbound.Type {
		case "refresh":
			gen := generation
			if inbound.Generation != 0 {
				gen = inbound.Generation
			}
			queued = h.snapshot(r, send, writerDone, quizID, gen)
		default:
			queued = trySend(send, writerDone, outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		}
		if !queued {
			break
		}
	}

	close(send)
	<-writerDone
}

func (h *WatchHandler) snapshot(r *http.Request, send chan<- any, writerDone <-chan struct{}, quizID string, generation int) bool {
	lb, err := h.service.BuildLeaderboard(r.Context(), quizID, generation)
	if err != nil {
		return trySend(send, writerDone, outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
	}
	return trySend(send, writerDone, outboundMessage[any]{Type: "leaderboard", Payload: lb})
}

// trySend queues msg for the writer goroutine. Once the writer has exited on
// a write error, queuing stops succeeding so the read loop can never block on
// a full channel nobody drains.
func trySend(send chan<- any, writerDone <-chan struct{}, msg any) bool {
	select {
	case send <- msg:
		return true
	case <-writerDone:
		return false
	}
}
