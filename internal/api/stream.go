package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AaronLay10/watermon/internal/access"
	"github.com/AaronLay10/watermon/internal/events"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Same-origin is not enforced; access is gated by authentication.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// greeting returns the messages sent when a stream opens: a connected
// notice and, for admins, the current system view.
func (s *Server) greeting(p access.Principal) []events.Message {
	msgs := []events.Message{events.Connected("Connected to water monitoring stream")}
	if p.IsAdmin() {
		msgs = append(msgs, events.SystemUpdate(s.manager.View(p)))
	}
	return msgs
}

// wsHandler streams live messages over a WebSocket.
func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("api: ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sub := s.hub.Subscribe(p)
	defer s.hub.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Reader goroutine - detects close from the peer
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(m events.Message) error {
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(websocket.TextMessage, data)
	}

	for _, m := range s.greeting(p) {
		if err := write(m); err != nil {
			log.Printf("api: ws write greeting failed: %v", err)
			return
		}
	}

	for {
		m, ok := sub.Next(ctx, s.keepalive)
		if !ok {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
		if err := write(m); err != nil {
			log.Printf("api: ws write failed: %v", err)
			return
		}
	}
}

// sseHandler streams live messages as server-sent events.
func (s *Server) sseHandler(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sub := s.hub.Subscribe(p)
	defer s.hub.Unsubscribe(sub)

	write := func(m events.Message) error {
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	for _, m := range s.greeting(p) {
		if err := write(m); err != nil {
			return
		}
	}

	for {
		m, ok := sub.Next(r.Context(), s.keepalive)
		if !ok {
			return
		}
		if err := write(m); err != nil {
			return
		}
	}
}
