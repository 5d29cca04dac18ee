package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kalmansforge/web3-bd-guide-sub000/internal/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const (
	eventBuffer  = 64
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// StreamMessage is one frame of the event stream
type StreamMessage struct {
	Type  string        `json:"type"`
	Event *events.Event `json:"event,omitempty"`
	Data  string        `json:"data,omitempty"`
}

// handleEventsWS streams change events. The optional "types" query parameter
// restricts the stream to a comma-separated list of event types.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	filter := map[string]bool{}
	for _, t := range strings.Split(r.URL.Query().Get("types"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			filter[t] = true
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	user := UserFromContext(r.Context())
	slog.Info("event stream connected", "user", user, "filter", len(filter))

	ch, unsubscribe := s.bus.Subscribe(eventBuffer)
	defer unsubscribe()

	var writeMu sync.Mutex
	send := func(msg StreamMessage) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return s.sendStreamMessage(conn, msg)
	}

	if err := send(StreamMessage{Type: "connected", Data: "subscribed to change events"}); err != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	// Bus -> WebSocket
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if len(filter) > 0 && !filter[ev.Type] {
					continue
				}
				if err := send(StreamMessage{Type: "event", Event: &ev}); err != nil {
					return
				}
			case <-ticker.C:
				if err := send(StreamMessage{Type: "ping"}); err != nil {
					return
				}
			}
		}
	}()

	// WebSocket -> control messages; a read error means the client went away
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					slog.Debug("websocket read error", "error", err)
				}
				return
			}

			var msg StreamMessage
			if err := json.Unmarshal(message, &msg); err != nil {
				slog.Debug("invalid message format", "error", err)
				continue
			}
			if msg.Type == "ping" {
				if err := send(StreamMessage{Type: "pong"}); err != nil {
					return
				}
			}
		}
	}()

	// The reader only returns on a connection error, so closing unblocks it
	<-ctx.Done()
	conn.Close()
	wg.Wait()
	slog.Info("event stream disconnected", "user", user)
}

func (s *Server) sendStreamMessage(conn *websocket.Conn, msg StreamMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("failed to marshal stream message", "error", err)
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Debug("failed to send stream message", "error", err)
		return err
	}
	return nil
}
