package http

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	natsadapter "github.com/samirrijal/s1webapp/internal/adapters/nats"
	"github.com/samirrijal/s1webapp/internal/pkg/metrics"
)

// wsMessage is sent from client to subscribe/unsubscribe to feeds.
type wsMessage struct {
	Action    string `json:"action"`    // "subscribe" | "unsubscribe"
	Channel   string `json:"channel"`   // "workspace" | "scenes" (default: workspace)
	Workspace string `json:"workspace"` // required for the workspace channel
}

// wsSubject maps a client message onto a NATS subject.
func wsSubject(m wsMessage) (string, string) {
	channel := m.Channel
	if channel == "" {
		channel = "workspace"
	}
	switch channel {
	case "workspace":
		if m.Workspace == "" {
			return "", "workspace is required"
		}
		// ids end up in a subject, so wildcards and dots must not get through
		id, err := uuid.Parse(m.Workspace)
		if err != nil {
			return "", "invalid workspace id"
		}
		return natsadapter.WorkspaceSubject(id.String()), ""
	case "scenes":
		return natsadapter.SubjectSceneRegistered, ""
	}
	return "", "unknown channel: " + channel
}

// WebSocketHandler returns a handler that upgrades to WebSocket and relays
// workspace and catalog events from NATS to the page.
// Connecting with ?workspace=<id> subscribes to that workspace right away.
// Clients send JSON: {"action":"subscribe","channel":"scenes"}.
func WebSocketHandler(nc *nats.Conn) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		log := slog.Default().With("remote", c.RemoteAddr().String())
		log.Debug("ws client connected")

		var mu sync.Mutex
		subs := make(map[string]*nats.Subscription) // subject -> subscription

		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		subscribe := func(subject string) error {
			s, err := nc.Subscribe(subject, func(msg *nats.Msg) {
				_ = writeJSON(json.RawMessage(msg.Data))
			})
			if err != nil {
				return err
			}
			subs[subject] = s
			return nil
		}

		if id := c.Query("workspace"); id != "" {
			subject, problem := wsSubject(wsMessage{Workspace: id})
			if problem != "" {
				_ = writeJSON(map[string]string{"error": problem})
				return
			}
			if err := subscribe(subject); err != nil {
				log.Warn("ws default subscribe failed", "workspace_id", id, "error", err)
				return
			}
		}

		// Keep-alive ping
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m wsMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				_ = writeJSON(map[string]string{"error": "invalid JSON"})
				continue
			}

			subject, problem := wsSubject(m)
			if problem != "" {
				_ = writeJSON(map[string]string{"error": problem})
				continue
			}

			switch m.Action {
			case "subscribe":
				if _, exists := subs[subject]; exists {
					_ = writeJSON(map[string]string{"status": "already subscribed", "subject": subject})
					continue
				}
				if err := subscribe(subject); err != nil {
					_ = writeJSON(map[string]string{"error": "subscribe failed: " + err.Error()})
					continue
				}
				_ = writeJSON(map[string]string{"status": "subscribed", "subject": subject})

			case "unsubscribe":
				if s, exists := subs[subject]; exists {
					_ = s.Unsubscribe()
					delete(subs, subject)
					_ = writeJSON(map[string]string{"status": "unsubscribed", "subject": subject})
				} else {
					_ = writeJSON(map[string]string{"error": "not subscribed to " + subject})
				}

			default:
				_ = writeJSON(map[string]string{"error": "unknown action: " + m.Action})
			}
		}

		close(done)
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
		log.Debug("ws client disconnected")
	}
}
