package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/s1webapp/internal/core/domain"
)

// Subjects.
const (
	SubjectSceneRegistered = "scenes.registered"
	subjectWorkspacePrefix = "workspace."
)

// WorkspaceSubject is the wildcard subject carrying all events of one
// workspace.
func WorkspaceSubject(workspaceID string) string {
	return subjectWorkspacePrefix + workspaceID + ".>"
}

// Publisher implements ports.EventPublisher using NATS. Workspace events are
// transient and go over core NATS; scene registrations are persisted in
// JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	// Ensure streams exist
	streams := []nats.StreamConfig{
		{
			Name:      "SCENES",
			Subjects:  []string{"scenes.>"},
			Retention: nats.LimitsPolicy,
			MaxAge:    7 * 24 * time.Hour,
			Storage:   nats.FileStorage,
		},
	}

	for _, cfg := range streams {
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist, try update
			if _, err := js.UpdateStream(&cfg); err != nil {
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// PublishWorkspaceEvent publishes on workspace.<id>.<type>.
func (p *Publisher) PublishWorkspaceEvent(ctx context.Context, ev *domain.WorkspaceEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.conn.Publish(subjectWorkspacePrefix+ev.WorkspaceID+"."+ev.Type, data)
}

// PublishSceneRegistered persists a catalog addition in the SCENES stream.
func (p *Publisher) PublishSceneRegistered(ctx context.Context, scene *domain.Scene) error {
	data, err := json.Marshal(scene)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SubjectSceneRegistered, data, nats.Context(ctx))
	return err
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection (e.g. for the WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
