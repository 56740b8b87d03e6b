package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/s1webapp/internal/core/domain"
)

// Subscriber consumes persisted events from JetStream.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	subs []*nats.Subscription
}

// NewSubscriber connects to NATS and enables JetStream.
func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Subscriber{conn: conn, js: js}, nil
}

// SubscribeSceneRegistered delivers each registered scene to handler with a
// durable consumer named durable. Failed deliveries are retried up to three
// times.
func (s *Subscriber) SubscribeSceneRegistered(ctx context.Context, durable string, handler func(ctx context.Context, scene *domain.Scene) error) error {
	sub, err := s.js.Subscribe(SubjectSceneRegistered, func(msg *nats.Msg) {
		var scene domain.Scene
		if err := json.Unmarshal(msg.Data, &scene); err != nil {
			// poison message, never redeliver
			_ = msg.Term()
			return
		}
		if err := handler(ctx, &scene); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.Durable(durable),
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
