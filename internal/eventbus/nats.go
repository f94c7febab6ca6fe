package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// NatsBus is a JetStream-backed EventBus for deployments where more than
// one scheduler or reconciler process needs to observe the same bead
// events. It uses nats.LimitsPolicy rather than a work-queue retention
// policy so every durable consumer receives every message, matching this
// bus's fan-out (not competing-consumer) delivery contract.
type NatsBus struct {
	conn           *nats.Conn
	js             nats.JetStreamContext
	streamName     string
	subject        string
	consumerPrefix string
	subs           map[string]*nats.Subscription
}

// NatsConfig configures a NatsBus.
type NatsConfig struct {
	URL            string
	StreamName     string
	Subject        string
	ConsumerPrefix string
}

// NewNatsBus connects to url and ensures the configured stream exists.
func NewNatsBus(cfg NatsConfig) (*NatsBus, error) {
	if cfg.StreamName == "" {
		cfg.StreamName = "OYA_BEAD_EVENTS"
	}
	if cfg.Subject == "" {
		cfg.Subject = "oya.bead.events"
	}
	conn, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("eventbus: nats connect: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("eventbus: jetstream context: %w", err)
	}
	b := &NatsBus{
		conn:           conn,
		js:             js,
		streamName:     cfg.StreamName,
		subject:        cfg.Subject,
		consumerPrefix: cfg.ConsumerPrefix,
		subs:           make(map[string]*nats.Subscription),
	}
	if err := b.ensureStream(); err != nil {
		conn.Close()
		return nil, err
	}
	return b, nil
}

func (b *NatsBus) ensureStream() error {
	_, err := b.js.StreamInfo(b.streamName)
	if err == nil {
		return nil
	}
	_, err = b.js.AddStream(&nats.StreamConfig{
		Name:      b.streamName,
		Subjects:  []string{b.subject},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour,
	})
	if err != nil {
		return fmt.Errorf("eventbus: create stream: %w", err)
	}
	return nil
}

// Publish marshals ev as JSON and publishes it to the configured subject.
func (b *NatsBus) Publish(ctx context.Context, ev Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if ev.ID == "" {
		ev.ID = fmt.Sprintf("%s-%d", ev.BeadID, ev.Timestamp.UnixNano())
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("eventbus: marshal event: %w", err)
	}
	_, err = b.js.Publish(b.subject, data, nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("eventbus: publish: %w", err)
	}
	return nil
}

// Subscribe creates a durable JetStream consumer named by id, so the same
// subscriber id resumes from where it left off across restarts instead of
// replaying the whole stream.
func (b *NatsBus) Subscribe(id string, filter Filter) (<-chan Event, error) {
	out := make(chan Event, 100)
	durable := b.consumerPrefix + id
	handler := func(msg *nats.Msg) {
		var ev Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			msg.Term()
			return
		}
		if filter == nil || filter(ev) {
			select {
			case out <- ev:
			default:
			}
		}
		msg.Ack()
	}
	sub, err := b.js.Subscribe(b.subject, handler,
		nats.Durable(durable),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.MaxDeliver(3),
		nats.AckWait(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("eventbus: subscribe: %w", err)
	}
	b.subs[id] = sub
	return out, nil
}

// Unsubscribe drains and removes the durable consumer for id.
func (b *NatsBus) Unsubscribe(id string) error {
	sub, ok := b.subs[id]
	if !ok {
		return nil
	}
	delete(b.subs, id)
	return sub.Unsubscribe()
}

// Close drains subscriptions and closes the underlying connection.
func (b *NatsBus) Close() error {
	for id, sub := range b.subs {
		sub.Unsubscribe()
		delete(b.subs, id)
	}
	b.conn.Close()
	return nil
}
