// Package natsbus fans game events out to other services over NATS.
package natsbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"truco/internal/ports"
)

// Conn is the subset of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subj string, data []byte) error
}

// Envelope is the JSON message body published for each event.
type Envelope struct {
	Kind       string    `json:"kind"`
	GameID     string    `json:"game_id"`
	Recipients []string  `json:"recipients,omitempty"`
	Payload    any       `json:"payload"`
	SentAt     time.Time `json:"sent_at"`
}

// Publisher implements ports.EventPublisher on a NATS connection.
// Events go to "<prefix>.<game_id>.<kind>". Private events are not
// published, since any subscriber could read the hidden cards.
type Publisher struct {
	conn   Conn
	prefix string
	now    func() time.Time
}

// NewPublisher creates a publisher writing under prefix.
func NewPublisher(conn Conn, prefix string) *Publisher {
	return &Publisher{conn: conn, prefix: prefix, now: time.Now}
}

// Subject returns the subject an event is published on.
func (p *Publisher) Subject(ev ports.Event) string {
	return fmt.Sprintf("%s.%s.%s", p.prefix, ev.GameID, ev.Kind)
}

func (p *Publisher) Publish(ctx context.Context, events []ports.Event) error {
	var errs []error
	for _, ev := range events {
		if ev.Private {
			continue
		}
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		data, err := json.Marshal(Envelope{
			Kind:       ev.Kind,
			GameID:     ev.GameID,
			Recipients: ev.Recipients,
			Payload:    ev.Payload,
			SentAt:     p.now().UTC(),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ev.Kind, err))
			continue
		}
		if err := p.conn.Publish(p.Subject(ev), data); err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", ev.Kind, err))
		}
	}
	return errors.Join(errs...)
}

// Connect dials the NATS server at url.
func Connect(url, name string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(name),
		nats.Timeout(10 * time.Second),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(5),
	}
	return nats.Connect(url, opts...)
}

var _ ports.EventPublisher = (*Publisher)(nil)
