package ports

import "context"

// Event is a game event addressed to Recipients.
type Event struct {
	Kind       string
	GameID     string
	Payload    any
	Recipients []string // user IDs to notify
	// Private events carry hidden information and must only reach Recipients.
	Private bool
}

// EventPublisher delivers events outside the request that produced them.
type EventPublisher interface {
	Publish(ctx context.Context, events []Event) error
}
