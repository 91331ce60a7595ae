package nakama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"truco/internal/app"
	"truco/internal/ports"
)

// NotificationSender is the subset of runtime.NakamaModule used for in-app notifications.
type NotificationSender interface {
	NotificationSend(ctx context.Context, userID, subject string, content map[string]interface{}, code int, sender string, persistent bool) error
}

// Notifier publishes game events as Nakama in-app notifications.
type Notifier struct {
	nk NotificationSender
}

// NewNotifier creates a notification publisher.
func NewNotifier(nk NotificationSender) *Notifier {
	return &Notifier{nk: nk}
}

var notificationCodes = map[string]struct {
	code       int
	persistent bool
}{
	app.EventGameCreated:   {NotifyGameCreated, true},
	app.EventTurnPlayed:    {NotifyTurnPlayed, false},
	app.EventRoundFinished: {NotifyRoundFinished, false},
	app.EventRoundDealt:    {NotifyRoundDealt, true},
	app.EventGameEnded:     {NotifyGameEnded, true},
}

// Publish sends each event to its recipients. Unknown kinds are skipped.
func (n *Notifier) Publish(ctx context.Context, events []ports.Event) error {
	var errs []error
	for _, ev := range events {
		meta, ok := notificationCodes[ev.Kind]
		if !ok {
			continue
		}
		content, err := toContent(ev.Payload)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ev.Kind, err))
			continue
		}
		for _, userID := range ev.Recipients {
			if err := n.nk.NotificationSend(ctx, userID, ev.Kind, content, meta.code, "", meta.persistent); err != nil {
				errs = append(errs, fmt.Errorf("notify %s of %s: %w", userID, ev.Kind, err))
			}
		}
	}
	return errors.Join(errs...)
}

func toContent(payload any) (map[string]interface{}, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	content := map[string]interface{}{}
	if err := json.Unmarshal(b, &content); err != nil {
		return nil, err
	}
	return content, nil
}

var _ ports.EventPublisher = (*Notifier)(nil)
