package app

import (
	"context"
	"errors"

	"truco/internal/ports"
)

// Event kinds emitted by the service.
const (
	EventGameCreated   = "game_created"
	EventTurnPlayed    = "turn_played"
	EventRoundFinished = "round_finished"
	EventRoundDealt    = "round_dealt" // send privately
	EventGameEnded     = "game_ended"
)

type GameCreatedPayload struct {
	GameID        string `json:"game_id"`
	Player1       string `json:"player1"`
	Player2       string `json:"player2"`
	RoundID       string `json:"round_id"`
	StarterPlayer string `json:"starter_player"`
}

type TurnPlayedPayload struct {
	GameID     string `json:"game_id"`
	RoundID    string `json:"round_id"`
	Seq        int    `json:"seq"`
	PlayerID   string `json:"player_id"`
	Play       string `json:"card_or_action"`
	NextPlayer string `json:"next_player,omitempty"`
	Stake      int    `json:"stake"`
	Winner     string `json:"round_winner,omitempty"`
}

type RoundFinishedPayload struct {
	GameID       string `json:"game_id"`
	RoundID      string `json:"round_id"`
	Winner       string `json:"winner"`
	Stake        int    `json:"stake"`
	Reason       string `json:"reason"`
	Player1Score int    `json:"player1_score"`
	Player2Score int    `json:"player2_score"`
}

type RoundDealtPayload struct {
	GameID        string   `json:"game_id"`
	RoundID       string   `json:"round_id"`
	Seq           int      `json:"seq"`
	StarterPlayer string   `json:"starter_player"`
	TrumpCard     string   `json:"trump_card"`
	Cards         []string `json:"cards"`
}

type GameEndedPayload struct {
	GameID       string `json:"game_id"`
	Winner       string `json:"winner"`
	Player1Score int    `json:"player1_score"`
	Player2Score int    `json:"player2_score"`
}

// PublishAll hands events to every publisher and joins their errors.
func PublishAll(ctx context.Context, events []ports.Event, publishers ...ports.EventPublisher) error {
	if len(events) == 0 {
		return nil
	}
	var errs []error
	for _, p := range publishers {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
