package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	// One row per game; scores are cumulative over its rounds.
	"CREATE TABLE IF NOT EXISTS truco_games (" +
		"id varchar(64) PRIMARY KEY, " +
		"player1 varchar(128) NOT NULL, " +
		"player2 varchar(128) NOT NULL, " +
		"player1_score integer NOT NULL DEFAULT 0, " +
		"player2_score integer NOT NULL DEFAULT 0, " +
		"start_play timestamptz NOT NULL, " +
		"last_play timestamptz NOT NULL, " +
		"end_play timestamptz, " +
		"winner_player varchar(128) NOT NULL DEFAULT '', " +
		"version bigint NOT NULL DEFAULT 1" +
		")",
	"CREATE INDEX IF NOT EXISTS truco_games_player1_idx ON truco_games (player1, start_play DESC)",
	"CREATE INDEX IF NOT EXISTS truco_games_player2_idx ON truco_games (player2, start_play DESC)",

	// One row per deal. Hands are stored as concatenated card tokens.
	"CREATE TABLE IF NOT EXISTS truco_rounds (" +
		"id varchar(64) PRIMARY KEY, " +
		"game_id varchar(64) NOT NULL REFERENCES truco_games ON DELETE CASCADE, " +
		"seq integer NOT NULL, " +
		"player1 varchar(128) NOT NULL, " +
		"player2 varchar(128) NOT NULL, " +
		"player1_cards varchar(16) NOT NULL, " +
		"player2_cards varchar(16) NOT NULL, " +
		"trump_card varchar(8) NOT NULL, " +
		"starter_player varchar(128) NOT NULL, " +
		"score integer NOT NULL, " +
		"finished boolean NOT NULL DEFAULT false, " +
		"winner_player varchar(128) NOT NULL DEFAULT '', " +
		"version bigint NOT NULL DEFAULT 1, " +
		"UNIQUE (game_id, seq)" +
		")",

	// The append-only play log; (round_id, seq) is the concurrency guard.
	"CREATE TABLE IF NOT EXISTS truco_turns (" +
		"id varchar(64) PRIMARY KEY, " +
		"round_id varchar(64) NOT NULL REFERENCES truco_rounds ON DELETE CASCADE, " +
		"seq integer NOT NULL, " +
		"player_id varchar(128) NOT NULL, " +
		"card_or_action varchar(8) NOT NULL, " +
		"played_at timestamptz NOT NULL, " +
		"UNIQUE (round_id, seq)" +
		")",
}

// Migrate creates the tables the store needs. It is safe to run on every start.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
