// Package postgres implements ports.GameStore on the SQL database Nakama
// hands to the runtime module.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"truco/internal/domain"
	"truco/internal/ports"
)

// uniqueViolation is the SQLSTATE both Postgres and CockroachDB report for
// a duplicate key.
const uniqueViolation = "23505"

// Store is a relational GameStore. Turns are rows keyed by (round_id, seq),
// so a second append on the same prevSeq violates the unique constraint.
type Store struct {
	db *sql.DB
}

// NewStore creates a store over db. Call Migrate first.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const (
	gameColumns  = "id, player1, player2, player1_score, player2_score, start_play, last_play, end_play, winner_player, version"
	roundColumns = "id, game_id, seq, player1, player2, player1_cards, player2_cards, trump_card, starter_player, score, finished, winner_player, version"
)

const (
	insertGameSQL = "INSERT INTO truco_games (" + gameColumns + ") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1)"

	insertRoundSQL = "INSERT INTO truco_rounds (" + roundColumns + ") VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1)"

	selectGameSQL = "SELECT " + gameColumns + " FROM truco_games WHERE id = $1"

	selectGamesByPlayerSQL = "SELECT " + gameColumns + " FROM truco_games WHERE (player1 = $1 OR player2 = $1)"

	selectRoundSQL = "SELECT " + roundColumns + " FROM truco_rounds WHERE id = $1"

	selectRoundsSQL = "SELECT " + roundColumns + " FROM truco_rounds WHERE game_id = $1 ORDER BY seq"

	selectLastRoundSQL = "SELECT " + roundColumns + " FROM truco_rounds WHERE game_id = $1 ORDER BY seq DESC LIMIT 1"

	selectTurnsSQL = "SELECT id, seq, player_id, card_or_action, played_at FROM truco_turns WHERE round_id = $1 ORDER BY seq"

	// Inserts only when the round is open and its last seq is $7.
	appendTurnSQL = "INSERT INTO truco_turns (id, round_id, seq, player_id, card_or_action, played_at) " +
		"SELECT $1, $2, $3, $4, $5, $6 " +
		"WHERE EXISTS (SELECT 1 FROM truco_rounds WHERE id = $2 AND NOT finished) " +
		"AND (SELECT COALESCE(MAX(seq), -1) FROM truco_turns WHERE round_id = $2) = $7"

	updateRoundScoreSQL = "UPDATE truco_rounds SET score = $1, version = version + 1 WHERE id = $2"

	finishRoundSQL = "UPDATE truco_rounds SET finished = true, winner_player = $1, score = $2, version = version + 1 " +
		"WHERE id = $3 AND NOT finished"

	updateGameSQL = "UPDATE truco_games SET player1_score = $1, player2_score = $2, last_play = $3, end_play = $4, " +
		"winner_player = $5, version = version + 1 WHERE id = $6"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) CreateGame(ctx context.Context, g *domain.Game, first *domain.Round) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, insertGameSQL,
			g.ID, g.Player1, g.Player2, g.Player1Score, g.Player2Score,
			g.StartPlay, g.LastPlay, nullTime(g.EndPlay), g.WinnerPlayer,
		); err != nil {
			return fmt.Errorf("failed to insert game: %w", err)
		}
		if err := insertRound(ctx, tx, first); err != nil {
			return err
		}
		return nil
	})
}

func (s *Store) GetGame(ctx context.Context, id string) (*domain.Game, error) {
	g, err := scanGame(s.db.QueryRowContext(ctx, selectGameSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load game %s: %w", id, err)
	}
	return g, nil
}

func (s *Store) ListGamesByPlayer(ctx context.Context, playerID string, filter ports.GameFilter) ([]*domain.Game, error) {
	query := selectGamesByPlayerSQL
	switch filter {
	case ports.GameFilterActive:
		query += " AND end_play IS NULL"
	case ports.GameFilterFinished:
		query += " AND end_play IS NOT NULL"
	}
	query += " ORDER BY start_play DESC"

	rows, err := s.db.QueryContext(ctx, query, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	defer rows.Close()

	games := []*domain.Game{}
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan game: %w", err)
		}
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list games: %w", err)
	}
	return games, nil
}

func (s *Store) GetRound(ctx context.Context, id string) (*domain.Round, []domain.Turn, error) {
	r, err := scanRound(s.db.QueryRowContext(ctx, selectRoundSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load round %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx, selectTurnsSQL, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load turns: %w", err)
	}
	defer rows.Close()

	turns := []domain.Turn{}
	for rows.Next() {
		t := domain.Turn{RoundID: id}
		if err := rows.Scan(&t.ID, &t.Seq, &t.PlayerID, &t.Play, &t.When); err != nil {
			return nil, nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to load turns: %w", err)
	}
	return r, turns, nil
}

func (s *Store) ListRounds(ctx context.Context, gameID string) ([]*domain.Round, error) {
	if _, err := s.GetGame(ctx, gameID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, selectRoundsSQL, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}
	defer rows.Close()

	rounds := []*domain.Round{}
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan round: %w", err)
		}
		rounds = append(rounds, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list rounds: %w", err)
	}
	return rounds, nil
}

func (s *Store) LastRound(ctx context.Context, gameID string) (*domain.Round, error) {
	r, err := scanRound(s.db.QueryRowContext(ctx, selectLastRoundSQL, gameID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ports.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load last round: %w", err)
	}
	return r, nil
}

// AppendTurn inserts the turn and stores the round stake in one transaction.
func (s *Store) AppendTurn(ctx context.Context, r *domain.Round, t domain.Turn, prevSeq int) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, appendTurnSQL,
			t.ID, r.ID, t.Seq, t.PlayerID, t.Play, t.When, prevSeq,
		)
		if isUniqueViolation(err) {
			return ports.ErrSequenceConflict
		}
		if err != nil {
			return fmt.Errorf("failed to append turn: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("failed to append turn: %w", err)
		} else if n == 0 {
			return ports.ErrSequenceConflict
		}

		if _, err := tx.ExecContext(ctx, updateRoundScoreSQL, r.Score, r.ID); err != nil {
			return fmt.Errorf("failed to update round score: %w", err)
		}
		return nil
	})
}

// FinishRound closes the round, stores the game totals and inserts next.
func (s *Store) FinishRound(ctx context.Context, r *domain.Round, g *domain.Game, next *domain.Round) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, finishRoundSQL, r.WinnerPlayer, r.Score, r.ID)
		if err != nil {
			return fmt.Errorf("failed to finish round: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("failed to finish round: %w", err)
		} else if n == 0 {
			return ports.ErrSequenceConflict
		}

		if _, err := tx.ExecContext(ctx, updateGameSQL,
			g.Player1Score, g.Player2Score, g.LastPlay, nullTime(g.EndPlay), g.WinnerPlayer, g.ID,
		); err != nil {
			return fmt.Errorf("failed to update game: %w", err)
		}

		if next != nil {
			if err := insertRound(ctx, tx, next); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return ports.ErrSequenceConflict
		}
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func insertRound(ctx context.Context, tx *sql.Tx, r *domain.Round) error {
	_, err := tx.ExecContext(ctx, insertRoundSQL,
		r.ID, r.GameID, r.Seq, r.Player1, r.Player2,
		domain.FormatHand(r.Player1Cards), domain.FormatHand(r.Player2Cards), r.TrumpCard.String(),
		r.StarterPlayer, r.Score, r.Finished, r.WinnerPlayer,
	)
	if isUniqueViolation(err) {
		return ports.ErrSequenceConflict
	}
	if err != nil {
		return fmt.Errorf("failed to insert round: %w", err)
	}
	return nil
}

func scanGame(row rowScanner) (*domain.Game, error) {
	var (
		g       domain.Game
		endPlay sql.NullTime
		version int64
	)
	if err := row.Scan(&g.ID, &g.Player1, &g.Player2, &g.Player1Score, &g.Player2Score,
		&g.StartPlay, &g.LastPlay, &endPlay, &g.WinnerPlayer, &version); err != nil {
		return nil, err
	}
	if endPlay.Valid {
		t := endPlay.Time
		g.EndPlay = &t
	}
	g.Version = strconv.FormatInt(version, 10)
	return &g, nil
}

func scanRound(row rowScanner) (*domain.Round, error) {
	var (
		r                    domain.Round
		p1Cards, p2Cards, tc string
		version              int64
	)
	if err := row.Scan(&r.ID, &r.GameID, &r.Seq, &r.Player1, &r.Player2, &p1Cards, &p2Cards, &tc,
		&r.StarterPlayer, &r.Score, &r.Finished, &r.WinnerPlayer, &version); err != nil {
		return nil, err
	}

	var err error
	if r.Player1Cards, err = domain.ParseHand(p1Cards); err != nil {
		return nil, fmt.Errorf("round %s: %w", r.ID, err)
	}
	if r.Player2Cards, err = domain.ParseHand(p2Cards); err != nil {
		return nil, fmt.Errorf("round %s: %w", r.ID, err)
	}
	if r.TrumpCard, err = domain.ParseCard(tc); err != nil {
		return nil, fmt.Errorf("round %s: %w", r.ID, err)
	}
	r.Version = strconv.FormatInt(version, 10)
	return &r, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// isUniqueViolation matches driver errors exposing SQLState, as pgx's do.
func isUniqueViolation(err error) bool {
	var se interface{ SQLState() string }
	return errors.As(err, &se) && se.SQLState() == uniqueViolation
}

var _ ports.GameStore = (*Store)(nil)
