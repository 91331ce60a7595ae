package ports

import (
	"context"
	"errors"

	"truco/internal/domain"
)

var (
	// ErrNotFound is returned when a game or round does not exist.
	ErrNotFound = errors.New("not found")
	// ErrSequenceConflict is returned when a conditional write lost a race:
	// a turn was appended on top of prevSeq already, or the round was finished concurrently.
	ErrSequenceConflict = errors.New("sequence conflict")
)

// GameFilter selects games by completion.
type GameFilter string

const (
	GameFilterAll      GameFilter = ""
	GameFilterActive   GameFilter = "active"
	GameFilterFinished GameFilter = "finished"
)

// Valid reports whether f is a known filter.
func (f GameFilter) Valid() bool {
	switch f {
	case GameFilterAll, GameFilterActive, GameFilterFinished:
		return true
	}
	return false
}

// Match reports whether g passes the filter.
func (f GameFilter) Match(g *domain.Game) bool {
	switch f {
	case GameFilterActive:
		return !g.Over()
	case GameFilterFinished:
		return g.Over()
	default:
		return true
	}
}

// GameStore persists games, rounds and their append-only turn logs.
//
// Implementations must serialise turn appends per round: AppendTurn commits at
// most one turn for a given (round, prevSeq).
type GameStore interface {
	// CreateGame stores a new game together with its first round.
	CreateGame(ctx context.Context, g *domain.Game, first *domain.Round) error

	// GetGame returns the game with id, or ErrNotFound.
	GetGame(ctx context.Context, id string) (*domain.Game, error)

	// ListGamesByPlayer returns the games playerID takes part in, newest first.
	ListGamesByPlayer(ctx context.Context, playerID string, filter GameFilter) ([]*domain.Game, error)

	// GetRound returns the round with id and its turns ordered by seq, or ErrNotFound.
	GetRound(ctx context.Context, id string) (*domain.Round, []domain.Turn, error)

	// ListRounds returns every round of a game ordered by seq.
	ListRounds(ctx context.Context, gameID string) ([]*domain.Round, error)

	// LastRound returns the highest-seq round of a game, or ErrNotFound.
	LastRound(ctx context.Context, gameID string) (*domain.Round, error)

	// AppendTurn appends t to r's log provided the last stored turn has seq
	// prevSeq (-1 for an empty log), and stores r.Score alongside it.
	// Returns ErrSequenceConflict otherwise.
	AppendTurn(ctx context.Context, r *domain.Round, t domain.Turn, prevSeq int) error

	// FinishRound marks r finished, stores g's scores and end state and, when
	// next is non-nil, creates the next round. Returns ErrSequenceConflict
	// when r was already finished.
	FinishRound(ctx context.Context, r *domain.Round, g *domain.Game, next *domain.Round) error
}
