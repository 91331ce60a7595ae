package ports

import (
	"context"
	"time"
)

// Player is the identity view of an account.
type Player struct {
	ID       string
	Username string
}

// AccountPort defines the identity lookups the game needs.
type AccountPort interface {
	// FindByUsername resolves a username to a player.
	// Returns ErrNotFound when no account has that username.
	FindByUsername(ctx context.Context, username string) (Player, error)

	// Players returns the players for the given ids, keyed by id. Unknown ids are omitted.
	Players(ctx context.Context, ids ...string) (map[string]Player, error)

	// SessionToken issues a session token for userID carrying vars, valid for ttl.
	// Returns the token and its expiry as unix seconds.
	SessionToken(ctx context.Context, userID, username string, vars map[string]string, ttl time.Duration) (string, int64, error)
}
