package nakama

import (
	"context"
	"fmt"
	"time"

	"github.com/heroiclabs/nakama-common/api"

	"truco/internal/ports"
)

// AccountAPI is the subset of runtime.NakamaModule used for identity lookups.
type AccountAPI interface {
	UsersGetId(ctx context.Context, userIDs []string, facebookIDs []string) ([]*api.User, error)
	UsersGetUsername(ctx context.Context, usernames []string) ([]*api.User, error)
	AuthenticateTokenGenerate(userID, username string, exp int64, vars map[string]string) (string, int64, error)
}

// NakamaAccountAdapter implements ports.AccountPort using Nakama's user API.
type NakamaAccountAdapter struct {
	nk  AccountAPI
	now func() time.Time
}

// NewNakamaAccountAdapter creates a new account adapter.
func NewNakamaAccountAdapter(nk AccountAPI) *NakamaAccountAdapter {
	return &NakamaAccountAdapter{nk: nk, now: time.Now}
}

// FindByUsername resolves a username through Nakama.
// Returns ports.ErrNotFound when no user has that username.
func (a *NakamaAccountAdapter) FindByUsername(ctx context.Context, username string) (ports.Player, error) {
	users, err := a.nk.UsersGetUsername(ctx, []string{username})
	if err != nil {
		return ports.Player{}, fmt.Errorf("failed to look up username: %w", err)
	}
	for _, u := range users {
		if u.GetUsername() == username {
			return ports.Player{ID: u.GetId(), Username: u.GetUsername()}, nil
		}
	}
	return ports.Player{}, ports.ErrNotFound
}

// Players loads the usernames of ids. Unknown ids are omitted.
func (a *NakamaAccountAdapter) Players(ctx context.Context, ids ...string) (map[string]ports.Player, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	out := make(map[string]ports.Player, len(unique))
	if len(unique) == 0 {
		return out, nil
	}
	users, err := a.nk.UsersGetId(ctx, unique, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	for _, u := range users {
		out[u.GetId()] = ports.Player{ID: u.GetId(), Username: u.GetUsername()}
	}
	return out, nil
}

// SessionToken mints a Nakama session token carrying vars.
func (a *NakamaAccountAdapter) SessionToken(ctx context.Context, userID, username string, vars map[string]string, ttl time.Duration) (string, int64, error) {
	token, exp, err := a.nk.AuthenticateTokenGenerate(userID, username, a.now().Add(ttl).Unix(), vars)
	if err != nil {
		return "", 0, fmt.Errorf("failed to generate session: %w", err)
	}
	return token, exp, nil
}

var _ ports.AccountPort = (*NakamaAccountAdapter)(nil)
