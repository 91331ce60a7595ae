package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"truco/internal/domain"
	"truco/internal/ports"
)

// memStore is an in-memory GameStore with the same conflict semantics as
// the real adapters.
type memStore struct {
	mu     sync.Mutex
	games  map[string]*domain.Game
	rounds map[string]*domain.Round
	turns  map[string][]domain.Turn

	appendErr error
	finishErr error
}

func newMemStore() *memStore {
	return &memStore{
		games:  map[string]*domain.Game{},
		rounds: map[string]*domain.Round{},
		turns:  map[string][]domain.Turn{},
	}
}

func (m *memStore) CreateGame(_ context.Context, g *domain.Game, first *domain.Round) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.games[g.ID]; ok {
		return fmt.Errorf("game %s exists", g.ID)
	}
	m.games[g.ID] = cloneGame(g)
	m.rounds[first.ID] = cloneRound(first)
	return nil
}

func (m *memStore) GetGame(_ context.Context, id string) (*domain.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return cloneGame(g), nil
}

func (m *memStore) ListGamesByPlayer(_ context.Context, playerID string, filter ports.GameFilter) ([]*domain.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Game
	for _, g := range m.games {
		if g.Player1 != playerID && g.Player2 != playerID {
			continue
		}
		if filter.Match(g) {
			out = append(out, cloneGame(g))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartPlay.After(out[j].StartPlay) })
	return out, nil
}

func (m *memStore) GetRound(_ context.Context, id string) (*domain.Round, []domain.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rounds[id]
	if !ok {
		return nil, nil, ports.ErrNotFound
	}
	return cloneRound(r), append([]domain.Turn(nil), m.turns[id]...), nil
}

func (m *memStore) ListRounds(_ context.Context, gameID string) ([]*domain.Round, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Round
	for _, r := range m.rounds {
		if r.GameID == gameID {
			out = append(out, cloneRound(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (m *memStore) LastRound(ctx context.Context, gameID string) (*domain.Round, error) {
	rounds, _ := m.ListRounds(ctx, gameID)
	if len(rounds) == 0 {
		return nil, ports.ErrNotFound
	}
	return rounds[len(rounds)-1], nil
}

func (m *memStore) AppendTurn(_ context.Context, r *domain.Round, t domain.Turn, prevSeq int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	stored, ok := m.rounds[r.ID]
	if !ok {
		return ports.ErrNotFound
	}
	if len(m.turns[r.ID])-1 != prevSeq {
		return ports.ErrSequenceConflict
	}
	m.turns[r.ID] = append(m.turns[r.ID], t)
	stored.Score = r.Score
	return nil
}

func (m *memStore) FinishRound(_ context.Context, r *domain.Round, g *domain.Game, next *domain.Round) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finishErr != nil {
		return m.finishErr
	}
	stored, ok := m.rounds[r.ID]
	if !ok {
		return ports.ErrNotFound
	}
	if stored.Finished {
		return ports.ErrSequenceConflict
	}
	m.rounds[r.ID] = cloneRound(r)
	m.games[g.ID] = cloneGame(g)
	if next != nil {
		m.rounds[next.ID] = cloneRound(next)
	}
	return nil
}

func cloneGame(g *domain.Game) *domain.Game {
	c := *g
	return &c
}

func cloneRound(r *domain.Round) *domain.Round {
	c := *r
	c.Player1Cards = append([]domain.Card(nil), r.Player1Cards...)
	c.Player2Cards = append([]domain.Card(nil), r.Player2Cards...)
	return &c
}

type fakeAccounts struct {
	byID     map[string]ports.Player
	sessions []map[string]string
}

func newFakeAccounts(players ...ports.Player) *fakeAccounts {
	a := &fakeAccounts{byID: map[string]ports.Player{}}
	for _, p := range players {
		a.byID[p.ID] = p
	}
	return a
}

func (a *fakeAccounts) FindByUsername(_ context.Context, username string) (ports.Player, error) {
	for _, p := range a.byID {
		if p.Username == username {
			return p, nil
		}
	}
	return ports.Player{}, ports.ErrNotFound
}

func (a *fakeAccounts) Players(_ context.Context, ids ...string) (map[string]ports.Player, error) {
	out := make(map[string]ports.Player, len(ids))
	for _, id := range ids {
		if p, ok := a.byID[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (a *fakeAccounts) SessionToken(_ context.Context, userID, username string, vars map[string]string, ttl time.Duration) (string, int64, error) {
	a.sessions = append(a.sessions, vars)
	return "session-" + userID + "-" + vars[SessionVarGameID], time.Unix(0, 0).Add(ttl).Unix(), nil
}

type fakeBindings struct {
	bound map[string]string
}

func (b *fakeBindings) BindDevice(_ context.Context, gameID, userID, deviceID string) (string, bool, error) {
	if b.bound == nil {
		b.bound = map[string]string{}
	}
	key := gameID + "/" + userID
	if existing, ok := b.bound[key]; ok {
		return existing, false, nil
	}
	b.bound[key] = deviceID
	return deviceID, true, nil
}

type recordingPublisher struct {
	events []ports.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, events []ports.Event) error {
	p.events = append(p.events, events...)
	return p.err
}

func (b *fakeBindings) ResetDevice(_ context.Context, gameID, userID string) (bool, error) {
	key := gameID + "/" + userID
	if _, ok := b.bound[key]; !ok {
		return false, nil
	}
	delete(b.bound, key)
	return true, nil
}
