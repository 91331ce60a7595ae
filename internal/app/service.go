package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"truco/internal/domain"
	"truco/internal/ports"
)

// Deps are the collaborators the service talks to.
type Deps struct {
	Store    ports.GameStore
	Accounts ports.AccountPort
	// Links may be nil, which disables invite links.
	Links    *LinkService
	Bindings ports.LinkBindingPort
}

// Options tune the service. Zero values pick defaults.
type Options struct {
	Rng   *rand.Rand
	Now   func() time.Time
	NewID func() string
	// AutoFinish finishes a round in the same request as the turn that ends it.
	AutoFinish     bool
	ValidateDevice bool
	SessionTTL     time.Duration
}

// Service contains Truco use-cases over persisted games.
type Service struct {
	store    ports.GameStore
	accounts ports.AccountPort
	links    *LinkService
	bindings ports.LinkBindingPort

	mu  sync.Mutex // guards rng
	rng *rand.Rand

	now            func() time.Time
	newID          func() string
	autoFinish     bool
	validateDevice bool
	sessionTTL     time.Duration
}

// NewService constructs a Service with provided rng or a time-seeded default.
func NewService(deps Deps, opts Options) *Service {
	if opts.Rng == nil {
		opts.Rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = DefaultSessionTTL
	}
	return &Service{
		store:          deps.Store,
		accounts:       deps.Accounts,
		links:          deps.Links,
		bindings:       deps.Bindings,
		rng:            opts.Rng,
		now:            opts.Now,
		newID:          opts.NewID,
		autoFinish:     opts.AutoFinish,
		validateDevice: opts.ValidateDevice,
		sessionTTL:     opts.SessionTTL,
	}
}

// CreateGame starts a game between the caller and the named opponent and
// deals round 1 with a random starter.
func (s *Service) CreateGame(ctx context.Context, caller Caller, opponentUsername string) (*NewGameResult, []ports.Event, error) {
	opponent, err := s.accounts.FindByUsername(ctx, opponentUsername)
	if errors.Is(err, ports.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: %s", ErrOpponentNotFound, opponentUsername)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("lookup opponent: %w", err)
	}
	if opponent.ID == caller.ID {
		return nil, nil, ErrSelfOpponent
	}

	now := s.now()
	game := &domain.Game{
		ID:        s.newID(),
		Player1:   caller.ID,
		Player2:   opponent.ID,
		StartPlay: now,
		LastPlay:  now,
	}

	s.mu.Lock()
	starter := game.PlayerAt(domain.Seat(s.rng.Intn(2)))
	round := domain.NewRound(game, s.newID(), 1, starter, s.rng)
	s.mu.Unlock()

	if err := s.store.CreateGame(ctx, game, round); err != nil {
		return nil, nil, fmt.Errorf("create game: %w", err)
	}

	var links [2]string
	if s.links != nil {
		for i, playerID := range []string{game.Player1, game.Player2} {
			if links[i], err = s.links.Issue(game.ID, playerID); err != nil {
				return nil, nil, fmt.Errorf("issue game link: %w", err)
			}
		}
	}

	players, err := s.players(ctx, game.Player1, game.Player2)
	if err != nil {
		return nil, nil, err
	}
	summary := summarizeGame(game, players)
	summary.LastRoundID, summary.LastRoundSeq = round.ID, round.Seq

	events := []ports.Event{{
		Kind:       EventGameCreated,
		GameID:     game.ID,
		Recipients: []string{game.Player1, game.Player2},
		Payload: GameCreatedPayload{
			GameID:        game.ID,
			Player1:       game.Player1,
			Player2:       game.Player2,
			RoundID:       round.ID,
			StarterPlayer: round.StarterPlayer,
		},
	}}
	events = append(events, dealtEvents(round)...)

	return &NewGameResult{
		Game:        summary,
		Round:       *dealtFor(round, domain.Seat1),
		Player1Link: links[0],
		Player2Link: links[1],
	}, events, nil
}

// GameInfo returns the summary of a game the caller takes part in.
func (s *Service) GameInfo(ctx context.Context, caller Caller, gameID string) (*GameSummary, error) {
	game, _, err := s.loadGame(ctx, caller, gameID)
	if err != nil {
		return nil, err
	}
	players, err := s.players(ctx, game.Player1, game.Player2)
	if err != nil {
		return nil, err
	}
	summary := summarizeGame(game, players)

	last, err := s.store.LastRound(ctx, game.ID)
	switch {
	case err == nil:
		summary.LastRoundID, summary.LastRoundSeq = last.ID, last.Seq
	case !errors.Is(err, ports.ErrNotFound):
		return nil, fmt.Errorf("load last round: %w", err)
	}
	return &summary, nil
}

// ListGames returns the caller's games matching filter.
func (s *Service) ListGames(ctx context.Context, caller Caller, filter ports.GameFilter) ([]GameSummary, error) {
	games, err := s.store.ListGamesByPlayer(ctx, caller.ID, filter)
	if err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}

	ids := make([]string, 0, 2*len(games))
	for _, g := range games {
		ids = append(ids, g.Player1, g.Player2)
	}
	players, err := s.players(ctx, ids...)
	if err != nil {
		return nil, err
	}

	out := make([]GameSummary, 0, len(games))
	for _, g := range games {
		if caller.GameScope != "" && g.ID != caller.GameScope {
			continue
		}
		out = append(out, summarizeGame(g, players))
	}
	return out, nil
}

// Rounds returns every round of a game with the caller's own cards.
func (s *Service) Rounds(ctx context.Context, caller Caller, gameID string) ([]RoundSummary, error) {
	game, seat, err := s.loadGame(ctx, caller, gameID)
	if err != nil {
		return nil, err
	}
	rounds, err := s.store.ListRounds(ctx, game.ID)
	if err != nil {
		return nil, fmt.Errorf("list rounds: %w", err)
	}
	out := make([]RoundSummary, 0, len(rounds))
	for _, r := range rounds {
		out = append(out, summarizeRound(r, seat))
	}
	return out, nil
}

// LastRound returns the current round of a game with the caller's own cards.
func (s *Service) LastRound(ctx context.Context, caller Caller, gameID string) (*RoundSummary, error) {
	game, seat, err := s.loadGame(ctx, caller, gameID)
	if err != nil {
		return nil, err
	}
	r, err := s.store.LastRound(ctx, game.ID)
	if err != nil {
		return nil, fmt.Errorf("load last round: %w", err)
	}
	summary := summarizeRound(r, seat)
	return &summary, nil
}

// CheckRound replays a round and returns it as seen by the caller.
func (s *Service) CheckRound(ctx context.Context, caller Caller, roundID string) (*RoundView, error) {
	r, turns, seat, err := s.loadRound(ctx, caller, roundID)
	if err != nil {
		return nil, err
	}
	st, err := domain.Evaluate(r, turns)
	if err != nil {
		return nil, err
	}
	players, err := s.players(ctx, r.Player1, r.Player2)
	if err != nil {
		return nil, err
	}
	return viewRound(r, turns, &st, seat, players), nil
}

// SubmitTurn validates token against the replayed round and appends it.
// prevSeq must be the seq of the last turn the caller saw (-1 for none).
func (s *Service) SubmitTurn(ctx context.Context, caller Caller, roundID string, prevSeq int, token string) (*TurnResult, []ports.Event, error) {
	r, turns, _, err := s.loadRound(ctx, caller, roundID)
	if err != nil {
		return nil, nil, err
	}

	st, err := domain.Play(r, turns, caller.ID, prevSeq, token)
	if err != nil {
		return nil, nil, err
	}

	r.Score = st.Stake
	turn := domain.Turn{
		ID:       s.newID(),
		RoundID:  r.ID,
		Seq:      prevSeq + 1,
		PlayerID: caller.ID,
		Play:     token,
		When:     s.now(),
	}
	if err := s.store.AppendTurn(ctx, r, turn, prevSeq); err != nil {
		if errors.Is(err, ports.ErrSequenceConflict) {
			return nil, nil, fmt.Errorf("%w: %v", domain.ErrStaleSequence, err)
		}
		return nil, nil, fmt.Errorf("append turn: %w", err)
	}

	result := &TurnResult{
		TurnID:     turn.ID,
		Seq:        turn.Seq,
		NextPlayer: r.PlayerAt(st.Next),
		Stake:      st.Stake,
		Winner:     r.PlayerAt(st.Winner),
		Legal:      st.Legal,
	}
	events := []ports.Event{{
		Kind:       EventTurnPlayed,
		GameID:     r.GameID,
		Recipients: []string{r.Player1, r.Player2},
		Payload: TurnPlayedPayload{
			GameID:     r.GameID,
			RoundID:    r.ID,
			Seq:        turn.Seq,
			PlayerID:   turn.PlayerID,
			Play:       turn.Play,
			NextPlayer: result.NextPlayer,
			Stake:      st.Stake,
			Winner:     result.Winner,
		},
	}}

	if !st.Over() || !s.autoFinish {
		return result, events, nil
	}

	finish, finishEvents, err := s.finish(ctx, caller, r, &st)
	if errors.Is(err, ErrRoundFinished) {
		return result, events, nil
	}
	if err != nil {
		result.FinishErr = err
		return result, events, nil
	}
	result.Finish = finish
	return result, append(events, finishEvents...), nil
}

// FinishRound credits a concluded round to its winner and deals the next
// round unless the game has ended.
func (s *Service) FinishRound(ctx context.Context, caller Caller, roundID string) (*FinishResult, []ports.Event, error) {
	r, turns, _, err := s.loadRound(ctx, caller, roundID)
	if err != nil {
		return nil, nil, err
	}
	if r.Finished {
		return nil, nil, ErrRoundFinished
	}
	st, err := domain.Evaluate(r, turns)
	if err != nil {
		return nil, nil, err
	}
	if !st.Over() {
		return nil, nil, ErrRoundNotOver
	}
	return s.finish(ctx, caller, r, &st)
}

func (s *Service) finish(ctx context.Context, caller Caller, r *domain.Round, st *domain.RoundState) (*FinishResult, []ports.Event, error) {
	game, err := s.store.GetGame(ctx, r.GameID)
	if err != nil {
		return nil, nil, fmt.Errorf("load game: %w", err)
	}

	winner := r.PlayerAt(st.Winner)
	r.Finished = true
	r.WinnerPlayer = winner
	r.Score = st.Stake

	winnerSeat, _ := game.SeatOf(winner)
	gameOver := domain.CreditRound(game, winnerSeat, st.Stake, s.now())

	var next *domain.Round
	if !gameOver {
		s.mu.Lock()
		next = domain.NewRound(game, s.newID(), r.Seq+1, domain.NextStarter(r), s.rng)
		s.mu.Unlock()
	}

	if err := s.store.FinishRound(ctx, r, game, next); err != nil {
		if errors.Is(err, ports.ErrSequenceConflict) {
			return nil, nil, fmt.Errorf("%w: %v", ErrRoundFinished, err)
		}
		return nil, nil, fmt.Errorf("finish round: %w", err)
	}

	players, err := s.players(ctx, game.Player1, game.Player2)
	if err != nil {
		return nil, nil, err
	}
	result := &FinishResult{
		RoundID:  r.ID,
		Winner:   winner,
		Stake:    st.Stake,
		Reason:   string(st.Reason),
		GameOver: gameOver,
		Game:     summarizeGame(game, players),
	}
	result.Game.LastRoundID, result.Game.LastRoundSeq = r.ID, r.Seq

	events := []ports.Event{{
		Kind:       EventRoundFinished,
		GameID:     game.ID,
		Recipients: []string{game.Player1, game.Player2},
		Payload: RoundFinishedPayload{
			GameID:       game.ID,
			RoundID:      r.ID,
			Winner:       winner,
			Stake:        st.Stake,
			Reason:       string(st.Reason),
			Player1Score: game.Player1Score,
			Player2Score: game.Player2Score,
		},
	}}

	if next != nil {
		seat, _ := next.SeatOf(caller.ID)
		result.NextRound = dealtFor(next, seat)
		result.Game.LastRoundID, result.Game.LastRoundSeq = next.ID, next.Seq
		events = append(events, dealtEvents(next)...)
	} else {
		events = append(events, ports.Event{
			Kind:       EventGameEnded,
			GameID:     game.ID,
			Recipients: []string{game.Player1, game.Player2},
			Payload: GameEndedPayload{
				GameID:       game.ID,
				Winner:       game.WinnerPlayer,
				Player1Score: game.Player1Score,
				Player2Score: game.Player2Score,
			},
		})
	}
	return result, events, nil
}

// ConsumeLink redeems a game link and mints a session for the player the
// link was issued to, scoped to the linked game. The link alone identifies
// the player; caller is the zero Caller for server-to-server requests. When
// caller carries a session it must belong to the same player.
func (s *Service) ConsumeLink(ctx context.Context, caller Caller, token, deviceID string) (*LinkGrant, error) {
	claims, err := s.links.Verify(token)
	if err != nil {
		return nil, err
	}
	if caller.ID != "" && caller.ID != claims.PlayerID {
		return nil, ErrLinkScope
	}
	playerID := claims.PlayerID

	game, _, err := s.loadGame(ctx, Caller{ID: playerID}, claims.GameID)
	if err != nil {
		return nil, err
	}

	firstUse := false
	if s.bindings != nil && deviceID != "" {
		bound, created, err := s.bindings.BindDevice(ctx, game.ID, playerID, deviceID)
		if err != nil {
			return nil, fmt.Errorf("bind device: %w", err)
		}
		if !created && s.validateDevice && bound != deviceID {
			return nil, ErrLinkDeviceMismatch
		}
		firstUse = created
	}

	players, err := s.players(ctx, game.Player1, game.Player2)
	if err != nil {
		return nil, err
	}
	username := players[playerID].Username
	session, exp, err := s.accounts.SessionToken(ctx, playerID, username,
		map[string]string{SessionVarGameID: game.ID}, s.sessionTTL)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}

	return &LinkGrant{
		Game:          summarizeGame(game, players),
		PlayerID:      playerID,
		Username:      username,
		Session:       session,
		SessionExpiry: exp,
		FirstUse:      firstUse,
	}, nil
}

// ResetLink clears the device bound to a game link so the player can open it
// from a new device.
func (s *Service) ResetLink(ctx context.Context, token string) (*LinkReset, error) {
	if s.bindings == nil {
		return nil, ErrLinksDisabled
	}
	claims, err := s.links.Verify(token)
	if err != nil {
		return nil, err
	}
	game, _, err := s.loadGame(ctx, Caller{ID: claims.PlayerID}, claims.GameID)
	if err != nil {
		return nil, err
	}
	cleared, err := s.bindings.ResetDevice(ctx, game.ID, claims.PlayerID)
	if err != nil {
		return nil, fmt.Errorf("reset device: %w", err)
	}
	return &LinkReset{GameID: game.ID, PlayerID: claims.PlayerID, Cleared: cleared}, nil
}

func (s *Service) loadGame(ctx context.Context, caller Caller, gameID string) (*domain.Game, domain.Seat, error) {
	if caller.GameScope != "" && caller.GameScope != gameID {
		return nil, domain.SeatNone, ErrLinkScope
	}
	game, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, domain.SeatNone, fmt.Errorf("load game %s: %w", gameID, err)
	}
	seat, ok := game.SeatOf(caller.ID)
	if !ok {
		return nil, domain.SeatNone, domain.ErrNotParticipant
	}
	return game, seat, nil
}

func (s *Service) loadRound(ctx context.Context, caller Caller, roundID string) (*domain.Round, []domain.Turn, domain.Seat, error) {
	r, turns, err := s.store.GetRound(ctx, roundID)
	if err != nil {
		return nil, nil, domain.SeatNone, fmt.Errorf("load round %s: %w", roundID, err)
	}
	if caller.GameScope != "" && caller.GameScope != r.GameID {
		return nil, nil, domain.SeatNone, ErrLinkScope
	}
	seat, ok := r.SeatOf(caller.ID)
	if !ok {
		return nil, nil, domain.SeatNone, domain.ErrNotParticipant
	}
	return r, turns, seat, nil
}

func (s *Service) players(ctx context.Context, ids ...string) (map[string]ports.Player, error) {
	if s.accounts == nil || len(ids) == 0 {
		return map[string]ports.Player{}, nil
	}
	players, err := s.accounts.Players(ctx, ids...)
	if err != nil {
		return nil, fmt.Errorf("load players: %w", err)
	}
	return players, nil
}

// dealtEvents sends each player their own hand of r.
func dealtEvents(r *domain.Round) []ports.Event {
	events := make([]ports.Event, 0, 2)
	for _, seat := range []domain.Seat{domain.Seat1, domain.Seat2} {
		dealt := dealtFor(r, seat)
		events = append(events, ports.Event{
			Kind:       EventRoundDealt,
			GameID:     r.GameID,
			Recipients: []string{r.PlayerAt(seat)},
			Private:    true,
			Payload: RoundDealtPayload{
				GameID:        r.GameID,
				RoundID:       dealt.RoundID,
				Seq:           dealt.Seq,
				StarterPlayer: dealt.StarterPlayer,
				TrumpCard:     dealt.TrumpCard,
				Cards:         dealt.Cards,
			},
		})
	}
	return events
}
