package app

import (
	"time"

	"truco/internal/domain"
	"truco/internal/ports"
)

// Caller is the verified identity attached to a request.
type Caller struct {
	ID string
	// GameScope is set for sessions minted from a game link; such sessions
	// may only touch that game.
	GameScope string
}

type PlayerSummary struct {
	ID       string
	Username string
	Score    int
}

type GameSummary struct {
	ID           string
	Player1      PlayerSummary
	Player2      PlayerSummary
	StartPlay    time.Time
	LastPlay     time.Time
	EndPlay      *time.Time
	Winner       string
	LastRoundID  string
	LastRoundSeq int
}

// RoundSummary shows a round from one player's side: only the caller's
// cards are included.
type RoundSummary struct {
	ID            string
	GameID        string
	Seq           int
	StarterPlayer string
	Stake         int
	TrumpCard     string
	Cards         []string
	Finished      bool
	Winner        string
}

type TurnView struct {
	ID       string
	Seq      int
	PlayerID string
	Play     string
	When     time.Time
}

type TrickView struct {
	Player1Card string
	Player2Card string
	Winner      string // empty on a draw
}

// RoundView is the replayed state of a round as seen by one player.
type RoundView struct {
	RoundID       string
	GameID        string
	Seq           int
	Player1       ports.Player
	Player2       ports.Player
	StarterPlayer string
	NextPlayer    string
	Stake         int
	TrumpCard     string
	Cards         []string
	Remaining     []string
	Turns         []TurnView
	Tricks        []TrickView
	Winner        string
	EndReason     string
	Finished      bool
	LastSeq       int
	// Legal is only filled when the caller is next to act.
	Legal []string
}

// DealtRound is a freshly dealt round from the requesting player's side.
type DealtRound struct {
	RoundID       string
	Seq           int
	StarterPlayer string
	TrumpCard     string
	Cards         []string
}

type FinishResult struct {
	RoundID   string
	Winner    string
	Stake     int
	Reason    string
	GameOver  bool
	Game      GameSummary
	NextRound *DealtRound
}

type TurnResult struct {
	TurnID     string
	Seq        int
	NextPlayer string
	Stake      int
	Winner     string
	Legal      []string
	// Finish is set when the turn ended the round and it was finished in the same request.
	Finish *FinishResult
	// FinishErr is set when the turn ended the round but finishing it failed.
	// The turn is stored; FinishRound completes the round later.
	FinishErr error
}

type NewGameResult struct {
	Game  GameSummary
	Round DealtRound
	// One game link per seat, empty when links are disabled.
	Player1Link string
	Player2Link string
}

type LinkGrant struct {
	Game          GameSummary
	PlayerID      string
	Username      string
	Session       string
	SessionExpiry int64
	FirstUse      bool
}

type LinkReset struct {
	GameID   string
	PlayerID string
	Cleared  bool
}

func summarizeGame(g *domain.Game, players map[string]ports.Player) GameSummary {
	return GameSummary{
		ID:        g.ID,
		Player1:   PlayerSummary{ID: g.Player1, Username: players[g.Player1].Username, Score: g.Player1Score},
		Player2:   PlayerSummary{ID: g.Player2, Username: players[g.Player2].Username, Score: g.Player2Score},
		StartPlay: g.StartPlay,
		LastPlay:  g.LastPlay,
		EndPlay:   g.EndPlay,
		Winner:    g.WinnerPlayer,
	}
}

func summarizeRound(r *domain.Round, seat domain.Seat) RoundSummary {
	return RoundSummary{
		ID:            r.ID,
		GameID:        r.GameID,
		Seq:           r.Seq,
		StarterPlayer: r.StarterPlayer,
		Stake:         r.Score,
		TrumpCard:     r.TrumpCard.String(),
		Cards:         domain.CardTokens(r.Hand(seat)),
		Finished:      r.Finished,
		Winner:        r.WinnerPlayer,
	}
}

func dealtFor(r *domain.Round, seat domain.Seat) *DealtRound {
	return &DealtRound{
		RoundID:       r.ID,
		Seq:           r.Seq,
		StarterPlayer: r.StarterPlayer,
		TrumpCard:     r.TrumpCard.String(),
		Cards:         domain.CardTokens(r.Hand(seat)),
	}
}

func viewRound(r *domain.Round, turns []domain.Turn, st *domain.RoundState, seat domain.Seat, players map[string]ports.Player) *RoundView {
	view := &RoundView{
		RoundID:       r.ID,
		GameID:        r.GameID,
		Seq:           r.Seq,
		Player1:       playerOrID(players, r.Player1),
		Player2:       playerOrID(players, r.Player2),
		StarterPlayer: r.StarterPlayer,
		NextPlayer:    r.PlayerAt(st.Next),
		Stake:         st.Stake,
		TrumpCard:     r.TrumpCard.String(),
		Cards:         domain.CardTokens(r.Hand(seat)),
		Remaining:     domain.CardTokens(st.Remaining[seat]),
		Turns:         make([]TurnView, 0, len(turns)),
		Tricks:        make([]TrickView, 0, len(st.Tricks)),
		Winner:        r.PlayerAt(st.Winner),
		EndReason:     string(st.Reason),
		Finished:      r.Finished,
		LastSeq:       st.LastSeq,
		Legal:         []string{},
	}
	for _, t := range turns {
		view.Turns = append(view.Turns, TurnView{ID: t.ID, Seq: t.Seq, PlayerID: t.PlayerID, Play: t.Play, When: t.When})
	}
	for _, tr := range st.Tricks {
		view.Tricks = append(view.Tricks, TrickView{
			Player1Card: tr.Cards[domain.Seat1].String(),
			Player2Card: tr.Cards[domain.Seat2].String(),
			Winner:      r.PlayerAt(tr.Winner),
		})
	}
	if st.Next == seat {
		view.Legal = st.Legal
	}
	return view
}

func playerOrID(players map[string]ports.Player, id string) ports.Player {
	if p, ok := players[id]; ok {
		return p
	}
	return ports.Player{ID: id}
}
