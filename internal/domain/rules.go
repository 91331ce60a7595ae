package domain

import (
	"math/rand"
	"time"
)

// manilhaTier ranks every manilha above all ordinary ranks (0..9).
const manilhaTier = rankCount

// ManilhaRank returns the rank that follows the trump indicator cyclically.
func ManilhaRank(trump Card) Rank {
	return (trump.Rank + 1) % rankCount
}

// IsManilha reports whether c outranks every ordinary card under trump.
func IsManilha(c, trump Card) bool {
	return c.Rank == ManilhaRank(trump)
}

// CardStrength returns the strength of c relative to trump. Cards compare
// by tier first; tiebreak only differs between manilhas (suit order).
func CardStrength(c, trump Card) (tier, tiebreak int) {
	if IsManilha(c, trump) {
		return manilhaTier, int(c.Suit)
	}
	return int(c.Rank), 0
}

// CompareCards returns >0 when a beats b, <0 when b beats a and 0 on a
// rank tie between ordinary cards.
func CompareCards(a, b, trump Card) int {
	at, ab := CardStrength(a, trump)
	bt, bb := CardStrength(b, trump)
	if at != bt {
		return at - bt
	}
	return ab - bb
}

// RoundWinner decides a round from its sub-trick outcomes (SeatNone is a
// draw). It returns SeatNone, false while the round is still open.
//
// Two wins take the round. A draw defers to the first decisive trick: a
// decisive first trick followed by a draw wins, a drawn first trick goes to
// the next decisive one, and a split followed by a draw goes to the first
// trick's winner. Three draws go to the starter.
func RoundWinner(tricks []Seat, starter Seat) (Seat, bool) {
	var wins [2]int
	for _, t := range tricks {
		if t == SeatNone {
			continue
		}
		wins[t]++
		if wins[t] == 2 {
			return t, true
		}
	}

	if len(tricks) < 2 {
		return SeatNone, false
	}
	first, second := tricks[0], tricks[1]
	switch {
	case first != SeatNone && second == SeatNone:
		return first, true
	case first == SeatNone && second != SeatNone:
		return second, true
	}

	if len(tricks) < 3 {
		return SeatNone, false
	}
	third := tricks[2]
	switch {
	case third != SeatNone:
		return third, true
	case first != SeatNone:
		return first, true
	default:
		return starter, true
	}
}

// CreditRound adds stake to the winner's score, capped at MaxScore, and
// closes the game when the cap is reached. It reports whether the game ended.
func CreditRound(g *Game, winner Seat, stake int, now time.Time) bool {
	switch winner {
	case Seat1:
		g.Player1Score = min(g.Player1Score+stake, MaxScore)
	case Seat2:
		g.Player2Score = min(g.Player2Score+stake, MaxScore)
	}
	g.LastPlay = now

	if g.Player1Score == MaxScore || g.Player2Score == MaxScore {
		end := now
		g.EndPlay = &end
		g.WinnerPlayer = g.PlayerAt(winner)
		return true
	}
	return false
}

// NewRound deals round seq of g with the given starter.
func NewRound(g *Game, id string, seq int, starter string, rng *rand.Rand) *Round {
	deal := DealRound(rng)
	return &Round{
		ID:            id,
		GameID:        g.ID,
		Seq:           seq,
		Player1:       g.Player1,
		Player2:       g.Player2,
		Player1Cards:  deal.Player1,
		Player2Cards:  deal.Player2,
		TrumpCard:     deal.Trump,
		StarterPlayer: starter,
		Score:         InitialStake,
	}
}

// NextStarter returns the player who did not start r.
func NextStarter(r *Round) string {
	return r.PlayerAt(r.StarterSeat().Other())
}
