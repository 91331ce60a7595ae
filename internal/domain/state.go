package domain

import "time"

// Seat identifies one side of a game. Player 1 is seat 0.
type Seat int

const (
	// SeatNone marks a draw, a missing winner, or nobody to act.
	SeatNone Seat = -1
	Seat1    Seat = 0
	Seat2    Seat = 1
)

// Other returns the opposing seat.
func (s Seat) Other() Seat {
	switch s {
	case Seat1:
		return Seat2
	case Seat2:
		return Seat1
	default:
		return SeatNone
	}
}

// Game is the aggregate for one two-player match.
type Game struct {
	ID           string
	Player1      string
	Player2      string
	Player1Score int
	Player2Score int
	StartPlay    time.Time
	LastPlay     time.Time
	EndPlay      *time.Time // nil until a player reaches MaxScore
	WinnerPlayer string     // empty until the game ends

	// Version is an opaque token used by stores for conditional updates.
	Version string
}

// SeatOf reports which seat playerID occupies.
func (g *Game) SeatOf(playerID string) (Seat, bool) {
	return seatOf(g.Player1, g.Player2, playerID)
}

// PlayerAt returns the player id at seat.
func (g *Game) PlayerAt(seat Seat) string {
	return playerAt(g.Player1, g.Player2, seat)
}

// Score returns the cumulative score at seat.
func (g *Game) Score(seat Seat) int {
	if seat == Seat1 {
		return g.Player1Score
	}
	return g.Player2Score
}

// Over reports whether the game has ended.
func (g *Game) Over() bool {
	return g.EndPlay != nil
}

// Round is one deal within a game.
type Round struct {
	ID            string
	GameID        string
	Seq           int // 1-based
	Player1       string
	Player2       string
	Player1Cards  []Card
	Player2Cards  []Card
	TrumpCard     Card
	StarterPlayer string
	Score         int // current stake
	Finished      bool
	WinnerPlayer  string

	// Version is an opaque token used by stores for conditional updates.
	Version string
}

// SeatOf reports which seat playerID occupies.
func (r *Round) SeatOf(playerID string) (Seat, bool) {
	return seatOf(r.Player1, r.Player2, playerID)
}

// PlayerAt returns the player id at seat.
func (r *Round) PlayerAt(seat Seat) string {
	return playerAt(r.Player1, r.Player2, seat)
}

// Hand returns the cards dealt to seat.
func (r *Round) Hand(seat Seat) []Card {
	if seat == Seat1 {
		return r.Player1Cards
	}
	return r.Player2Cards
}

// StarterSeat returns the seat of the player who acts first.
func (r *Round) StarterSeat() Seat {
	seat, ok := r.SeatOf(r.StarterPlayer)
	if !ok {
		return Seat1
	}
	return seat
}

// Turn is one append-only entry of a round's play log.
type Turn struct {
	ID       string
	RoundID  string
	Seq      int // 0-based, gapless
	PlayerID string
	Play     string // card token or Action
	When     time.Time
}

func seatOf(player1, player2, playerID string) (Seat, bool) {
	switch playerID {
	case "":
		return SeatNone, false
	case player1:
		return Seat1, true
	case player2:
		return Seat2, true
	default:
		return SeatNone, false
	}
}

func playerAt(player1, player2 string, seat Seat) string {
	switch seat {
	case Seat1:
		return player1
	case Seat2:
		return player2
	default:
		return ""
	}
}
