package domain

import "fmt"

// EndReason explains how a round concluded.
type EndReason string

const (
	EndNone    EndReason = ""
	EndTricks  EndReason = "tricks"
	EndFold    EndReason = "fold"
	EndDecline EndReason = "decline"
)

// Trick is one resolved sub-trick. Winner is SeatNone on a rank tie.
type Trick struct {
	Cards  [2]Card
	Winner Seat
}

// RoundState is the server-authoritative view of a round derived from its
// turn log. It is a value: Evaluate builds a fresh one on every call.
type RoundState struct {
	Remaining [2][]Card
	// Table holds the card each seat has on the table for the open trick.
	Table  [2]*Card
	Tricks []Trick

	Stake    int
	Raise    Action // outstanding raise awaiting an answer, empty if none
	RaisedBy Seat

	Next   Seat // SeatNone once the round is over
	Winner Seat
	Reason EndReason

	// LastSeq is the seq of the last replayed turn, -1 for an empty log.
	LastSeq  int
	LastPlay string

	Legal []string
}

// Over reports whether the round has a winner.
func (s *RoundState) Over() bool {
	return s.Winner != SeatNone
}

// TrickWinners returns the outcome of each resolved sub-trick.
func (s *RoundState) TrickWinners() []Seat {
	out := make([]Seat, 0, len(s.Tricks))
	for _, t := range s.Tricks {
		out = append(out, t.Winner)
	}
	return out
}

// Evaluate replays turns, ordered by seq, over the deal in r.
func Evaluate(r *Round, turns []Turn) (RoundState, error) {
	st := newRoundState(r)
	for i, t := range turns {
		if t.Seq != i {
			return RoundState{}, fmt.Errorf("%w: turn %d has seq %d", ErrCorruptLog, i, t.Seq)
		}
		if st.Over() {
			return RoundState{}, fmt.Errorf("%w: turn %d after round end", ErrCorruptLog, t.Seq)
		}
		seat, ok := r.SeatOf(t.PlayerID)
		if !ok {
			return RoundState{}, fmt.Errorf("%w: turn %d by non-participant %q", ErrCorruptLog, t.Seq, t.PlayerID)
		}
		if err := st.apply(r, seat, t.Play); err != nil {
			return RoundState{}, fmt.Errorf("%w: turn %d: %v", ErrCorruptLog, t.Seq, err)
		}
		st.LastSeq = t.Seq
		st.LastPlay = t.Play
	}
	st.Legal = st.legalActions()
	return st, nil
}

// CheckPlay validates that playerID may submit token on top of the state
// whose last persisted turn is prevSeq.
func (s *RoundState) CheckPlay(r *Round, playerID string, prevSeq int, token string) error {
	seat, ok := r.SeatOf(playerID)
	if !ok {
		return ErrNotParticipant
	}
	if r.Finished || s.Over() {
		return ErrRoundAlreadyOver
	}
	if prevSeq != s.LastSeq {
		return fmt.Errorf("%w: expected %d, got %d", ErrStaleSequence, s.LastSeq, prevSeq)
	}
	if s.Next != seat {
		return ErrNotYourTurn
	}

	action := Action(token)
	if !action.Valid() {
		card, err := ParseCard(token)
		if err != nil {
			return fmt.Errorf("%w: %q", ErrIllegalToken, token)
		}
		if !ContainsCard(r.Hand(seat), card) {
			return fmt.Errorf("%w: %s was not dealt to caller", ErrIllegalToken, token)
		}
		if !ContainsCard(s.Remaining[seat], card) {
			return fmt.Errorf("%w: %s already played", ErrIllegalToken, token)
		}
		if s.Raise != "" {
			return ErrAnswerRequired
		}
		return nil
	}

	if action.IsAnswer() && s.Raise == "" {
		return fmt.Errorf("%w: no raise to answer", ErrIllegalToken)
	}
	if action.IsRaise() {
		v := action.RaiseValue()
		if v <= s.Stake || (s.Raise != "" && v <= s.Raise.RaiseValue()) {
			return fmt.Errorf("%w: %s", ErrRaiseNotAscending, token)
		}
	}
	if !s.allows(token) {
		return fmt.Errorf("%w: %q", ErrIllegalToken, token)
	}
	return nil
}

// Play validates token against the replayed state and returns the state
// after it. Neither r nor turns are modified.
func Play(r *Round, turns []Turn, playerID string, prevSeq int, token string) (RoundState, error) {
	st, err := Evaluate(r, turns)
	if err != nil {
		return RoundState{}, err
	}
	if err := st.CheckPlay(r, playerID, prevSeq, token); err != nil {
		return RoundState{}, err
	}
	seat, _ := r.SeatOf(playerID)
	if err := st.apply(r, seat, token); err != nil {
		return RoundState{}, err
	}
	st.LastSeq = prevSeq + 1
	st.LastPlay = token
	st.Legal = st.legalActions()
	return st, nil
}

// newRoundState starts the fold from the deal. The stake is derived from the
// log, never read back from r.Score.
func newRoundState(r *Round) RoundState {
	return RoundState{
		Remaining: [2][]Card{
			append([]Card(nil), r.Player1Cards...),
			append([]Card(nil), r.Player2Cards...),
		},
		Stake:    InitialStake,
		RaisedBy: SeatNone,
		Next:     r.StarterSeat(),
		Winner:   SeatNone,
		LastSeq:  -1,
	}
}

// apply folds one already-validated play into the state.
func (s *RoundState) apply(r *Round, seat Seat, token string) error {
	action := Action(token)
	switch {
	case action == ActionFold:
		s.finish(seat.Other(), EndFold)

	case action == ActionDecline:
		if s.Raise == "" {
			return fmt.Errorf("decline with no outstanding raise")
		}
		s.finish(s.RaisedBy, EndDecline)

	case action == ActionAccept:
		if s.Raise == "" {
			return fmt.Errorf("accept with no outstanding raise")
		}
		s.Stake = s.Raise.RaiseValue()
		s.Raise, s.RaisedBy = "", SeatNone
		s.Next = s.leaderAfterAccept(seat)

	case action.IsRaise():
		if s.Raise != "" {
			// Counter-raise: the lower proposal stands as accepted.
			s.Stake = s.Raise.RaiseValue()
		}
		s.Raise, s.RaisedBy = action, seat
		s.Next = seat.Other()

	default:
		card, err := ParseCard(token)
		if err != nil {
			return err
		}
		if !ContainsCard(s.Remaining[seat], card) {
			return fmt.Errorf("card %s not in hand", token)
		}
		s.Remaining[seat] = RemoveCards(s.Remaining[seat], card)
		s.Table[seat] = &card
		s.resolveTrick(r)
	}
	return nil
}

func (s *RoundState) resolveTrick(r *Round) {
	switch {
	case s.Table[Seat1] == nil && s.Table[Seat2] == nil:
		return
	case s.Table[Seat1] == nil:
		s.Next = Seat1
		return
	case s.Table[Seat2] == nil:
		s.Next = Seat2
		return
	}

	trick := Trick{Cards: [2]Card{*s.Table[Seat1], *s.Table[Seat2]}, Winner: SeatNone}
	switch cmp := CompareCards(trick.Cards[Seat1], trick.Cards[Seat2], r.TrumpCard); {
	case cmp > 0:
		trick.Winner = Seat1
	case cmp < 0:
		trick.Winner = Seat2
	}
	s.Tricks = append(s.Tricks, trick)
	s.Table = [2]*Card{}

	s.Next = trick.Winner
	if s.Next == SeatNone {
		s.Next = r.StarterSeat()
	}
	if winner, ok := RoundWinner(s.TrickWinners(), r.StarterSeat()); ok {
		s.finish(winner, EndTricks)
	}
}

// leaderAfterAccept picks who moves once a raise is accepted: the acceptor
// when both hold the same number of cards, otherwise the seat still owing a
// card to the open trick.
//
// With unequal counts this is the seat holding MORE cards, not fewer. The
// seat with fewer cards already has its card on the table; moving it again
// would put a second card from the same seat into one trick.
func (s *RoundState) leaderAfterAccept(acceptor Seat) Seat {
	n1, n2 := len(s.Remaining[Seat1]), len(s.Remaining[Seat2])
	switch {
	case n1 == n2:
		return acceptor
	case n1 > n2:
		return Seat1
	default:
		return Seat2
	}
}

func (s *RoundState) finish(winner Seat, reason EndReason) {
	s.Winner = winner
	s.Reason = reason
	s.Next = SeatNone
	s.Raise, s.RaisedBy = "", SeatNone
}

func (s *RoundState) legalActions() []string {
	if s.Over() || s.Next == SeatNone {
		return []string{}
	}
	if s.Raise != "" {
		legal := []string{string(ActionAccept), string(ActionDecline)}
		if next, ok := NextRaise(s.Raise.RaiseValue()); ok {
			legal = append(legal, string(next))
		}
		return append(legal, string(ActionFold))
	}

	legal := CardTokens(s.Remaining[s.Next])
	if s.LastPlay != string(ActionAccept) && s.Stake < MaxScore {
		if next, ok := NextRaise(s.Stake); ok {
			legal = append(legal, string(next))
		}
	}
	return append(legal, string(ActionFold))
}

func (s *RoundState) allows(token string) bool {
	for _, t := range s.Legal {
		if t == token {
			return true
		}
	}
	return false
}
