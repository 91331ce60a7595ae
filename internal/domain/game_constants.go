package domain

const (
	// MaxScore ends the game; round stakes are credited up to this cap.
	MaxScore = 12
	// InitialStake is what an unraised round is worth.
	InitialStake = 1
)

// Action is a non-card play token.
type Action string

const (
	ActionFold    Action = "Gu"
	ActionTruco   Action = "Tr" // raise to 3
	ActionSix     Action = "Sx" // raise to 6
	ActionNine    Action = "Nn" // raise to 9
	ActionTwelve  Action = "Tw" // raise to 12
	ActionAccept  Action = "Ys"
	ActionDecline Action = "No"
)

// raiseLadder lists raises in ascending order.
var raiseLadder = []struct {
	action Action
	value  int
}{
	{ActionTruco, 3},
	{ActionSix, 6},
	{ActionNine, 9},
	{ActionTwelve, 12},
}

// Valid reports whether a is a known action token.
func (a Action) Valid() bool {
	switch a {
	case ActionFold, ActionAccept, ActionDecline:
		return true
	}
	return a.IsRaise()
}

// IsRaise reports whether a proposes a higher stake.
func (a Action) IsRaise() bool {
	return a.RaiseValue() > 0
}

// IsAnswer reports whether a answers an outstanding raise.
func (a Action) IsAnswer() bool {
	return a == ActionAccept || a == ActionDecline
}

// RaiseValue is the stake proposed by a raise, or 0 for any other token.
func (a Action) RaiseValue() int {
	for _, rung := range raiseLadder {
		if rung.action == a {
			return rung.value
		}
	}
	return 0
}

// NextRaise returns the lowest rung strictly above stake.
func NextRaise(stake int) (Action, bool) {
	for _, rung := range raiseLadder {
		if rung.value > stake {
			return rung.action, true
		}
	}
	return "", false
}
