package domain

import "errors"

// Legality errors returned by CheckPlay. Callers match them with errors.Is;
// the wrapped message carries the offending token where useful.
var (
	ErrNotParticipant    = errors.New("caller is not a participant")
	ErrStaleSequence     = errors.New("stale turn sequence")
	ErrNotYourTurn       = errors.New("not your turn")
	ErrIllegalToken      = errors.New("illegal token")
	ErrRoundAlreadyOver  = errors.New("round already over")
	ErrAnswerRequired    = errors.New("outstanding raise must be answered")
	ErrRaiseNotAscending = errors.New("raise does not exceed current stake")
)

// ErrCorruptLog reports a persisted turn log that cannot be replayed.
var ErrCorruptLog = errors.New("corrupt turn log")
