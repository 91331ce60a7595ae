package app

import "errors"

// Use-case errors. Engine legality errors live in the domain package.
var (
	ErrRoundNotOver       = errors.New("round has no winner yet")
	ErrRoundFinished      = errors.New("round already finished")
	ErrSelfOpponent       = errors.New("cannot play against yourself")
	ErrOpponentNotFound   = errors.New("opponent not found")
	ErrLinkInvalid        = errors.New("invalid game link")
	ErrLinkDeviceMismatch = errors.New("game link bound to another device")
	ErrLinkScope          = errors.New("session is scoped to another game")
	ErrLinksDisabled      = errors.New("game links are disabled")
)
