package nakama

import (
	"errors"

	"github.com/heroiclabs/nakama-common/runtime"

	"truco/internal/app"
	"truco/internal/domain"
	"truco/internal/ports"
)

var (
	errUnauthenticated = runtime.NewError("no user session", codeUnauthenticated)
	errServerOnly      = runtime.NewError("requires the server key", codePermissionDenied)
	errInvalidPayload  = runtime.NewError("invalid payload", codeInvalidArgument)
)

// toRuntimeError maps service errors onto gRPC-coded runtime errors.
// Unexpected errors are logged and hidden behind a generic message.
func toRuntimeError(logger runtime.Logger, op string, err error) error {
	switch {
	case errors.Is(err, ports.ErrNotFound),
		errors.Is(err, app.ErrOpponentNotFound):
		return runtime.NewError(err.Error(), codeNotFound)

	case errors.Is(err, domain.ErrNotParticipant),
		errors.Is(err, app.ErrLinkScope),
		errors.Is(err, app.ErrLinkDeviceMismatch):
		logger.Warn("%s: denied: %v", op, err)
		return runtime.NewError(err.Error(), codePermissionDenied)

	case errors.Is(err, app.ErrLinkInvalid):
		logger.Warn("%s: %v", op, err)
		return runtime.NewError(err.Error(), codeUnauthenticated)

	case errors.Is(err, domain.ErrStaleSequence),
		errors.Is(err, app.ErrRoundFinished):
		return runtime.NewError(err.Error(), codeAborted)

	case errors.Is(err, domain.ErrNotYourTurn),
		errors.Is(err, domain.ErrIllegalToken),
		errors.Is(err, domain.ErrRoundAlreadyOver),
		errors.Is(err, domain.ErrAnswerRequired),
		errors.Is(err, domain.ErrRaiseNotAscending),
		errors.Is(err, app.ErrRoundNotOver),
		errors.Is(err, app.ErrSelfOpponent),
		errors.Is(err, app.ErrLinksDisabled):
		logger.Warn("%s: rejected: %v", op, err)
		return runtime.NewError(err.Error(), codeFailedPrecondition)

	default:
		logger.Error("%s: %v", op, err)
		return runtime.NewError("internal error", codeInternal)
	}
}
