package ports

import "context"

// LinkBindingPort records the first device that consumed a game link.
type LinkBindingPort interface {
	// BindDevice stores deviceID as the binding for (gameID, userID) unless one exists.
	// Returns the bound device and created=true when this call recorded it; when a
	// binding already existed, bound is the previously recorded device.
	BindDevice(ctx context.Context, gameID, userID, deviceID string) (bound string, created bool, err error)
	// ResetDevice removes the binding for (gameID, userID) so the next device to
	// consume the link is recorded. cleared is false when there was no binding.
	ResetDevice(ctx context.Context, gameID, userID string) (cleared bool, err error)
}
