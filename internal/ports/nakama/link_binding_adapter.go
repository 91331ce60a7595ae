package nakama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"

	"truco/internal/ports"
)

// LinkStorage is the subset of runtime.NakamaModule the binding adapter needs.
type LinkStorage interface {
	StorageEngine
	StorageDelete(ctx context.Context, deletes []*runtime.StorageDelete) error
}

// NakamaLinkBindingAdapter records the first device that consumed a game
// link as a write-once storage marker owned by the player.
type NakamaLinkBindingAdapter struct {
	nk  LinkStorage
	now func() time.Time
}

type linkBinding struct {
	DeviceID string `json:"device_id"`
	BoundAt  string `json:"bound_at"`
}

// NewNakamaLinkBindingAdapter creates a new link binding adapter.
func NewNakamaLinkBindingAdapter(nk LinkStorage) *NakamaLinkBindingAdapter {
	return &NakamaLinkBindingAdapter{nk: nk, now: time.Now}
}

// BindDevice writes the binding marker unless one exists, in which case the
// existing device is returned with created=false.
func (a *NakamaLinkBindingAdapter) BindDevice(ctx context.Context, gameID, userID, deviceID string) (string, bool, error) {
	if gameID == "" || userID == "" || deviceID == "" {
		return "", false, fmt.Errorf("gameID, userID and deviceID are required")
	}

	marker := linkBinding{
		DeviceID: deviceID,
		BoundAt:  a.now().UTC().Format(time.RFC3339),
	}
	value, err := json.Marshal(marker)
	if err != nil {
		return "", false, fmt.Errorf("failed to marshal link binding: %w", err)
	}

	_, err = a.nk.StorageWrite(ctx, []*runtime.StorageWrite{
		{
			Collection:      collectionLinks,
			Key:             gameID,
			UserID:          userID,
			Value:           string(value),
			Version:         "*",
			PermissionRead:  runtime.STORAGE_PERMISSION_NO_READ,
			PermissionWrite: runtime.STORAGE_PERMISSION_NO_WRITE,
		},
	})
	if err == nil {
		return deviceID, true, nil
	}
	if !errors.Is(err, runtime.ErrStorageRejectedVersion) {
		return "", false, fmt.Errorf("failed to bind link: %w", err)
	}

	objects, err := a.nk.StorageRead(ctx, []*runtime.StorageRead{
		{Collection: collectionLinks, Key: gameID, UserID: userID},
	})
	if err != nil {
		return "", false, fmt.Errorf("failed to read link binding: %w", err)
	}
	if len(objects) == 0 {
		return "", false, fmt.Errorf("link binding for game %s vanished", gameID)
	}
	var existing linkBinding
	if err := json.Unmarshal([]byte(objects[0].GetValue()), &existing); err != nil {
		return "", false, fmt.Errorf("failed to unmarshal link binding: %w", err)
	}
	return existing.DeviceID, false, nil
}

// ResetDevice deletes the binding marker. The delete is guarded by the version
// read so a binding recorded in between is left in place.
func (a *NakamaLinkBindingAdapter) ResetDevice(ctx context.Context, gameID, userID string) (bool, error) {
	if gameID == "" || userID == "" {
		return false, fmt.Errorf("gameID and userID are required")
	}

	objects, err := a.nk.StorageRead(ctx, []*runtime.StorageRead{
		{Collection: collectionLinks, Key: gameID, UserID: userID},
	})
	if err != nil {
		return false, fmt.Errorf("failed to read link binding: %w", err)
	}
	if len(objects) == 0 {
		return false, nil
	}

	err = a.nk.StorageDelete(ctx, []*runtime.StorageDelete{
		{Collection: collectionLinks, Key: gameID, UserID: userID, Version: objects[0].GetVersion()},
	})
	if err != nil {
		return false, fmt.Errorf("failed to reset link binding: %w", err)
	}
	return true, nil
}

var _ ports.LinkBindingPort = (*NakamaLinkBindingAdapter)(nil)
