package nakama

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/heroiclabs/nakama-common/api"
	"github.com/heroiclabs/nakama-common/runtime"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// noopLogger implements runtime.Logger for tests that only need to satisfy the interface.
type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}
func (noopLogger) WithField(string, interface{}) runtime.Logger {
	return noopLogger{}
}
func (noopLogger) WithFields(map[string]interface{}) runtime.Logger {
	return noopLogger{}
}
func (noopLogger) Fields() map[string]interface{} {
	return nil
}

type sentNotification struct {
	userID     string
	subject    string
	content    map[string]interface{}
	code       int
	persistent bool
}

// fakeNakama is an in-memory stand-in for the parts of runtime.NakamaModule
// the adapters use. Storage writes honour Nakama's version semantics.
type fakeNakama struct {
	mu       sync.Mutex
	objects  map[string]*api.StorageObject
	versions int
	now      time.Time

	users         []*api.User
	notifications []sentNotification
	tokens        []map[string]string

	// beforeWrite runs before a write batch is validated.
	beforeWrite func()
	readErr     error
	notifyErr   error
}

func newFakeNakama(users ...*api.User) *fakeNakama {
	return &fakeNakama{
		objects: map[string]*api.StorageObject{},
		now:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		users:   users,
	}
}

func storageKey(collection, key, userID string) string {
	return collection + "/" + userID + "/" + key
}

func (f *fakeNakama) StorageRead(ctx context.Context, reads []*runtime.StorageRead) ([]*api.StorageObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	out := make([]*api.StorageObject, 0, len(reads))
	for _, r := range reads {
		if obj, ok := f.objects[storageKey(r.Collection, r.Key, r.UserID)]; ok {
			out = append(out, obj)
		}
	}
	return out, nil
}

func (f *fakeNakama) StorageWrite(ctx context.Context, writes []*runtime.StorageWrite) ([]*api.StorageObjectAck, error) {
	if f.beforeWrite != nil {
		hook := f.beforeWrite
		f.beforeWrite = nil
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, w := range writes {
		existing, ok := f.objects[storageKey(w.Collection, w.Key, w.UserID)]
		switch {
		case w.Version == "*" && ok:
			return nil, runtime.ErrStorageRejectedVersion
		case w.Version != "" && w.Version != "*" && (!ok || existing.GetVersion() != w.Version):
			return nil, runtime.ErrStorageRejectedVersion
		}
	}

	acks := make([]*api.StorageObjectAck, 0, len(writes))
	for _, w := range writes {
		f.versions++
		version := fmt.Sprintf("v%d", f.versions)
		f.objects[storageKey(w.Collection, w.Key, w.UserID)] = &api.StorageObject{
			Collection:      w.Collection,
			Key:             w.Key,
			UserId:          w.UserID,
			Value:           w.Value,
			Version:         version,
			PermissionRead:  int32(w.PermissionRead),
			PermissionWrite: int32(w.PermissionWrite),
			UpdateTime:      timestamppb.New(f.now),
		}
		acks = append(acks, &api.StorageObjectAck{Collection: w.Collection, Key: w.Key, UserId: w.UserID, Version: version})
	}
	return acks, nil
}

func (f *fakeNakama) StorageDelete(ctx context.Context, deletes []*runtime.StorageDelete) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range deletes {
		existing, ok := f.objects[storageKey(d.Collection, d.Key, d.UserID)]
		if d.Version != "" && (!ok || existing.GetVersion() != d.Version) {
			return runtime.ErrStorageRejectedVersion
		}
	}
	for _, d := range deletes {
		delete(f.objects, storageKey(d.Collection, d.Key, d.UserID))
	}
	return nil
}

func (f *fakeNakama) UsersGetId(ctx context.Context, userIDs []string, facebookIDs []string) ([]*api.User, error) {
	var out []*api.User
	for _, id := range userIDs {
		for _, u := range f.users {
			if u.GetId() == id {
				out = append(out, u)
			}
		}
	}
	return out, nil
}

func (f *fakeNakama) UsersGetUsername(ctx context.Context, usernames []string) ([]*api.User, error) {
	var out []*api.User
	for _, name := range usernames {
		for _, u := range f.users {
			if u.GetUsername() == name {
				out = append(out, u)
			}
		}
	}
	return out, nil
}

func (f *fakeNakama) AuthenticateTokenGenerate(userID, username string, exp int64, vars map[string]string) (string, int64, error) {
	if userID == "" {
		return "", 0, errors.New("expects user id")
	}
	f.tokens = append(f.tokens, vars)
	return "session-" + userID + "-" + vars["truco_game_id"], exp, nil
}

func (f *fakeNakama) NotificationSend(ctx context.Context, userID, subject string, content map[string]interface{}, code int, sender string, persistent bool) error {
	if f.notifyErr != nil {
		return f.notifyErr
	}
	f.notifications = append(f.notifications, sentNotification{
		userID:     userID,
		subject:    subject,
		content:    content,
		code:       code,
		persistent: persistent,
	})
	return nil
}
