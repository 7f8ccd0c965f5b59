package users

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/MimeLyc/cloudmaint/internal/persistence"
)

var ErrUserNotFound = errors.New("user not found")

var validUID = regexp.MustCompile(`^[a-zA-Z0-9 _.@\-']+$`)

type User struct {
	UID         string `json:"uid"`
	DisplayName string `json:"display_name"`
	// Quota in bytes, 0 means unlimited.
	Quota int64 `json:"quota"`
}

// Store is the slice of the sqlite store the manager needs.
type Store interface {
	CreateUser(ctx context.Context, user persistence.UserRecord) error
	GetUser(ctx context.Context, uid string) (persistence.UserRecord, bool, error)
	UserExists(ctx context.Context, uid string) (bool, error)
	ListUsers(ctx context.Context) ([]persistence.UserRecord, error)
	GetPreference(ctx context.Context, uid, app, key string) (string, bool, error)
	SetPreference(ctx context.Context, uid, app, key, value string) error
}

type Manager struct {
	store Store
}

func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

func (m *Manager) UserExists(ctx context.Context, uid string) (bool, error) {
	if strings.TrimSpace(uid) == "" {
		return false, nil
	}
	return m.store.UserExists(ctx, uid)
}

func (m *Manager) Get(ctx context.Context, uid string) (User, error) {
	rec, ok, err := m.store.GetUser(ctx, uid)
	if err != nil {
		return User{}, fmt.Errorf("load user %s: %w", uid, err)
	}
	if !ok {
		return User{}, fmt.Errorf("%s: %w", uid, ErrUserNotFound)
	}
	return fromRecord(rec), nil
}

// Create adds or updates an account. The uid doubles as the name of the
// user's data directory, so path separators are rejected.
func (m *Manager) Create(ctx context.Context, user User) error {
	if !validUID.MatchString(user.UID) || user.UID == "." || user.UID == ".." {
		return fmt.Errorf("invalid uid %q", user.UID)
	}
	if user.Quota < 0 {
		return fmt.Errorf("quota must not be negative, got %d", user.Quota)
	}
	return m.store.CreateUser(ctx, persistence.UserRecord{
		UID:         user.UID,
		DisplayName: user.DisplayName,
		Quota:       user.Quota,
	})
}

func (m *Manager) List(ctx context.Context) ([]User, error) {
	records, err := m.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	ret := make([]User, 0, len(records))
	for _, rec := range records {
		ret = append(ret, fromRecord(rec))
	}
	return ret, nil
}

// Quota returns the user's quota in bytes; unknown users have none.
func (m *Manager) Quota(ctx context.Context, uid string) (int64, error) {
	user, err := m.Get(ctx, uid)
	if errors.Is(err, ErrUserNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return user.Quota, nil
}

// UserValue reads a preference such as core.lang.
func (m *Manager) UserValue(ctx context.Context, uid, app, key string) (string, bool, error) {
	return m.store.GetPreference(ctx, uid, app, key)
}

// SetUserValue stores a preference of an existing user.
func (m *Manager) SetUserValue(ctx context.Context, uid, app, key, value string) error {
	exists, err := m.UserExists(ctx, uid)
	if err != nil {
		return fmt.Errorf("check user %s: %w", uid, err)
	}
	if !exists {
		return fmt.Errorf("%s: %w", uid, ErrUserNotFound)
	}
	return m.store.SetPreference(ctx, uid, app, key, value)
}

func fromRecord(rec persistence.UserRecord) User {
	return User{UID: rec.UID, DisplayName: rec.DisplayName, Quota: rec.Quota}
}
