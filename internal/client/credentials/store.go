// Package credentials is the typed view of the client's persisted
// authentication state: the current user profile, the last-active user
// pointer, the pending registration and per-user device credentials.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/deskauth/internal/client/models"
	"github.com/dmitrijs2005/deskauth/internal/client/repositories/metadata"
)

// Keys shared with the storage backend.
const (
	KeyCurrentUser    = "currentUser"
	KeyLastActiveUser = "lastActiveUser"
	KeyPendingUser    = "pendingVerificationUsername"
	KeyDevicePrefix   = "device:"
)

// ErrDeviceExists is returned by SaveDevice when userID already has a
// credential.
var ErrDeviceExists = errors.New("device credential already exists")

// Store wraps a metadata.Repository. Absent keys read as zero values with a
// nil error.
type Store struct {
	repo metadata.Repository
	now  func() time.Time
}

// NewStore returns a Store backed by repo.
func NewStore(repo metadata.Repository) *Store {
	return &Store{repo: repo, now: time.Now}
}

// DeviceEntry pairs a stored device credential with its owner.
type DeviceEntry struct {
	UserID     models.UserID
	Credential models.DeviceCredential
}

func deviceKey(userID models.UserID) string {
	return KeyDevicePrefix + string(userID)
}

// Profile returns the persisted current-user profile, nil when none is
// stored.
func (s *Store) Profile(ctx context.Context) (*models.UserProfile, error) {
	raw, err := s.repo.Get(ctx, KeyCurrentUser)
	if err != nil || len(raw) == 0 {
		return nil, err
	}
	var p models.UserProfile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", KeyCurrentUser, err)
	}
	return &p, nil
}

// SaveProfile overwrites the persisted current-user profile.
func (s *Store) SaveProfile(ctx context.Context, p *models.UserProfile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode %s: %w", KeyCurrentUser, err)
	}
	return s.repo.Set(ctx, KeyCurrentUser, raw)
}

// ClearProfile removes the persisted current-user profile.
func (s *Store) ClearProfile(ctx context.Context) error {
	return s.repo.Delete(ctx, KeyCurrentUser)
}

// LastUser returns the id of the last user that logged in, empty when
// unset.
func (s *Store) LastUser(ctx context.Context) (models.UserID, error) {
	raw, err := s.repo.Get(ctx, KeyLastActiveUser)
	if err != nil {
		return "", err
	}
	return models.UserID(raw), nil
}

// SetLastUser records id as the last active user.
func (s *Store) SetLastUser(ctx context.Context, id models.UserID) error {
	return s.repo.Set(ctx, KeyLastActiveUser, []byte(id))
}

// ClearLastUser forgets the last active user.
func (s *Store) ClearLastUser(ctx context.Context) error {
	return s.repo.Delete(ctx, KeyLastActiveUser)
}

// SaveSession persists the last-active pointer and the profile together,
// atomically when the backend supports batches.
func (s *Store) SaveSession(ctx context.Context, p *models.UserProfile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode %s: %w", KeyCurrentUser, err)
	}
	if b, ok := s.repo.(metadata.BatchSetter); ok {
		return b.SetMany(ctx, map[string][]byte{
			KeyLastActiveUser: []byte(p.ID),
			KeyCurrentUser:    raw,
		})
	}
	if err := s.SetLastUser(ctx, p.ID); err != nil {
		return err
	}
	return s.repo.Set(ctx, KeyCurrentUser, raw)
}

// Pending returns the username awaiting verification, empty when none.
func (s *Store) Pending(ctx context.Context) (string, error) {
	raw, err := s.repo.Get(ctx, KeyPendingUser)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// SetPending records username as awaiting verification.
func (s *Store) SetPending(ctx context.Context, username string) error {
	return s.repo.Set(ctx, KeyPendingUser, []byte(username))
}

// ClearPending forgets the pending registration.
func (s *Store) ClearPending(ctx context.Context) error {
	return s.repo.Delete(ctx, KeyPendingUser)
}

// Device returns the device credential of userID, nil when none is stored.
func (s *Store) Device(ctx context.Context, userID models.UserID) (*models.DeviceCredential, error) {
	raw, err := s.repo.Get(ctx, deviceKey(userID))
	if err != nil || len(raw) == 0 {
		return nil, err
	}
	var d models.DeviceCredential
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decode device credential for %s: %w", userID, err)
	}
	return &d, nil
}

// SaveDevice stores the credential for userID. It refuses to replace an
// existing one with ErrDeviceExists.
func (s *Store) SaveDevice(ctx context.Context, userID models.UserID, d models.DeviceCredential) error {
	existing, err := s.Device(ctx, userID)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w for user %s", ErrDeviceExists, userID)
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = s.now().UTC()
	}
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode device credential: %w", err)
	}
	return s.repo.Set(ctx, deviceKey(userID), raw)
}

// DeleteDevice removes the device credential of userID. Deleting a missing
// credential is not an error.
func (s *Store) DeleteDevice(ctx context.Context, userID models.UserID) error {
	return s.repo.Delete(ctx, deviceKey(userID))
}

// Devices lists every stored device credential ordered by user id.
func (s *Store) Devices(ctx context.Context) ([]DeviceEntry, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []DeviceEntry
	for k, raw := range all {
		userID, ok := strings.CutPrefix(k, KeyDevicePrefix)
		if !ok {
			continue
		}
		var d models.DeviceCredential
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("decode device credential for %s: %w", userID, err)
		}
		out = append(out, DeviceEntry{UserID: models.UserID(userID), Credential: d})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// Wipe removes all persisted state including device credentials. It backs
// the CLI's wipe command.
func (s *Store) Wipe(ctx context.Context) error {
	return s.repo.Clear(ctx)
}
