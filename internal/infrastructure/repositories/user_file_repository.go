package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/birdeye-sniper/sniper_service/internal/domain/entities"
	domainerrors "github.com/birdeye-sniper/sniper_service/internal/domain/errors"
)

// UserFileRepository keeps every user in one JSON document keyed by user id.
// The whole document is rewritten on each mutation.
type UserFileRepository struct {
	path   string
	logger *zap.Logger

	mu    sync.RWMutex
	users map[int64]*entities.User
}

// fileRecord lets a missing monitor_enabled field default to true
type fileRecord struct {
	entities.User
	MonitorEnabled *bool `json:"monitor_enabled"`
}

// NewUserFileRepository loads path, starting empty when it does not exist yet
func NewUserFileRepository(path string, logger *zap.Logger) (*UserFileRepository, error) {
	r := &UserFileRepository{
		path:   path,
		logger: logger,
		users:  make(map[int64]*entities.User),
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *UserFileRepository) load() error {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		r.logger.Info("User data file not found, starting empty", zap.String("path", r.path))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read user data: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var records map[string]fileRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("failed to decode user data: %w", err)
	}

	for key, rec := range records {
		user := rec.User
		user.MonitorEnabled = rec.MonitorEnabled == nil || *rec.MonitorEnabled
		if user.ID == 0 {
			id, err := strconv.ParseInt(key, 10, 64)
			if err != nil {
				r.logger.Warn("Skipping user record with invalid key", zap.String("key", key))
				continue
			}
			user.ID = id
		}
		if user.SetupStep == "" {
			user.SetupStep = entities.SetupStepStart
		}
		u := user
		r.users[u.ID] = &u
	}

	r.logger.Info("Loaded user data", zap.String("path", r.path), zap.Int("users", len(r.users)))
	return nil
}

// save writes the full mapping through a temp file and rename. Caller holds mu.
func (r *UserFileRepository) save() error {
	records := make(map[string]*entities.User, len(r.users))
	for _, u := range r.users {
		records[u.Key()] = u
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode user data: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(r.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write user data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace user data: %w", err)
	}
	return nil
}

// GetByID returns a copy of the user
func (r *UserFileRepository) GetByID(ctx context.Context, id int64) (*entities.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, domainerrors.NotFoundError("user")
	}
	return u.Clone(), nil
}

// Create stores a new user, replacing any previous record with the same id
func (r *UserFileRepository) Create(ctx context.Context, user *entities.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.commit(user.Clone()); err != nil {
		r.logger.Error("Failed to persist new user", zap.Int64("user_id", user.ID), zap.Error(err))
		return err
	}
	return nil
}

// Update applies a partial update, creating the user when missing
func (r *UserFileRepository) Update(ctx context.Context, id int64, update entities.UserUpdate) (*entities.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var next *entities.User
	if u, ok := r.users[id]; ok {
		next = u.Clone()
	} else {
		next = entities.NewUser(id, entities.UserProfile{})
	}
	update.Apply(next)

	if err := r.commit(next); err != nil {
		r.logger.Error("Failed to persist user update", zap.Int64("user_id", id), zap.Error(err))
		return nil, err
	}
	return next.Clone(), nil
}

// commit installs u and writes the document, restoring the previous record when the
// write fails. Caller holds mu.
func (r *UserFileRepository) commit(u *entities.User) error {
	prev, existed := r.users[u.ID]
	r.users[u.ID] = u
	if err := r.save(); err != nil {
		if existed {
			r.users[u.ID] = prev
		} else {
			delete(r.users, u.ID)
		}
		return err
	}
	return nil
}

// List returns every user ordered by id
func (r *UserFileRepository) List(ctx context.Context) ([]*entities.User, error) {
	return r.filter(func(*entities.User) bool { return true }), nil
}

// ListActive returns users with monitoring enabled
func (r *UserFileRepository) ListActive(ctx context.Context) ([]*entities.User, error) {
	return r.filter((*entities.User).IsActive), nil
}

func (r *UserFileRepository) filter(keep func(*entities.User) bool) []*entities.User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*entities.User, 0, len(r.users))
	for _, u := range r.users {
		if keep(u) {
			out = append(out, u.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
