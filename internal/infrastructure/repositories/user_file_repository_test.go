package repositories

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/birdeye-sniper/sniper_service/internal/domain/entities"
	domainerrors "github.com/birdeye-sniper/sniper_service/internal/domain/errors"
)

func newFileRepo(t *testing.T, path string) *UserFileRepository {
	t.Helper()
	repo, err := NewUserFileRepository(path, zap.NewNop())
	require.NoError(t, err)
	return repo
}

func TestUserFileRepository_CreateGetUpdate(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "users.json")
	repo := newFileRepo(t, path)

	_, err := repo.GetByID(ctx, 42)
	assert.True(t, domainerrors.IsNotFound(err))

	user := entities.NewUser(42, entities.UserProfile{Username: "ghost", FirstName: "Ghost"})
	require.NoError(t, repo.Create(ctx, user))

	got, err := repo.GetByID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "ghost", got.Username)
	assert.Equal(t, entities.SetupStepStart, got.SetupStep)
	assert.True(t, got.MonitorEnabled)

	updated, err := repo.Update(ctx, 42, entities.UserUpdate{
		Email:     entities.StringPtr("ghost@example.com"),
		SetupStep: entities.StepPtr(entities.SetupStepIP),
	})
	require.NoError(t, err)
	assert.Equal(t, "ghost@example.com", updated.Email)
	assert.Equal(t, entities.SetupStepIP, updated.SetupStep)
	assert.Equal(t, "ghost", updated.Username)

	// returned values are copies
	updated.Email = "mutated"
	again, err := repo.GetByID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "ghost@example.com", again.Email)
}

func TestUserFileRepository_UpdateCreatesMissingUser(t *testing.T) {
	ctx := context.Background()
	repo := newFileRepo(t, filepath.Join(t.TempDir(), "users.json"))

	user, err := repo.Update(ctx, 7, entities.UserUpdate{PayoutAddress: entities.StringPtr("payout")})
	require.NoError(t, err)
	assert.Equal(t, int64(7), user.ID)
	assert.Equal(t, "payout", user.PayoutAddress)
	assert.True(t, user.MonitorEnabled)
}

func TestUserFileRepository_PersistsAcrossReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "users.json")
	repo := newFileRepo(t, path)

	require.NoError(t, repo.Create(ctx, entities.NewUser(1, entities.UserProfile{Username: "a"})))
	_, err := repo.Update(ctx, 2, entities.UserUpdate{MonitorEnabled: entities.BoolPtr(false)})
	require.NoError(t, err)

	reloaded := newFileRepo(t, path)
	all, err := reloaded.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(1), all[0].ID)
	assert.Equal(t, int64(2), all[1].ID)

	active, err := reloaded.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, int64(1), active[0].ID)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestUserFileRepository_MissingMonitorFlagDefaultsToEnabled(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "users.json")
	legacy := `{
  "100": {"telegram_username": "old", "setup_step": "completed", "sol_address": "addr"},
  "200": {"id": 200, "setup_step": "email", "monitor_enabled": false}
}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	repo := newFileRepo(t, path)

	old, err := repo.GetByID(ctx, 100)
	require.NoError(t, err)
	assert.True(t, old.MonitorEnabled)
	assert.Equal(t, "addr", old.LinkedAddress)
	assert.True(t, old.IsSetupComplete())

	disabled, err := repo.GetByID(ctx, 200)
	require.NoError(t, err)
	assert.False(t, disabled.MonitorEnabled)

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, int64(100), active[0].ID)
}

func TestUserFileRepository_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewUserFileRepository(path, zap.NewNop())
	assert.Error(t, err)
}

func TestUserFileRepository_FailedWriteLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	dataDir := filepath.Join(t.TempDir(), "data")
	repo := newFileRepo(t, filepath.Join(dataDir, "users.json"))
	require.NoError(t, repo.Create(ctx, entities.NewUser(7, entities.UserProfile{Username: "seven"})))

	// a plain file where the data directory should be makes every write fail
	require.NoError(t, os.RemoveAll(dataDir))
	require.NoError(t, os.WriteFile(dataDir, []byte("x"), 0o644))

	_, err := repo.Update(ctx, 7, entities.UserUpdate{MonitorEnabled: entities.BoolPtr(false)})
	require.Error(t, err)
	got, err := repo.GetByID(ctx, 7)
	require.NoError(t, err)
	assert.True(t, got.MonitorEnabled, "failed update is not visible")

	_, err = repo.Update(ctx, 9, entities.UserUpdate{PayoutAddress: entities.StringPtr("payout")})
	require.Error(t, err)
	_, err = repo.GetByID(ctx, 9)
	assert.True(t, domainerrors.IsNotFound(err), "failed upsert is rolled back")

	require.Error(t, repo.Create(ctx, entities.NewUser(8, entities.UserProfile{Username: "eight"})))
	_, err = repo.GetByID(ctx, 8)
	assert.True(t, domainerrors.IsNotFound(err), "failed create is rolled back")

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, int64(7), active[0].ID)
}
