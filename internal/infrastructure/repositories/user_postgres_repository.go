package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/birdeye-sniper/sniper_service/internal/domain/entities"
	domainerrors "github.com/birdeye-sniper/sniper_service/internal/domain/errors"
	"github.com/birdeye-sniper/sniper_service/internal/infrastructure/database"
)

const userColumns = `id, username, first_name, last_name, email, ip, setup_step, monitor_enabled,
	linked_address, payout_address, wallet_generated, created_at, updated_at, setup_completed_at`

const upsertUserQuery = `
	INSERT INTO bot_users (` + userColumns + `)
	VALUES (:id, :username, :first_name, :last_name, :email, :ip, :setup_step, :monitor_enabled,
		:linked_address, :payout_address, :wallet_generated, :created_at, :updated_at, :setup_completed_at)
	ON CONFLICT (id) DO UPDATE SET
		username = EXCLUDED.username,
		first_name = EXCLUDED.first_name,
		last_name = EXCLUDED.last_name,
		email = EXCLUDED.email,
		ip = EXCLUDED.ip,
		setup_step = EXCLUDED.setup_step,
		monitor_enabled = EXCLUDED.monitor_enabled,
		linked_address = EXCLUDED.linked_address,
		payout_address = EXCLUDED.payout_address,
		wallet_generated = EXCLUDED.wallet_generated,
		updated_at = EXCLUDED.updated_at,
		setup_completed_at = EXCLUDED.setup_completed_at`

// UserPostgresRepository implements the user repository on PostgreSQL
type UserPostgresRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewUserPostgresRepository creates a new PostgreSQL user repository
func NewUserPostgresRepository(db *sqlx.DB, logger *zap.Logger) *UserPostgresRepository {
	return &UserPostgresRepository{db: db, logger: logger}
}

// GetByID retrieves a user by id
func (r *UserPostgresRepository) GetByID(ctx context.Context, id int64) (*entities.User, error) {
	var user entities.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM bot_users WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainerrors.NotFoundError("user")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// Create inserts or replaces a user
func (r *UserPostgresRepository) Create(ctx context.Context, user *entities.User) error {
	if _, err := r.db.NamedExecContext(ctx, upsertUserQuery, user); err != nil {
		r.logger.Error("Failed to create user", zap.Int64("user_id", user.ID), zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// Update applies a partial update under a row lock, creating the user when missing
func (r *UserPostgresRepository) Update(ctx context.Context, id int64, update entities.UserUpdate) (*entities.User, error) {
	var user *entities.User
	err := database.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		var existing entities.User
		err := tx.GetContext(ctx, &existing, `SELECT `+userColumns+` FROM bot_users WHERE id = $1 FOR UPDATE`, id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			user = entities.NewUser(id, entities.UserProfile{})
		case err != nil:
			return fmt.Errorf("failed to load user: %w", err)
		default:
			user = &existing
		}

		update.Apply(user)
		if _, err := tx.NamedExecContext(ctx, upsertUserQuery, user); err != nil {
			return fmt.Errorf("failed to update user: %w", err)
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to update user", zap.Int64("user_id", id), zap.Error(err))
		return nil, err
	}
	return user, nil
}

// List returns every user ordered by id
func (r *UserPostgresRepository) List(ctx context.Context) ([]*entities.User, error) {
	var users []*entities.User
	if err := r.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM bot_users ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// ListActive returns users with monitoring enabled
func (r *UserPostgresRepository) ListActive(ctx context.Context) ([]*entities.User, error) {
	var users []*entities.User
	err := r.db.SelectContext(ctx, &users,
		`SELECT `+userColumns+` FROM bot_users WHERE monitor_enabled = TRUE ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}
	return users, nil
}
