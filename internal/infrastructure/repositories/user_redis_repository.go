package repositories

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/birdeye-sniper/sniper_service/internal/domain/entities"
	domainerrors "github.com/birdeye-sniper/sniper_service/internal/domain/errors"
	"github.com/birdeye-sniper/sniper_service/internal/infrastructure/cache"
)

// UserRedisRepository stores each user as a JSON value plus an id index set
type UserRedisRepository struct {
	client cache.RedisClient
	prefix string
	logger *zap.Logger
}

// NewUserRedisRepository creates a new Redis backed user repository
func NewUserRedisRepository(client cache.RedisClient, prefix string, logger *zap.Logger) *UserRedisRepository {
	if prefix == "" {
		prefix = "sniper"
	}
	return &UserRedisRepository{client: client, prefix: prefix, logger: logger}
}

func (r *UserRedisRepository) userKey(id int64) string {
	return fmt.Sprintf("%s:user:%d", r.prefix, id)
}

func (r *UserRedisRepository) indexKey() string {
	return r.prefix + ":users"
}

// GetByID retrieves a user by id
func (r *UserRedisRepository) GetByID(ctx context.Context, id int64) (*entities.User, error) {
	var user entities.User
	if err := r.client.Get(ctx, r.userKey(id), &user); err != nil {
		if domainerrors.IsNotFound(err) {
			return nil, domainerrors.NotFoundError("user")
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// Create stores a user and indexes its id
func (r *UserRedisRepository) Create(ctx context.Context, user *entities.User) error {
	if err := r.client.Set(ctx, r.userKey(user.ID), user, 0); err != nil {
		r.logger.Error("Failed to create user", zap.Int64("user_id", user.ID), zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}
	if err := r.client.AddToSet(ctx, r.indexKey(), strconv.FormatInt(user.ID, 10)); err != nil {
		return fmt.Errorf("failed to index user: %w", err)
	}
	return nil
}

// Update applies a partial update, creating the user when missing
func (r *UserRedisRepository) Update(ctx context.Context, id int64, update entities.UserUpdate) (*entities.User, error) {
	user, err := r.GetByID(ctx, id)
	if err != nil {
		if !domainerrors.IsNotFound(err) {
			return nil, err
		}
		user = entities.NewUser(id, entities.UserProfile{})
	}

	update.Apply(user)
	if err := r.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// List returns every indexed user ordered by id
func (r *UserRedisRepository) List(ctx context.Context) ([]*entities.User, error) {
	ids, err := r.client.SetMembers(ctx, r.indexKey())
	if err != nil {
		return nil, fmt.Errorf("failed to list user ids: %w", err)
	}

	users := make([]*entities.User, 0, len(ids))
	for _, raw := range ids {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			r.logger.Warn("Skipping invalid user id in index", zap.String("id", raw))
			continue
		}
		user, err := r.GetByID(ctx, id)
		if err != nil {
			if domainerrors.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		users = append(users, user)
	}

	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

// ListActive returns users with monitoring enabled
func (r *UserRedisRepository) ListActive(ctx context.Context) ([]*entities.User, error) {
	users, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	active := users[:0]
	for _, u := range users {
		if u.IsActive() {
			active = append(active, u)
		}
	}
	return active, nil
}
