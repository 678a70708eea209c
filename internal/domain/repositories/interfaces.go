package repositories

import (
	"context"

	"github.com/birdeye-sniper/sniper_service/internal/domain/entities"
)

// UserRepository defines the interface for user profile persistence.
// GetByID returns an error matching errors.ErrNotFound for unknown users.
// Update creates the user when it does not exist yet.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*entities.User, error)
	Create(ctx context.Context, user *entities.User) error
	Update(ctx context.Context, id int64, update entities.UserUpdate) (*entities.User, error)
	List(ctx context.Context) ([]*entities.User, error)
	ListActive(ctx context.Context) ([]*entities.User, error)
}
