package v1

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rfpflow/rfpflow/internal/domain"
	"github.com/rfpflow/rfpflow/internal/workflow"
)

// DataStore abstracts the repository accessor pattern for handler testing.
// *postgres.Store and *memory.Store satisfy the parts they implement.
type DataStore interface {
	Sessions() domain.SessionRepository
	Messages() domain.MessageRepository
	Interactions() domain.InteractionRepository
	Products() domain.ProductRepository
	Users() domain.UserRepository
}

// AuthService abstracts authentication operations for handler testing.
// *auth.Service satisfies this interface.
type AuthService interface {
	Register(ctx context.Context, email, password, name string, role domain.UserRole) (*domain.User, error)
	Login(ctx context.Context, email, password string) (accessToken, refreshToken string, err error)
	RefreshToken(ctx context.Context, refreshToken string) (string, error)
	GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error)
}

// ChatEngine abstracts the workflow engine for handler testing.
// *workflow.Engine satisfies this interface.
type ChatEngine interface {
	ProcessMessage(ctx context.Context, sessionID, message string) (*workflow.Result, error)
}

// CatalogCache abstracts the Redis product cache for handler testing.
// *redis.Client satisfies this interface.
type CatalogCache interface {
	GetProduct(ctx context.Context, sku string) (*domain.Product, error)
	SetProduct(ctx context.Context, p *domain.Product, ttl time.Duration) error
	DeleteProduct(ctx context.Context, sku string) error
}
