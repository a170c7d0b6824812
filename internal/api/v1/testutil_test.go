package v1_test

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rfpflow/rfpflow/internal/domain"
	"github.com/rfpflow/rfpflow/internal/server/middleware"
	"github.com/rfpflow/rfpflow/internal/workflow"
)

// ---------------------------------------------------------------------------
// Context helpers — inject user/role into context for DoCtx
// ---------------------------------------------------------------------------

func userCtx(userID uuid.UUID, role string) context.Context {
	ctx := context.Background()
	ctx = context.WithValue(ctx, middleware.ContextKeyUserID, userID)
	ctx = context.WithValue(ctx, middleware.ContextKeyUserRole, role)
	return ctx
}

func salesCtx() context.Context   { return userCtx(uuid.New(), "sales") }
func managerCtx() context.Context { return userCtx(uuid.New(), "manager") }
func adminCtx() context.Context   { return userCtx(uuid.New(), "admin") }

// ---------------------------------------------------------------------------
// Mock DataStore
// ---------------------------------------------------------------------------

type mockDataStore struct {
	sessions     domain.SessionRepository
	messages     domain.MessageRepository
	interactions domain.InteractionRepository
	products     domain.ProductRepository
	users        domain.UserRepository
}

func (m *mockDataStore) Sessions() domain.SessionRepository         { return m.sessions }
func (m *mockDataStore) Messages() domain.MessageRepository         { return m.messages }
func (m *mockDataStore) Interactions() domain.InteractionRepository { return m.interactions }
func (m *mockDataStore) Products() domain.ProductRepository         { return m.products }
func (m *mockDataStore) Users() domain.UserRepository               { return m.users }

// ---------------------------------------------------------------------------
// Mock SessionRepository
// ---------------------------------------------------------------------------

type mockSessionRepo struct {
	getBySessionIDFunc func(ctx context.Context, sessionID string) (*domain.Session, error)
	createFunc         func(ctx context.Context, sessionID string) (*domain.Session, error)
	saveFunc           func(ctx context.Context, s *domain.Session) error
}

func (m *mockSessionRepo) GetBySessionID(ctx context.Context, sessionID string) (*domain.Session, error) {
	return m.getBySessionIDFunc(ctx, sessionID)
}

func (m *mockSessionRepo) Create(ctx context.Context, sessionID string) (*domain.Session, error) {
	return m.createFunc(ctx, sessionID)
}

func (m *mockSessionRepo) Save(ctx context.Context, s *domain.Session) error {
	return m.saveFunc(ctx, s)
}

// ---------------------------------------------------------------------------
// Mock MessageRepository
// ---------------------------------------------------------------------------

type mockMessageRepo struct {
	appendFunc         func(ctx context.Context, msg *domain.ChatMessage) error
	listBySessionFunc  func(ctx context.Context, sessionID string, limit, offset int) ([]*domain.ChatMessage, error)
	countBySessionFunc func(ctx context.Context, sessionID string) (int64, error)
}

func (m *mockMessageRepo) Append(ctx context.Context, msg *domain.ChatMessage) error {
	return m.appendFunc(ctx, msg)
}

func (m *mockMessageRepo) ListBySession(ctx context.Context, sessionID string, limit, offset int) ([]*domain.ChatMessage, error) {
	return m.listBySessionFunc(ctx, sessionID, limit, offset)
}

func (m *mockMessageRepo) CountBySession(ctx context.Context, sessionID string) (int64, error) {
	return m.countBySessionFunc(ctx, sessionID)
}

// ---------------------------------------------------------------------------
// Mock InteractionRepository
// ---------------------------------------------------------------------------

type mockInteractionRepo struct {
	appendFunc        func(ctx context.Context, i *domain.AgentInteraction) error
	listBySessionFunc func(ctx context.Context, sessionID string, limit, offset int) ([]*domain.AgentInteraction, error)
}

func (m *mockInteractionRepo) Append(ctx context.Context, i *domain.AgentInteraction) error {
	return m.appendFunc(ctx, i)
}

func (m *mockInteractionRepo) ListBySession(ctx context.Context, sessionID string, limit, offset int) ([]*domain.AgentInteraction, error) {
	return m.listBySessionFunc(ctx, sessionID, limit, offset)
}

// ---------------------------------------------------------------------------
// Mock ProductRepository
// ---------------------------------------------------------------------------

type mockProductRepo struct {
	createFunc      func(ctx context.Context, p *domain.Product) error
	getBySKUFunc    func(ctx context.Context, sku string) (*domain.Product, error)
	updateFunc      func(ctx context.Context, p *domain.Product) error
	deleteBySKUFunc func(ctx context.Context, sku string) error
	listFunc        func(ctx context.Context) ([]*domain.Product, error)
	countFunc       func(ctx context.Context) (int64, error)
}

func (m *mockProductRepo) Create(ctx context.Context, p *domain.Product) error {
	return m.createFunc(ctx, p)
}

func (m *mockProductRepo) GetBySKU(ctx context.Context, sku string) (*domain.Product, error) {
	return m.getBySKUFunc(ctx, sku)
}

func (m *mockProductRepo) Update(ctx context.Context, p *domain.Product) error {
	return m.updateFunc(ctx, p)
}

func (m *mockProductRepo) DeleteBySKU(ctx context.Context, sku string) error {
	return m.deleteBySKUFunc(ctx, sku)
}

func (m *mockProductRepo) List(ctx context.Context) ([]*domain.Product, error) {
	return m.listFunc(ctx)
}

func (m *mockProductRepo) Count(ctx context.Context) (int64, error) {
	return m.countFunc(ctx)
}

// ---------------------------------------------------------------------------
// Mock UserRepository
// ---------------------------------------------------------------------------

type mockUserRepo struct {
	createFunc     func(ctx context.Context, u *domain.User) error
	getByIDFunc    func(ctx context.Context, id uuid.UUID) (*domain.User, error)
	getByEmailFunc func(ctx context.Context, email string) (*domain.User, error)
	listFunc       func(ctx context.Context) ([]*domain.User, error)
}

func (m *mockUserRepo) Create(ctx context.Context, u *domain.User) error {
	return m.createFunc(ctx, u)
}

func (m *mockUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return m.getByEmailFunc(ctx, email)
}

func (m *mockUserRepo) List(ctx context.Context) ([]*domain.User, error) {
	return m.listFunc(ctx)
}

// ---------------------------------------------------------------------------
// Mock AuthService
// ---------------------------------------------------------------------------

type mockAuthService struct {
	registerFunc     func(ctx context.Context, email, password, name string, role domain.UserRole) (*domain.User, error)
	loginFunc        func(ctx context.Context, email, password string) (string, string, error)
	refreshTokenFunc func(ctx context.Context, refreshToken string) (string, error)
	getUserFunc      func(ctx context.Context, userID uuid.UUID) (*domain.User, error)
}

func (m *mockAuthService) Register(ctx context.Context, email, password, name string, role domain.UserRole) (*domain.User, error) {
	return m.registerFunc(ctx, email, password, name, role)
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (accessToken, refreshToken string, err error) {
	return m.loginFunc(ctx, email, password)
}

func (m *mockAuthService) RefreshToken(ctx context.Context, refreshToken string) (string, error) {
	return m.refreshTokenFunc(ctx, refreshToken)
}

func (m *mockAuthService) GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	return m.getUserFunc(ctx, userID)
}

// ---------------------------------------------------------------------------
// Mock ChatEngine
// ---------------------------------------------------------------------------

type mockChatEngine struct {
	processMessageFunc func(ctx context.Context, sessionID, message string) (*workflow.Result, error)
}

func (m *mockChatEngine) ProcessMessage(ctx context.Context, sessionID, message string) (*workflow.Result, error) {
	return m.processMessageFunc(ctx, sessionID, message)
}

// ---------------------------------------------------------------------------
// Mock CatalogCache
// ---------------------------------------------------------------------------

type mockCatalogCache struct {
	getProductFunc    func(ctx context.Context, sku string) (*domain.Product, error)
	setProductFunc    func(ctx context.Context, p *domain.Product, ttl time.Duration) error
	deleteProductFunc func(ctx context.Context, sku string) error
}

func (m *mockCatalogCache) GetProduct(ctx context.Context, sku string) (*domain.Product, error) {
	return m.getProductFunc(ctx, sku)
}

func (m *mockCatalogCache) SetProduct(ctx context.Context, p *domain.Product, ttl time.Duration) error {
	return m.setProductFunc(ctx, p, ttl)
}

func (m *mockCatalogCache) DeleteProduct(ctx context.Context, sku string) error {
	return m.deleteProductFunc(ctx, sku)
}

// nopCache never hits; handy when the cache is not the behavior under test.
func nopCache() *mockCatalogCache {
	return &mockCatalogCache{
		getProductFunc:    func(context.Context, string) (*domain.Product, error) { return nil, domain.ErrNotFound },
		setProductFunc:    func(context.Context, *domain.Product, time.Duration) error { return nil },
		deleteProductFunc: func(context.Context, string) error { return nil },
	}
}
