// Package postgres implements the domain repositories on PostgreSQL via pgx.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rfpflow/rfpflow/internal/domain"
)

type Store struct {
	pool         *pgxpool.Pool
	sessions     *SessionRepo
	messages     *MessageRepo
	interactions *InteractionRepo
	products     *ProductRepo
	users        *UserRepo
}

func New(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: parse config: %w", err)
	}

	cfg.MaxConns = maxConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres.New: connect: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres.New: ping: %w", err)
	}

	return &Store{
		pool:         pool,
		sessions:     NewSessionRepo(pool),
		messages:     NewMessageRepo(pool),
		interactions: NewInteractionRepo(pool),
		products:     NewProductRepo(pool),
		users:        NewUserRepo(pool),
	}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// Ping reports connectivity. Used by the readiness handler.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres.Store.Ping: %w", err)
	}
	return nil
}

func (s *Store) Sessions() domain.SessionRepository         { return s.sessions }
func (s *Store) Messages() domain.MessageRepository         { return s.messages }
func (s *Store) Interactions() domain.InteractionRepository { return s.interactions }
func (s *Store) Products() domain.ProductRepository         { return s.products }
func (s *Store) Users() domain.UserRepository               { return s.users }

// --- Helpers shared by the repos ---

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
