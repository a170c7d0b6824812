// Package memory is an in-memory store implementation used in tests and for
// local development without PostgreSQL. It enforces the same optimistic
// concurrency contract as the postgres store.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rfpflow/rfpflow/internal/domain"
)

// Store implements the session, message and interaction repositories with
// in-memory maps guarded by one mutex.
type Store struct {
	mu           sync.Mutex
	sessions     map[string]*domain.Session // key: external session id
	messages     map[string][]*domain.ChatMessage
	interactions map[string][]*domain.AgentInteraction
	seq          int64
}

func New() *Store {
	return &Store{
		sessions:     make(map[string]*domain.Session),
		messages:     make(map[string][]*domain.ChatMessage),
		interactions: make(map[string][]*domain.AgentInteraction),
	}
}

func (s *Store) Sessions() domain.SessionRepository         { return (*sessionRepo)(s) }
func (s *Store) Messages() domain.MessageRepository         { return (*messageRepo)(s) }
func (s *Store) Interactions() domain.InteractionRepository { return (*interactionRepo)(s) }

// ---------------------------------------------------------------------------
// Sessions
// ---------------------------------------------------------------------------

type sessionRepo Store

func (r *sessionRepo) GetBySessionID(_ context.Context, sessionID string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("memory.sessionRepo.GetBySessionID: %w", domain.ErrNotFound)
	}
	return cloneSession(stored), nil
}

func (r *sessionRepo) Create(_ context.Context, sessionID string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if stored, ok := r.sessions[sessionID]; ok {
		return cloneSession(stored), nil
	}

	fresh := domain.NewSession(sessionID)
	r.sessions[sessionID] = cloneSession(fresh)
	return fresh, nil
}

func (r *sessionRepo) Save(_ context.Context, sess *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.sessions[sess.SessionID]
	if !ok {
		return fmt.Errorf("memory.sessionRepo.Save: %w", domain.ErrNotFound)
	}
	if stored.Version != sess.Version {
		return fmt.Errorf("memory.sessionRepo.Save: version %d != %d: %w",
			sess.Version, stored.Version, domain.ErrConflict)
	}

	sess.Version++
	sess.UpdatedAt = time.Now()
	r.sessions[sess.SessionID] = cloneSession(sess)
	return nil
}

// cloneSession deep-copies through JSON so independently loaded copies never
// share slices or nested structs — the same isolation rows give you.
func cloneSession(s *domain.Session) *domain.Session {
	raw, err := json.Marshal(s)
	if err != nil {
		panic("memory: session not serializable: " + err.Error())
	}
	var out domain.Session
	if err := json.Unmarshal(raw, &out); err != nil {
		panic("memory: session not deserializable: " + err.Error())
	}
	return &out
}

// ---------------------------------------------------------------------------
// Messages (append-only)
// ---------------------------------------------------------------------------

type messageRepo Store

func (r *messageRepo) Append(_ context.Context, m *domain.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	cp := *m
	cp.Seq = r.seq
	r.messages[m.SessionID] = append(r.messages[m.SessionID], &cp)
	return nil
}

func (r *messageRepo) ListBySession(_ context.Context, sessionID string, limit, offset int) ([]*domain.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := r.messages[sessionID]
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}

	out := make([]*domain.ChatMessage, 0, end-offset)
	for _, m := range all[offset:end] {
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (r *messageRepo) CountBySession(_ context.Context, sessionID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return int64(len(r.messages[sessionID])), nil
}

// ---------------------------------------------------------------------------
// Interactions (append-only)
// ---------------------------------------------------------------------------

type interactionRepo Store

func (r *interactionRepo) Append(_ context.Context, i *domain.AgentInteraction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *i
	r.interactions[i.SessionID] = append(r.interactions[i.SessionID], &cp)
	return nil
}

func (r *interactionRepo) ListBySession(_ context.Context, sessionID string, limit, offset int) ([]*domain.AgentInteraction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := r.interactions[sessionID]
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}

	out := make([]*domain.AgentInteraction, 0, end-offset)
	for _, i := range all[offset:end] {
		cp := *i
		out = append(out, &cp)
	}
	return out, nil
}
