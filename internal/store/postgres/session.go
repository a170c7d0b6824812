package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rfpflow/rfpflow/internal/domain"
)

// SessionRepo persists workflow sessions in the chat_sessions table. Analysis
// results and candidate lists live in JSONB columns; the version column backs
// the optimistic concurrency contract.
type SessionRepo struct {
	pool *pgxpool.Pool
}

func NewSessionRepo(pool *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{pool: pool}
}

const sessionColumns = `id, session_id, current_step, next_node,
	rfps_identified, selected_rfp, user_selected_rfp_id,
	technical_analysis, pricing_analysis,
	final_response, report_path, product_summary, test_summary,
	waiting_for_user, user_prompt, error,
	version, created_at, updated_at`

func (r *SessionRepo) GetBySessionID(ctx context.Context, sessionID string) (*domain.Session, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM chat_sessions WHERE session_id = $1`,
		sessionID,
	)

	s, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("sessionRepo.GetBySessionID: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sessionRepo.GetBySessionID: %w", err)
	}

	return s, nil
}

// Create inserts a fresh IDLE session, or returns the stored one when the
// session id already exists. ON CONFLICT DO NOTHING keeps concurrent inits of
// the same id from erroring.
func (r *SessionRepo) Create(ctx context.Context, sessionID string) (*domain.Session, error) {
	fresh := domain.NewSession(sessionID)

	_, err := r.pool.Exec(ctx,
		`INSERT INTO chat_sessions (id, session_id, current_step, next_node, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (session_id) DO NOTHING`,
		fresh.ID, fresh.SessionID, fresh.CurrentStep, fresh.NextNode,
		fresh.Version, fresh.CreatedAt, fresh.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("sessionRepo.Create: %w", err)
	}

	// Reselect so concurrent creators all observe the same stored row.
	s, err := r.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("sessionRepo.Create: %w", err)
	}

	return s, nil
}

// Save rewrites the whole record guarded by the version check. RowsAffected 0
// with no error means another writer got there first.
func (r *SessionRepo) Save(ctx context.Context, s *domain.Session) error {
	rfps, err := json.Marshal(s.RFPsIdentified)
	if err != nil {
		return fmt.Errorf("sessionRepo.Save: marshal rfps_identified: %w", err)
	}

	selected, err := marshalNullable(s.SelectedRFP)
	if err != nil {
		return fmt.Errorf("sessionRepo.Save: marshal selected_rfp: %w", err)
	}

	technical, err := marshalNullable(s.TechnicalAnalysis)
	if err != nil {
		return fmt.Errorf("sessionRepo.Save: marshal technical_analysis: %w", err)
	}

	pricing, err := marshalNullable(s.PricingAnalysis)
	if err != nil {
		return fmt.Errorf("sessionRepo.Save: marshal pricing_analysis: %w", err)
	}

	now := time.Now()

	tag, err := r.pool.Exec(ctx,
		`UPDATE chat_sessions SET
			current_step = $1, next_node = $2,
			rfps_identified = $3, selected_rfp = $4, user_selected_rfp_id = $5,
			technical_analysis = $6, pricing_analysis = $7,
			final_response = $8, report_path = $9, product_summary = $10, test_summary = $11,
			waiting_for_user = $12, user_prompt = $13, error = $14,
			version = version + 1, updated_at = $15
		 WHERE session_id = $16 AND version = $17`,
		s.CurrentStep, s.NextNode,
		rfps, selected, nilIfEmpty(s.UserSelectedRFPID),
		technical, pricing,
		nilIfEmpty(s.FinalResponse), nilIfEmpty(s.ReportPath),
		nilIfEmpty(s.ProductSummary), nilIfEmpty(s.TestSummary),
		s.WaitingForUser, nilIfEmpty(s.UserPrompt), nilIfEmpty(s.Error),
		now,
		s.SessionID, s.Version,
	)
	if err != nil {
		return fmt.Errorf("sessionRepo.Save: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("sessionRepo.Save: version %d: %w", s.Version, domain.ErrConflict)
	}

	s.Version++
	s.UpdatedAt = now

	return nil
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var (
		s                              domain.Session
		rfps, selected                 []byte
		technical, pricing             []byte
		userSelectedRFPID              *string
		finalResponse, reportPath      *string
		productSummary, testSummary    *string
		userPrompt, errorMsg, nextNode *string
		step                           string
	)

	err := row.Scan(
		&s.ID, &s.SessionID, &step, &nextNode,
		&rfps, &selected, &userSelectedRFPID,
		&technical, &pricing,
		&finalResponse, &reportPath, &productSummary, &testSummary,
		&s.WaitingForUser, &userPrompt, &errorMsg,
		&s.Version, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	// The raw step value is surfaced even when unknown; Validate flags it.
	s.CurrentStep = domain.Step(step)
	s.NextNode = derefStr(nextNode)
	s.UserSelectedRFPID = derefStr(userSelectedRFPID)
	s.FinalResponse = derefStr(finalResponse)
	s.ReportPath = derefStr(reportPath)
	s.ProductSummary = derefStr(productSummary)
	s.TestSummary = derefStr(testSummary)
	s.UserPrompt = derefStr(userPrompt)
	s.Error = derefStr(errorMsg)

	if len(rfps) > 0 {
		if err := json.Unmarshal(rfps, &s.RFPsIdentified); err != nil {
			return nil, fmt.Errorf("unmarshal rfps_identified: %w", err)
		}
	}
	if len(selected) > 0 {
		if err := json.Unmarshal(selected, &s.SelectedRFP); err != nil {
			return nil, fmt.Errorf("unmarshal selected_rfp: %w", err)
		}
	}
	if len(technical) > 0 {
		if err := json.Unmarshal(technical, &s.TechnicalAnalysis); err != nil {
			return nil, fmt.Errorf("unmarshal technical_analysis: %w", err)
		}
	}
	if len(pricing) > 0 {
		if err := json.Unmarshal(pricing, &s.PricingAnalysis); err != nil {
			return nil, fmt.Errorf("unmarshal pricing_analysis: %w", err)
		}
	}

	return &s, nil
}

// marshalNullable keeps NULL in the column for absent values instead of the
// JSON literal "null".
func marshalNullable(v any) ([]byte, error) {
	switch t := v.(type) {
	case *domain.RFPSummary:
		if t == nil {
			return nil, nil
		}
	case *domain.TechnicalAnalysis:
		if t == nil {
			return nil, nil
		}
	case *domain.PricingAnalysis:
		if t == nil {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
