package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rfpflow/rfpflow/internal/domain"
)

// InteractionRepo persists the append-only handler audit log.
type InteractionRepo struct {
	pool *pgxpool.Pool
}

func NewInteractionRepo(pool *pgxpool.Pool) *InteractionRepo {
	return &InteractionRepo{pool: pool}
}

func (r *InteractionRepo) Append(ctx context.Context, i *domain.AgentInteraction) error {
	inputData, err := json.Marshal(i.InputData)
	if err != nil {
		return fmt.Errorf("interactionRepo.Append: marshal input_data: %w", err)
	}

	outputData, err := json.Marshal(i.OutputData)
	if err != nil {
		return fmt.Errorf("interactionRepo.Append: marshal output_data: %w", err)
	}

	toolCalls, err := json.Marshal(i.ToolCalls)
	if err != nil {
		return fmt.Errorf("interactionRepo.Append: marshal tool_calls: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO agent_interactions
			(id, session_id, agent_name, interaction_type, input_data, output_data, reasoning, tool_calls, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		i.ID, i.SessionID, i.AgentName, i.InteractionType,
		inputData, outputData, nilIfEmpty(i.Reasoning), toolCalls, i.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("interactionRepo.Append: %w", err)
	}

	return nil
}

func (r *InteractionRepo) ListBySession(ctx context.Context, sessionID string, limit, offset int) ([]*domain.AgentInteraction, error) {
	if limit <= 0 {
		limit = 500
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, agent_name, interaction_type, input_data, output_data, reasoning, tool_calls, created_at
		 FROM agent_interactions WHERE session_id = $1
		 ORDER BY created_at, id
		 LIMIT $2 OFFSET $3`,
		sessionID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("interactionRepo.ListBySession: %w", err)
	}
	defer rows.Close()

	var interactions []*domain.AgentInteraction
	for rows.Next() {
		var i domain.AgentInteraction
		var inputData, outputData, toolCalls []byte
		var reasoning *string

		err = rows.Scan(&i.ID, &i.SessionID, &i.AgentName, &i.InteractionType,
			&inputData, &outputData, &reasoning, &toolCalls, &i.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("interactionRepo.ListBySession: scan: %w", err)
		}

		i.Reasoning = derefStr(reasoning)
		if len(inputData) > 0 {
			if err := json.Unmarshal(inputData, &i.InputData); err != nil {
				return nil, fmt.Errorf("interactionRepo.ListBySession: unmarshal input_data: %w", err)
			}
		}
		if len(outputData) > 0 {
			if err := json.Unmarshal(outputData, &i.OutputData); err != nil {
				return nil, fmt.Errorf("interactionRepo.ListBySession: unmarshal output_data: %w", err)
			}
		}
		if len(toolCalls) > 0 {
			if err := json.Unmarshal(toolCalls, &i.ToolCalls); err != nil {
				return nil, fmt.Errorf("interactionRepo.ListBySession: unmarshal tool_calls: %w", err)
			}
		}
		interactions = append(interactions, &i)
	}
	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("interactionRepo.ListBySession: rows: %w", err)
	}

	return interactions, nil
}
