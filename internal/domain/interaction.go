package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type InteractionType string

const (
	InteractionTypeResponse InteractionType = "response"
	InteractionTypeToolCall InteractionType = "tool_call"
	InteractionTypeError    InteractionType = "error"
)

// ToolCall records one capability invocation made by a step handler.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
	Result    string         `json:"result,omitempty"`
}

// AgentInteraction is an immutable audit record of one handler invocation.
// It is written by the engine as an observability side channel and never
// read back by the engine itself.
type AgentInteraction struct {
	ID              uuid.UUID       `json:"id"`
	SessionID       string          `json:"session_id"`
	AgentName       string          `json:"agent_name"`
	InteractionType InteractionType `json:"interaction_type"`
	InputData       map[string]any  `json:"input_data,omitempty"`
	OutputData      map[string]any  `json:"output_data,omitempty"`
	Reasoning       string          `json:"reasoning,omitempty"`
	ToolCalls       []ToolCall      `json:"tool_calls,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// InteractionRepository stores the append-only audit log of handler invocations.
type InteractionRepository interface {
	Append(ctx context.Context, i *AgentInteraction) error
	ListBySession(ctx context.Context, sessionID string, limit, offset int) ([]*AgentInteraction, error)
}
