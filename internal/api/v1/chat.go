package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/rfpflow/rfpflow/internal/domain"
	"github.com/rfpflow/rfpflow/internal/workflow"
)

type SendMessageInput struct {
	Body struct {
		SessionID string `json:"session_id" minLength:"1" maxLength:"255" doc:"Conversation session ID"`
		Message   string `json:"message" minLength:"1" maxLength:"8192" doc:"User message"`
	}
}

type SendMessageOutput struct {
	Body *workflow.Result
}

type GetSessionStateInput struct {
	SessionID string `path:"sessionID" minLength:"1" maxLength:"255" doc:"Conversation session ID"`
}

type GetSessionStateOutput struct {
	Body *domain.Session
}

type ListMessagesInput struct {
	SessionID string `path:"sessionID" minLength:"1" maxLength:"255" doc:"Conversation session ID"`
	Limit     int    `query:"limit" minimum:"1" maximum:"500" default:"100" doc:"Max results"`
	Offset    int    `query:"offset" minimum:"0" default:"0" doc:"Offset for pagination"`
}

type ListMessagesOutput struct {
	Body struct {
		Messages []*domain.ChatMessage `json:"messages"`
		Total    int64                 `json:"total"`
	}
}

type ListInteractionsInput struct {
	SessionID string `path:"sessionID" minLength:"1" maxLength:"255" doc:"Conversation session ID"`
	Limit     int    `query:"limit" minimum:"1" maximum:"500" default:"100" doc:"Max results"`
	Offset    int    `query:"offset" minimum:"0" default:"0" doc:"Offset for pagination"`
}

type ListInteractionsOutput struct {
	Body []*domain.AgentInteraction
}

// RegisterChatRoutes wires the conversational workflow endpoints.
func RegisterChatRoutes(api huma.API, store DataStore, engine ChatEngine) {
	huma.Register(api, huma.Operation{
		OperationID: "send-message",
		Method:      http.MethodPost,
		Path:        "/chat",
		Summary:     "Send a message to the workflow engine",
		Tags:        []string{"Chat"},
	}, func(ctx context.Context, input *SendMessageInput) (*SendMessageOutput, error) {
		result, err := engine.ProcessMessage(ctx, input.Body.SessionID, input.Body.Message)
		if err != nil {
			if errors.Is(err, workflow.ErrTooManyConflicts) {
				return nil, huma.Error409Conflict("session is being updated concurrently, retry the message")
			}
			if errors.Is(err, domain.ErrCorruptState) {
				return nil, huma.Error500InternalServerError("session state is corrupt", err)
			}
			return nil, huma.Error500InternalServerError("failed to process message", err)
		}

		return &SendMessageOutput{Body: result}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-session-state",
		Method:      http.MethodGet,
		Path:        "/chat/{sessionID}/state",
		Summary:     "Get the workflow state for a session",
		Tags:        []string{"Chat"},
	}, func(ctx context.Context, input *GetSessionStateInput) (*GetSessionStateOutput, error) {
		session, err := store.Sessions().GetBySessionID(ctx, input.SessionID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, huma.Error404NotFound("session not found")
			}
			return nil, huma.Error500InternalServerError("failed to get session", err)
		}

		return &GetSessionStateOutput{Body: session}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-messages",
		Method:      http.MethodGet,
		Path:        "/chat/{sessionID}/history",
		Summary:     "List the message history for a session",
		Tags:        []string{"Chat"},
	}, func(ctx context.Context, input *ListMessagesInput) (*ListMessagesOutput, error) {
		messages, err := store.Messages().ListBySession(ctx, input.SessionID, input.Limit, input.Offset)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list messages", err)
		}

		total, err := store.Messages().CountBySession(ctx, input.SessionID)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to count messages", err)
		}

		out := &ListMessagesOutput{}
		out.Body.Messages = messages
		out.Body.Total = total
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-interactions",
		Method:      http.MethodGet,
		Path:        "/chat/{sessionID}/interactions",
		Summary:     "List the agent audit log for a session",
		Tags:        []string{"Chat"},
	}, func(ctx context.Context, input *ListInteractionsInput) (*ListInteractionsOutput, error) {
		interactions, err := store.Interactions().ListBySession(ctx, input.SessionID, input.Limit, input.Offset)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to list interactions", err)
		}

		return &ListInteractionsOutput{Body: interactions}, nil
	})
}
