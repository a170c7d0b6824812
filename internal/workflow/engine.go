package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/rfpflow/rfpflow/internal/domain"
)

// ErrTooManyConflicts is returned when a turn keeps losing the save race after
// reloading; the caller should retry the same inbound message.
var ErrTooManyConflicts = errors.New("workflow: too many save conflicts")

// saveAttempts bounds the reload-and-re-run loop on ErrConflict.
const saveAttempts = 3

// EventPublisher abstracts the pub/sub publish operation used to stream
// assistant replies to connected UIs. May be nil.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// FailureNotifier receives an operational alert when a session enters ERROR
// or its persisted state turns out corrupt. May be nil.
type FailureNotifier interface {
	NotifyFailure(ctx context.Context, sessionID, message string) error
}

// Result is what one processed turn reports back to the transport layer.
type Result struct {
	SessionID string      `json:"session_id"`
	Reply     string      `json:"reply"`
	Step      domain.Step `json:"step"`
	Waiting   bool        `json:"waiting"`
}

// Engine drives the multi-step, interruptible RFP workflow. All cross-call
// state lives in the Session record; the engine itself holds no per-session
// state and is safe for concurrent use.
type Engine struct {
	sessions     domain.SessionRepository
	messages     domain.MessageRepository
	interactions domain.InteractionRepository
	intents      IntentClassifier
	events       EventPublisher  // nil disables event streaming
	notifier     FailureNotifier // nil disables alerts

	handlers map[domain.Step]Handler
	nodes    map[string]Handler
}

// NewEngine wires the step handlers over the given capabilities and stores.
func NewEngine(
	sessions domain.SessionRepository,
	messages domain.MessageRepository,
	interactions domain.InteractionRepository,
	discovery Discovery,
	technical TechnicalAnalyzer,
	pricing PricingAnalyzer,
	intents IntentClassifier,
	events EventPublisher,
	notifier FailureNotifier,
) *Engine {
	hs := &handlerSet{discovery: discovery, technical: technical, pricing: pricing}

	handlers := map[domain.Step]Handler{
		domain.StepIdentifyRFPs:      hs.identifyRFPs,
		domain.StepAwaitRFPSelection: hs.awaitRFPSelection,
		domain.StepTechnicalAnalysis: hs.technicalAnalysis,
		domain.StepPricingAnalysis:   hs.pricingAnalysis,
		domain.StepGenerateResponse:  hs.generateResponse,
	}

	// next_node dispatch targets; the default "main_agent" means route by step.
	nodes := map[string]Handler{
		NodeDiscovery: hs.identifyRFPs,
		NodeSelection: hs.awaitRFPSelection,
		NodeTechnical: hs.technicalAnalysis,
		NodePricing:   hs.pricingAnalysis,
		NodeResponse:  hs.generateResponse,
	}

	return &Engine{
		sessions:     sessions,
		messages:     messages,
		interactions: interactions,
		intents:      intents,
		events:       events,
		notifier:     notifier,
		handlers:     handlers,
		nodes:        nodes,
	}
}

// ProcessMessage handles exactly one inbound message against one session: it
// loads (or creates) the session, dispatches one step handler, persists the
// merged state with a single Save, and appends to the message and interaction
// logs. Nothing is persisted if the handler does not return, so a timed-out
// turn is safe to replay.
func (e *Engine) ProcessMessage(ctx context.Context, sessionID, rawMessage string) (*Result, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("workflow.Engine.ProcessMessage: empty session id")
	}

	for attempt := 0; attempt < saveAttempts; attempt++ {
		s, err := e.sessions.Create(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("workflow.Engine.ProcessMessage: load session: %w", err)
		}

		if err := s.Validate(); err != nil {
			// Schema/version mismatch, not a runtime fault. Surface loudly and
			// do not dispatch against unknown state.
			log.Error().Err(err).Str("session_id", sessionID).Str("step", string(s.CurrentStep)).
				Msg("workflow: persisted session state is corrupt")
			e.alert(ctx, sessionID, "corrupt session state: "+err.Error())
			return nil, fmt.Errorf("workflow.Engine.ProcessMessage: %w", err)
		}

		agentName, outcome := e.runTurn(ctx, s, rawMessage)
		e.apply(s, outcome)

		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("workflow.Engine.ProcessMessage: post-turn state: %w", err)
		}

		err = e.sessions.Save(ctx, s)
		if errors.Is(err, domain.ErrConflict) {
			// Lost the race against a concurrent turn. The handler's decision
			// may depend on state that changed underneath it, so re-run the
			// whole turn from a fresh load rather than retrying Save alone.
			log.Debug().Str("session_id", sessionID).Int("attempt", attempt+1).
				Msg("workflow: save conflict, re-running turn")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("workflow.Engine.ProcessMessage: save: %w", err)
		}

		e.appendLogs(ctx, s, rawMessage, agentName, outcome)
		e.publishReply(ctx, s, outcome)

		if outcome.Kind == OutcomeFail {
			e.alert(ctx, sessionID, outcome.Err.Error())
		}

		return &Result{
			SessionID: sessionID,
			Reply:     outcome.Reply,
			Step:      s.CurrentStep,
			Waiting:   s.WaitingForUser,
		}, nil
	}

	return nil, fmt.Errorf("workflow.Engine.ProcessMessage: %w", ErrTooManyConflicts)
}

// runTurn decides which handler (if any) sees the inbound message and invokes
// it. Engine-level replies that do not run a handler (help text, ERROR notices)
// come back as a notice outcome.
func (e *Engine) runTurn(ctx context.Context, s *domain.Session, rawMessage string) (string, Outcome) {
	// A paused session interprets the message as the answer to UserPrompt.
	if s.WaitingForUser {
		s.WaitingForUser = false
		s.UserPrompt = ""

		h, name, err := e.resolveHandler(s)
		if err != nil {
			return domain.DefaultNextNode, Fail(err, "Something went wrong with this session. Say \"restart\" to start over.")
		}
		return name, h(ctx, s, rawMessage)
	}

	switch {
	case s.CurrentStep == domain.StepError:
		return domain.DefaultNextNode, e.handleErrorState(ctx, s, rawMessage)

	case s.CurrentStep.AcceptsInstruction():
		return e.handleInstruction(ctx, s, rawMessage)

	default:
		// Step-internal continuation (e.g. the analysis steps between pauses).
		h, name, err := e.resolveHandler(s)
		if err != nil {
			return domain.DefaultNextNode, Fail(err, "Something went wrong with this session. Say \"restart\" to start over.")
		}
		return name, h(ctx, s, rawMessage)
	}
}

// handleInstruction classifies a fresh top-level instruction arriving in IDLE
// or DONE and routes it to the first real step.
func (e *Engine) handleInstruction(ctx context.Context, s *domain.Session, rawMessage string) (string, Outcome) {
	intent, err := e.intents.Classify(ctx, rawMessage)
	if err != nil {
		return domain.DefaultNextNode, notice(
			"I did not understand that. Ask me to find RFPs, e.g. \"scan for fiber optic cable RFPs\".")
	}

	if intent.Restart {
		s.Reset()
		return domain.DefaultNextNode, notice("Starting fresh. What should I look for?")
	}

	h, ok := e.handlers[intent.TargetStep]
	if !ok {
		return domain.DefaultNextNode, notice(
			"I did not understand that. Ask me to find RFPs, e.g. \"scan for fiber optic cable RFPs\".")
	}

	// A new instruction after DONE starts a fresh workflow on the same session.
	if s.CurrentStep == domain.StepDone {
		s.Reset()
	}

	input := intent.Criteria
	if input == "" {
		input = rawMessage
	}
	return agentNameFor(intent.TargetStep), h(ctx, s, input)
}

// handleErrorState keeps ERROR terminal except for the explicit restart intent.
func (e *Engine) handleErrorState(ctx context.Context, s *domain.Session, rawMessage string) Outcome {
	intent, err := e.intents.Classify(ctx, rawMessage)
	if err == nil && intent.Restart {
		s.Reset()
		return Advance(domain.StepIdle, "Session reset. What should I look for?")
	}

	return notice(fmt.Sprintf(
		"This session stopped after an error (%s). Say \"restart\" to start over.", s.Error))
}

// resolveHandler picks the handler for the session: by next_node when it names
// a registered node other than the default, otherwise by current_step.
func (e *Engine) resolveHandler(s *domain.Session) (Handler, string, error) {
	if s.NextNode != "" && s.NextNode != domain.DefaultNextNode {
		if h, ok := e.nodes[s.NextNode]; ok {
			return h, s.NextNode, nil
		}
	}

	h, ok := e.handlers[s.CurrentStep]
	if !ok {
		return nil, "", fmt.Errorf("workflow.Engine.resolveHandler: no handler for step %q: %w",
			s.CurrentStep, domain.ErrCorruptState)
	}
	return h, agentNameFor(s.CurrentStep), nil
}

// apply merges a handler outcome into the session.
func (e *Engine) apply(s *domain.Session, out Outcome) {
	switch out.Kind {
	case OutcomeAdvance:
		s.CurrentStep = out.Next
		if out.NextNode != "" {
			s.NextNode = out.NextNode
		} else {
			s.NextNode = domain.DefaultNextNode
		}
		if out.Prompt != "" {
			s.WaitingForUser = true
			s.UserPrompt = out.Prompt
		}

	case OutcomePause:
		s.WaitingForUser = true
		s.UserPrompt = out.Prompt

	case OutcomeFail:
		s.CurrentStep = domain.StepError
		s.Error = out.Err.Error()
		s.WaitingForUser = false
		s.UserPrompt = ""
	}
	// Notices leave the session untouched.
}

// appendLogs records the user turn, the assistant reply, and the handler
// invocation. These are side channels: append failures are logged, never
// surfaced to the caller, and never roll back the already-persisted session.
func (e *Engine) appendLogs(ctx context.Context, s *domain.Session, rawMessage, agentName string, out Outcome) {
	now := time.Now()

	userMsg := &domain.ChatMessage{
		ID:          uuid.New(),
		SessionID:   s.SessionID,
		MessageType: domain.MessageTypeUser,
		Content:     rawMessage,
		CreatedAt:   now,
	}
	if err := e.messages.Append(ctx, userMsg); err != nil {
		log.Warn().Err(err).Str("session_id", s.SessionID).Msg("workflow: append user message")
	}

	assistantMsg := &domain.ChatMessage{
		ID:          uuid.New(),
		SessionID:   s.SessionID,
		MessageType: domain.MessageTypeAssistant,
		Content:     out.Reply,
		Metadata: map[string]any{
			"step":    string(s.CurrentStep),
			"waiting": s.WaitingForUser,
		},
		CreatedAt: now,
	}
	if err := e.messages.Append(ctx, assistantMsg); err != nil {
		log.Warn().Err(err).Str("session_id", s.SessionID).Msg("workflow: append assistant message")
	}

	itype := domain.InteractionTypeResponse
	if len(out.ToolCalls) > 0 {
		itype = domain.InteractionTypeToolCall
	}
	if out.Kind == OutcomeFail {
		itype = domain.InteractionTypeError
	}

	interaction := &domain.AgentInteraction{
		ID:              uuid.New(),
		SessionID:       s.SessionID,
		AgentName:       agentName,
		InteractionType: itype,
		InputData:       map[string]any{"message": rawMessage},
		OutputData: map[string]any{
			"reply":   out.Reply,
			"step":    string(s.CurrentStep),
			"waiting": s.WaitingForUser,
		},
		Reasoning: out.Reasoning,
		ToolCalls: out.ToolCalls,
		CreatedAt: now,
	}
	if err := e.interactions.Append(ctx, interaction); err != nil {
		log.Warn().Err(err).Str("session_id", s.SessionID).Msg("workflow: append interaction")
	}
}

// publishReply streams the assistant turn to the session's event channel.
func (e *Engine) publishReply(ctx context.Context, s *domain.Session, out Outcome) {
	if e.events == nil {
		return
	}

	evt := map[string]any{
		"type":       "assistant_message",
		"session_id": s.SessionID,
		"reply":      out.Reply,
		"step":       string(s.CurrentStep),
		"waiting":    s.WaitingForUser,
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return
	}

	if err := e.events.Publish(ctx, ChatChannel(s.SessionID), payload); err != nil {
		log.Warn().Err(err).Str("session_id", s.SessionID).Msg("workflow: publish reply event")
	}
}

func (e *Engine) alert(ctx context.Context, sessionID, message string) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.NotifyFailure(ctx, sessionID, message); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("workflow: failure notification")
	}
}

// ChatChannel returns the pub/sub channel name carrying one session's events.
func ChatChannel(sessionID string) string {
	return "chat:" + sessionID
}

// notice is an engine-level reply that runs no handler and mutates no state.
func notice(reply string) Outcome {
	return Outcome{Kind: outcomeNotice, Reply: reply}
}

// outcomeNotice is internal to the engine: handlers never return it.
const outcomeNotice OutcomeKind = "notice"

func agentNameFor(step domain.Step) string {
	switch step {
	case domain.StepIdentifyRFPs:
		return NodeDiscovery
	case domain.StepAwaitRFPSelection:
		return NodeSelection
	case domain.StepTechnicalAnalysis:
		return NodeTechnical
	case domain.StepPricingAnalysis:
		return NodePricing
	case domain.StepGenerateResponse:
		return NodeResponse
	default:
		return domain.DefaultNextNode
	}
}
