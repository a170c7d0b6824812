package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Step names one stage of the RFP workflow. The persisted current_step column
// always holds one of these values; anything else is a corruption condition.
type Step string

const (
	StepIdle              Step = "IDLE"
	StepIdentifyRFPs      Step = "IDENTIFY_RFPS"
	StepAwaitRFPSelection Step = "AWAIT_RFP_SELECTION"
	StepTechnicalAnalysis Step = "TECHNICAL_ANALYSIS"
	StepPricingAnalysis   Step = "PRICING_ANALYSIS"
	StepGenerateResponse  Step = "GENERATE_RESPONSE"
	StepDone              Step = "DONE"
	StepError             Step = "ERROR"
)

// DefaultNextNode is the dispatcher hint meaning "route by current_step".
const DefaultNextNode = "main_agent"

// Known reports whether s is a member of the step enum.
func (s Step) Known() bool {
	switch s {
	case StepIdle, StepIdentifyRFPs, StepAwaitRFPSelection, StepTechnicalAnalysis,
		StepPricingAnalysis, StepGenerateResponse, StepDone, StepError:
		return true
	default:
		return false
	}
}

// AcceptsInstruction reports whether a fresh top-level user instruction is
// accepted in this step. All other steps expect either step-internal
// continuation or an answer to a pending prompt.
func (s Step) AcceptsInstruction() bool {
	return s == StepIdle || s == StepDone
}

// Terminal reports whether the workflow has stopped advancing on its own.
func (s Step) Terminal() bool {
	return s == StepDone || s == StepError
}

// ParseStep validates a persisted step value.
func ParseStep(raw string) (Step, error) {
	s := Step(raw)
	if !s.Known() {
		return "", fmt.Errorf("domain.ParseStep: step %q: %w", raw, ErrCorruptState)
	}
	return s, nil
}

// Session is one persisted conversation's workflow state. The external-facing
// identity is SessionID (an opaque string chosen by the caller); ID is an
// internal storage detail.
type Session struct {
	ID        uuid.UUID `json:"id"`
	SessionID string    `json:"session_id"`

	CurrentStep Step   `json:"current_step"`
	NextNode    string `json:"next_node"`

	RFPsIdentified    []RFPSummary       `json:"rfps_identified"`
	SelectedRFP       *RFPSummary        `json:"selected_rfp,omitempty"`
	UserSelectedRFPID string             `json:"user_selected_rfp_id,omitempty"`
	TechnicalAnalysis *TechnicalAnalysis `json:"technical_analysis,omitempty"`
	PricingAnalysis   *PricingAnalysis   `json:"pricing_analysis,omitempty"`

	FinalResponse  string `json:"final_response,omitempty"`
	ReportPath     string `json:"report_path,omitempty"`
	ProductSummary string `json:"product_summary,omitempty"`
	TestSummary    string `json:"test_summary,omitempty"`

	WaitingForUser bool   `json:"waiting_for_user"`
	UserPrompt     string `json:"user_prompt,omitempty"`
	Error          string `json:"error,omitempty"`

	// Version guards Save against lost updates; bumped on every persisted write.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession returns a fresh pre-start session for the given external ID.
func NewSession(sessionID string) *Session {
	now := time.Now()
	return &Session{
		ID:          uuid.New(),
		SessionID:   sessionID,
		CurrentStep: StepIdle,
		NextNode:    DefaultNextNode,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Validate checks the session invariants that must hold at every persisted point.
func (s *Session) Validate() error {
	if !s.CurrentStep.Known() {
		return fmt.Errorf("domain.Session.Validate: step %q: %w", s.CurrentStep, ErrCorruptState)
	}
	if s.WaitingForUser != (s.UserPrompt != "") {
		return fmt.Errorf("domain.Session.Validate: waiting_for_user=%v with user_prompt=%q: %w",
			s.WaitingForUser, s.UserPrompt, ErrCorruptState)
	}
	if s.Error != "" && s.CurrentStep != StepError {
		return fmt.Errorf("domain.Session.Validate: error set in step %q: %w", s.CurrentStep, ErrCorruptState)
	}
	return nil
}

// Reset clears all workflow progress, returning the session to IDLE. Identity,
// version and creation time are kept. Used for the explicit restart intent.
func (s *Session) Reset() {
	s.CurrentStep = StepIdle
	s.NextNode = DefaultNextNode
	s.RFPsIdentified = nil
	s.SelectedRFP = nil
	s.UserSelectedRFPID = ""
	s.TechnicalAnalysis = nil
	s.PricingAnalysis = nil
	s.FinalResponse = ""
	s.ReportPath = ""
	s.ProductSummary = ""
	s.TestSummary = ""
	s.WaitingForUser = false
	s.UserPrompt = ""
	s.Error = ""
}

// SessionRepository is the durable store for workflow sessions, keyed by the
// external session ID.
type SessionRepository interface {
	GetBySessionID(ctx context.Context, sessionID string) (*Session, error)
	// Create is idempotent: if the session already exists the stored record is
	// returned, supporting retried session-init calls.
	Create(ctx context.Context, sessionID string) (*Session, error)
	// Save rewrites the whole record and bumps Version and UpdatedAt. It fails
	// with ErrConflict when the stored version does not match s.Version.
	Save(ctx context.Context, s *Session) error
}
