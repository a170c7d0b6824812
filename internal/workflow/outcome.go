package workflow

import "github.com/rfpflow/rfpflow/internal/domain"

// OutcomeKind is the turn result a step handler reports to the engine.
type OutcomeKind string

const (
	// OutcomeAdvance moves the session to Outcome.Next. When Prompt is also
	// set the session arrives at the new step already paused (discovery
	// advancing into AWAIT_RFP_SELECTION with the candidate list).
	OutcomeAdvance OutcomeKind = "advance"
	// OutcomePause suspends the current step awaiting a specific user answer;
	// current_step is left unchanged.
	OutcomePause OutcomeKind = "pause"
	// OutcomeFail moves the session to ERROR with a durable error message.
	OutcomeFail OutcomeKind = "fail"
)

// Outcome is what a handler returns after mutating its session copy.
type Outcome struct {
	Kind  OutcomeKind
	Reply string

	// Advance fields.
	Next     domain.Step
	NextNode string // optional dispatcher hint, "" keeps the current value

	// Pause field; also set on Advance when the new step starts paused.
	Prompt string

	// Fail field.
	Err error

	// Audit trail for the interaction logger.
	Reasoning string
	ToolCalls []domain.ToolCall
}

// Advance builds a plain step transition.
func Advance(next domain.Step, reply string) Outcome {
	return Outcome{Kind: OutcomeAdvance, Next: next, Reply: reply}
}

// AdvancePaused builds a transition into a step that immediately waits for a
// user answer. The prompt is also the outbound reply.
func AdvancePaused(next domain.Step, prompt string) Outcome {
	return Outcome{Kind: OutcomeAdvance, Next: next, Reply: prompt, Prompt: prompt}
}

// Pause suspends the current step with a (re-)prompt.
func Pause(prompt string) Outcome {
	return Outcome{Kind: OutcomePause, Reply: prompt, Prompt: prompt}
}

// Fail reports a fatal handler error with a user-facing reply.
func Fail(err error, reply string) Outcome {
	return Outcome{Kind: OutcomeFail, Err: err, Reply: reply}
}
