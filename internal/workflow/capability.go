package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/rfpflow/rfpflow/internal/domain"
)

// Discovery finds candidate RFPs for free-text criteria.
type Discovery interface {
	FindCandidateRFPs(ctx context.Context, criteria string) ([]domain.RFPSummary, error)
}

// TechnicalAnalyzer produces the technical assessment for one RFP.
type TechnicalAnalyzer interface {
	AnalyzeTechnical(ctx context.Context, rfp domain.RFPSummary) (*domain.TechnicalAnalysis, error)
}

// PricingAnalyzer prices one RFP given its technical assessment.
type PricingAnalyzer interface {
	AnalyzePricing(ctx context.Context, rfp domain.RFPSummary, tech *domain.TechnicalAnalysis) (*domain.PricingAnalysis, error)
}

// Intent is the classification of a fresh top-level instruction.
type Intent struct {
	TargetStep domain.Step
	// Criteria carries extracted arguments for the target step, e.g. the
	// discovery search text.
	Criteria string
	// Restart is set for an explicit "start over" instruction, the only
	// transition permitted out of ERROR.
	Restart bool
}

// IntentClassifier routes free-text instructions arriving in IDLE or DONE
// (and the restart escape hatch from ERROR).
type IntentClassifier interface {
	Classify(ctx context.Context, message string) (Intent, error)
}

// CapabilityError wraps a failure of an external capability call, carrying
// the transient-vs-fatal distinction handlers map to Pause/Fail.
type CapabilityError struct {
	Capability string
	Transient  bool
	Err        error
}

func (e *CapabilityError) Error() string {
	kind := "fatal"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("workflow: capability %s failed (%s): %v", e.Capability, kind, e.Err)
}

func (e *CapabilityError) Unwrap() error { return e.Err }

// IsTransient reports whether err is a transient capability failure.
func IsTransient(err error) bool {
	var capErr *CapabilityError
	return errors.As(err, &capErr) && capErr.Transient
}
