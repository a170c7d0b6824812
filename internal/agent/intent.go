package agent

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/rfpflow/rfpflow/internal/domain"
	"github.com/rfpflow/rfpflow/internal/workflow"
)

var errNoIntent = errors.New("agent: no recognizable intent")

// KeywordClassifier is a deterministic intent classifier for the small fixed
// set of top-level instructions the workflow accepts. Restart phrases win over
// everything else; anything that talks about RFPs, scanning or searching is a
// discovery instruction with the full message as criteria.
type KeywordClassifier struct{}

func NewKeywordClassifier() *KeywordClassifier { return &KeywordClassifier{} }

var restartRe = regexp.MustCompile(`(?i)\b(restart|reset|start over|start again)\b`)

var discoveryKeywords = []string{
	"rfp", "rfps", "tender", "tenders", "bid", "bids",
	"scan", "search", "find", "look for", "identify", "discover",
}

// Classify maps a free-text instruction to an Intent.
func (KeywordClassifier) Classify(_ context.Context, message string) (workflow.Intent, error) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return workflow.Intent{}, errNoIntent
	}

	if restartRe.MatchString(trimmed) {
		return workflow.Intent{Restart: true}, nil
	}

	lower := strings.ToLower(trimmed)
	for _, kw := range discoveryKeywords {
		if strings.Contains(lower, kw) {
			return workflow.Intent{
				TargetStep: domain.StepIdentifyRFPs,
				Criteria:   trimmed,
			}, nil
		}
	}

	return workflow.Intent{}, errNoIntent
}

var _ workflow.IntentClassifier = KeywordClassifier{}
