package workflow

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rfpflow/rfpflow/internal/domain"
)

// Handler implements one step's logic as a pure function of the loaded session
// state and the inbound input. Handlers mutate only their own session copy;
// durability is the engine's job.
type Handler func(ctx context.Context, s *domain.Session, input string) Outcome

// Node names used for agent_interactions.agent_name and as next_node dispatch
// targets.
const (
	NodeDiscovery = "discovery_agent"
	NodeSelection = "selection_agent"
	NodeTechnical = "technical_agent"
	NodePricing   = "pricing_agent"
	NodeResponse  = "response_agent"
)

type handlerSet struct {
	discovery Discovery
	technical TechnicalAnalyzer
	pricing   PricingAnalyzer
}

// identifyRFPs runs the discovery capability and either pauses for a user
// selection (several candidates), advances straight through (exactly one), or
// re-prompts for refined criteria (none).
func (h *handlerSet) identifyRFPs(ctx context.Context, s *domain.Session, input string) Outcome {
	criteria := strings.TrimSpace(input)
	if criteria == "" {
		return AdvancePaused(domain.StepIdentifyRFPs,
			"What kind of RFPs should I look for? Describe the product area, client or keywords.")
	}

	call := domain.ToolCall{
		Name:      "find_candidate_rfps",
		Arguments: map[string]any{"criteria": criteria},
	}

	rfps, err := h.discovery.FindCandidateRFPs(ctx, criteria)
	if err != nil {
		call.Result = err.Error()
		if IsTransient(err) {
			out := AdvancePaused(domain.StepIdentifyRFPs,
				"RFP discovery is temporarily unavailable. Send your request again in a moment.")
			out.ToolCalls = []domain.ToolCall{call}
			return out
		}
		out := Fail(err, "I could not search for RFPs right now. Say \"restart\" to start over.")
		out.ToolCalls = []domain.ToolCall{call}
		return out
	}
	call.Result = fmt.Sprintf("%d candidates", len(rfps))

	if len(rfps) == 0 {
		out := AdvancePaused(domain.StepIdentifyRFPs,
			fmt.Sprintf("No open RFPs matched %q. Try different keywords or a broader product area.", criteria))
		out.ToolCalls = []domain.ToolCall{call}
		return out
	}

	s.RFPsIdentified = rfps

	if len(rfps) == 1 {
		s.SelectedRFP = &s.RFPsIdentified[0]
		s.UserSelectedRFPID = rfps[0].ID
		out := Advance(domain.StepTechnicalAnalysis, fmt.Sprintf(
			"Found exactly one match: %s (%s). Proceeding with it — send any message to run the technical analysis.",
			rfps[0].Title, rfps[0].ClientName))
		out.ToolCalls = []domain.ToolCall{call}
		out.Reasoning = "single unambiguous discovery hit, selection step skipped"
		return out
	}

	out := AdvancePaused(domain.StepAwaitRFPSelection, selectionPrompt(rfps))
	out.ToolCalls = []domain.ToolCall{call}
	return out
}

// awaitRFPSelection resolves the user's answer against the identified
// candidates. An unresolvable answer re-pauses with a corrective prompt and
// never advances or fails.
func (h *handlerSet) awaitRFPSelection(_ context.Context, s *domain.Session, input string) Outcome {
	answer := strings.TrimSpace(input)
	s.UserSelectedRFPID = answer

	idx := resolveSelection(answer, s.RFPsIdentified)
	if idx < 0 {
		return Pause(fmt.Sprintf(
			"%q does not match any of the candidates. Reply with a number from 1 to %d or an RFP id.\n\n%s",
			answer, len(s.RFPsIdentified), selectionPrompt(s.RFPsIdentified)))
	}

	s.SelectedRFP = &s.RFPsIdentified[idx]
	return Advance(domain.StepTechnicalAnalysis, fmt.Sprintf(
		"Selected %s (%s). Send any message to run the technical analysis.",
		s.SelectedRFP.Title, s.SelectedRFP.ClientName))
}

func (h *handlerSet) technicalAnalysis(ctx context.Context, s *domain.Session, _ string) Outcome {
	if s.SelectedRFP == nil {
		return Fail(fmt.Errorf("workflow.technicalAnalysis: no RFP selected: %w", domain.ErrCorruptState),
			"Something went wrong with this session. Say \"restart\" to start over.")
	}

	call := domain.ToolCall{
		Name:      "analyze_technical",
		Arguments: map[string]any{"rfp_id": s.SelectedRFP.ID},
	}

	tech, err := h.technical.AnalyzeTechnical(ctx, *s.SelectedRFP)
	if err != nil {
		call.Result = err.Error()
		if IsTransient(err) {
			out := Pause("The technical analysis service is busy. Send any message to retry.")
			out.ToolCalls = []domain.ToolCall{call}
			return out
		}
		out := Fail(err, "The technical analysis failed. Say \"restart\" to start over.")
		out.ToolCalls = []domain.ToolCall{call}
		return out
	}
	call.Result = "ok"

	s.TechnicalAnalysis = tech
	out := Advance(domain.StepPricingAnalysis, fmt.Sprintf(
		"Technical analysis complete: %s Coverage %.0f%%. Send any message to run the pricing analysis.",
		tech.Summary, tech.Coverage*100))
	out.ToolCalls = []domain.ToolCall{call}
	return out
}

func (h *handlerSet) pricingAnalysis(ctx context.Context, s *domain.Session, _ string) Outcome {
	if s.SelectedRFP == nil || s.TechnicalAnalysis == nil {
		return Fail(fmt.Errorf("workflow.pricingAnalysis: missing technical analysis: %w", domain.ErrCorruptState),
			"Something went wrong with this session. Say \"restart\" to start over.")
	}

	call := domain.ToolCall{
		Name:      "analyze_pricing",
		Arguments: map[string]any{"rfp_id": s.SelectedRFP.ID},
	}

	pricing, err := h.pricing.AnalyzePricing(ctx, *s.SelectedRFP, s.TechnicalAnalysis)
	if err != nil {
		call.Result = err.Error()
		if IsTransient(err) {
			out := Pause("The pricing service is busy. Send any message to retry.")
			out.ToolCalls = []domain.ToolCall{call}
			return out
		}
		out := Fail(err, "The pricing analysis failed. Say \"restart\" to start over.")
		out.ToolCalls = []domain.ToolCall{call}
		return out
	}
	call.Result = "ok"

	s.PricingAnalysis = pricing
	out := Advance(domain.StepGenerateResponse, fmt.Sprintf(
		"Pricing analysis complete: total %.2f %s. Send any message to generate the RFP response.",
		pricing.Total, pricing.Currency))
	out.ToolCalls = []domain.ToolCall{call}
	return out
}

// generateResponse synthesizes the terminal artifacts from the prior steps'
// results and finishes the workflow.
func (h *handlerSet) generateResponse(_ context.Context, s *domain.Session, _ string) Outcome {
	if s.SelectedRFP == nil || s.TechnicalAnalysis == nil || s.PricingAnalysis == nil {
		return Fail(fmt.Errorf("workflow.generateResponse: missing analysis results: %w", domain.ErrCorruptState),
			"Something went wrong with this session. Say \"restart\" to start over.")
	}

	rfp := s.SelectedRFP
	tech := s.TechnicalAnalysis
	pricing := s.PricingAnalysis

	var b strings.Builder
	fmt.Fprintf(&b, "RFP Response: %s\n", rfp.Title)
	fmt.Fprintf(&b, "Client: %s\n\n", rfp.ClientName)
	fmt.Fprintf(&b, "Technical fit: %s (coverage %.0f%%)\n", tech.Summary, tech.Coverage*100)
	if len(tech.MatchedProducts) > 0 {
		b.WriteString("Proposed products:\n")
		for _, m := range tech.MatchedProducts {
			fmt.Fprintf(&b, "  - %s (%s) for %s\n", m.ProductName, m.SKU, m.Requirement)
		}
	}
	fmt.Fprintf(&b, "\nCommercial offer: %.2f %s total", pricing.Total, pricing.Currency)
	if pricing.TestingCost > 0 {
		fmt.Fprintf(&b, " (includes %.2f %s testing)", pricing.TestingCost, pricing.Currency)
	}
	b.WriteString("\n")

	s.FinalResponse = b.String()
	s.ReportPath = reportPath(s.SessionID, rfp.ID)
	s.ProductSummary = productSummary(tech.MatchedProducts)
	s.TestSummary = strings.Join(tech.RequiredTests, "; ")

	return Advance(domain.StepDone, s.FinalResponse+
		"\nThe response draft is ready. Start a new request any time.")
}

// selectionPrompt renders the numbered candidate list the user picks from.
func selectionPrompt(rfps []domain.RFPSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "I found %d candidate RFPs:\n", len(rfps))
	for i, r := range rfps {
		fmt.Fprintf(&b, "%d. %s — %s", i+1, r.Title, r.ClientName)
		if r.BudgetRange != "" {
			fmt.Fprintf(&b, " (budget %s)", r.BudgetRange)
		}
		b.WriteString("\n")
	}
	b.WriteString("Which one should I analyze? Reply with its number or id.")
	return b.String()
}

// resolveSelection maps a user answer to a candidate index: a 1-based ordinal
// or an exact (case-insensitive) RFP id. Returns -1 when nothing matches.
func resolveSelection(answer string, rfps []domain.RFPSummary) int {
	if answer == "" || len(rfps) == 0 {
		return -1
	}

	if n, err := strconv.Atoi(answer); err == nil {
		if n >= 1 && n <= len(rfps) {
			return n - 1
		}
		return -1
	}

	for i, r := range rfps {
		if strings.EqualFold(answer, r.ID) {
			return i
		}
	}
	return -1
}

func productSummary(matches []domain.ProductMatch) string {
	if len(matches) == 0 {
		return ""
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, fmt.Sprintf("%s (%s)", m.ProductName, m.SKU))
	}
	return strings.Join(names, "; ")
}

// reportPath mirrors the report naming convention used by the report endpoint:
// slashes in RFP ids are not allowed to escape the reports directory.
func reportPath(sessionID, rfpID string) string {
	safe := strings.ReplaceAll(rfpID, "/", "_")
	return "data/reports/" + sessionID + "_" + safe + ".pdf"
}
