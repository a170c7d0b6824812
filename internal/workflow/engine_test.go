package workflow_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rfpflow/rfpflow/internal/domain"
	"github.com/rfpflow/rfpflow/internal/store/memory"
	"github.com/rfpflow/rfpflow/internal/workflow"
)

// ---------------------------------------------------------------------------
// Capability stubs
// ---------------------------------------------------------------------------

type stubDiscovery struct {
	findFunc func(ctx context.Context, criteria string) ([]domain.RFPSummary, error)
}

func (s *stubDiscovery) FindCandidateRFPs(ctx context.Context, criteria string) ([]domain.RFPSummary, error) {
	return s.findFunc(ctx, criteria)
}

type stubTechnical struct {
	analyzeFunc func(ctx context.Context, rfp domain.RFPSummary) (*domain.TechnicalAnalysis, error)
}

func (s *stubTechnical) AnalyzeTechnical(ctx context.Context, rfp domain.RFPSummary) (*domain.TechnicalAnalysis, error) {
	return s.analyzeFunc(ctx, rfp)
}

type stubPricing struct {
	analyzeFunc func(ctx context.Context, rfp domain.RFPSummary, tech *domain.TechnicalAnalysis) (*domain.PricingAnalysis, error)
}

func (s *stubPricing) AnalyzePricing(ctx context.Context, rfp domain.RFPSummary, tech *domain.TechnicalAnalysis) (*domain.PricingAnalysis, error) {
	return s.analyzeFunc(ctx, rfp, tech)
}

// stubClassifier routes anything mentioning "restart" to the restart intent
// and everything else to discovery.
type stubClassifier struct{}

func (stubClassifier) Classify(_ context.Context, message string) (workflow.Intent, error) {
	if strings.Contains(strings.ToLower(message), "restart") {
		return workflow.Intent{Restart: true}, nil
	}
	return workflow.Intent{TargetStep: domain.StepIdentifyRFPs, Criteria: message}, nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	channels []string
	payloads [][]byte
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = append(p.channels, channel)
	p.payloads = append(p.payloads, payload)
	return nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) NotifyFailure(_ context.Context, _, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return nil
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

func threeCandidates() []domain.RFPSummary {
	return []domain.RFPSummary{
		{ID: "rfp-100", Title: "Subsea fiber cable supply", ClientName: "OceanGrid", BudgetRange: "$1M-$2M"},
		{ID: "rfp-200", Title: "Data center cabling", ClientName: "Northbyte"},
		{ID: "rfp-300", Title: "Rail signalling cable", ClientName: "TransRail"},
	}
}

func happyTechnical() *stubTechnical {
	return &stubTechnical{
		analyzeFunc: func(_ context.Context, _ domain.RFPSummary) (*domain.TechnicalAnalysis, error) {
			return &domain.TechnicalAnalysis{
				Summary:  "All core requirements met with catalog products.",
				Coverage: 0.9,
				MatchedProducts: []domain.ProductMatch{
					{Requirement: "single-mode fiber", SKU: "FIB-SM-01", ProductName: "SM Fiber 9/125"},
				},
				RequiredTests: []string{"IEC 60793 attenuation"},
			}, nil
		},
	}
}

func happyPricing() *stubPricing {
	return &stubPricing{
		analyzeFunc: func(_ context.Context, _ domain.RFPSummary, _ *domain.TechnicalAnalysis) (*domain.PricingAnalysis, error) {
			return &domain.PricingAnalysis{Currency: "USD", Subtotal: 1200, TestingCost: 150, Total: 1350}, nil
		},
	}
}

type engineFixture struct {
	store     *memory.Store
	discovery *stubDiscovery
	technical *stubTechnical
	pricing   *stubPricing
	events    *recordingPublisher
	notifier  *recordingNotifier
	engine    *workflow.Engine
}

func newFixture(findFunc func(ctx context.Context, criteria string) ([]domain.RFPSummary, error)) *engineFixture {
	f := &engineFixture{
		store:     memory.New(),
		discovery: &stubDiscovery{findFunc: findFunc},
		technical: happyTechnical(),
		pricing:   happyPricing(),
		events:    &recordingPublisher{},
		notifier:  &recordingNotifier{},
	}
	f.engine = workflow.NewEngine(
		f.store.Sessions(), f.store.Messages(), f.store.Interactions(),
		f.discovery, f.technical, f.pricing, stubClassifier{},
		f.events, f.notifier,
	)
	return f
}

func (f *engineFixture) session(t *testing.T, sessionID string) *domain.Session {
	t.Helper()
	s, err := f.store.Sessions().GetBySessionID(context.Background(), sessionID)
	require.NoError(t, err)
	require.NoError(t, s.Validate(), "session invariants must hold at every persisted point")
	return s
}

// ---------------------------------------------------------------------------
// Scenario A: discovery with several candidates pauses for selection.
// ---------------------------------------------------------------------------

func TestProcessMessage_DiscoveryPausesForSelection(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(func(_ context.Context, criteria string) ([]domain.RFPSummary, error) {
		assert.Contains(t, criteria, "cable")
		return threeCandidates(), nil
	})

	res, err := f.engine.ProcessMessage(ctx, "sess-a", "Scan for cable RFPs")
	require.NoError(t, err)

	assert.Equal(t, domain.StepAwaitRFPSelection, res.Step)
	assert.True(t, res.Waiting)
	assert.Contains(t, res.Reply, "3 candidate RFPs")
	assert.Contains(t, res.Reply, "Subsea fiber cable supply")
	assert.Contains(t, res.Reply, "TransRail")

	s := f.session(t, "sess-a")
	assert.Equal(t, domain.StepAwaitRFPSelection, s.CurrentStep)
	assert.True(t, s.WaitingForUser)
	assert.NotEmpty(t, s.UserPrompt)
	assert.Len(t, s.RFPsIdentified, 3)

	// One user + one assistant message, one tool_call interaction.
	msgs, err := f.store.Messages().ListBySession(ctx, "sess-a", 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, domain.MessageTypeUser, msgs[0].MessageType)
	assert.Equal(t, domain.MessageTypeAssistant, msgs[1].MessageType)

	ints, err := f.store.Interactions().ListBySession(ctx, "sess-a", 0, 0)
	require.NoError(t, err)
	require.Len(t, ints, 1)
	assert.Equal(t, domain.InteractionTypeToolCall, ints[0].InteractionType)
	assert.Equal(t, workflow.NodeDiscovery, ints[0].AgentName)

	// The assistant turn was published on the session channel.
	require.Len(t, f.events.channels, 1)
	assert.Equal(t, workflow.ChatChannel("sess-a"), f.events.channels[0])
}

// ---------------------------------------------------------------------------
// Scenario B: a valid answer resolves the selection and advances.
// ---------------------------------------------------------------------------

func TestProcessMessage_SelectionAnswerAdvances(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(func(_ context.Context, _ string) ([]domain.RFPSummary, error) {
		return threeCandidates(), nil
	})

	_, err := f.engine.ProcessMessage(ctx, "sess-b", "Scan for cable RFPs")
	require.NoError(t, err)

	res, err := f.engine.ProcessMessage(ctx, "sess-b", "2")
	require.NoError(t, err)

	assert.Equal(t, domain.StepTechnicalAnalysis, res.Step)
	assert.False(t, res.Waiting)

	s := f.session(t, "sess-b")
	require.NotNil(t, s.SelectedRFP)
	assert.Equal(t, "rfp-200", s.SelectedRFP.ID)
	assert.Equal(t, "2", s.UserSelectedRFPID)
	assert.False(t, s.WaitingForUser)
	assert.Empty(t, s.UserPrompt)
}

func TestProcessMessage_SelectionByID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(func(_ context.Context, _ string) ([]domain.RFPSummary, error) {
		return threeCandidates(), nil
	})

	_, err := f.engine.ProcessMessage(ctx, "sess-bid", "find cable rfps")
	require.NoError(t, err)

	res, err := f.engine.ProcessMessage(ctx, "sess-bid", "RFP-300")
	require.NoError(t, err)

	assert.Equal(t, domain.StepTechnicalAnalysis, res.Step)
	s := f.session(t, "sess-bid")
	require.NotNil(t, s.SelectedRFP)
	assert.Equal(t, "rfp-300", s.SelectedRFP.ID)
}

// ---------------------------------------------------------------------------
// Scenario C: an unresolvable answer re-pauses without advancing.
// ---------------------------------------------------------------------------

func TestProcessMessage_BadSelectionRepauses(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(func(_ context.Context, _ string) ([]domain.RFPSummary, error) {
		return threeCandidates(), nil
	})

	_, err := f.engine.ProcessMessage(ctx, "sess-c", "Scan for cable RFPs")
	require.NoError(t, err)
	before := f.session(t, "sess-c")

	res, err := f.engine.ProcessMessage(ctx, "sess-c", "7")
	require.NoError(t, err)

	// A turn ending in Pause leaves current_step unchanged.
	assert.Equal(t, before.CurrentStep, res.Step)
	assert.Equal(t, domain.StepAwaitRFPSelection, res.Step)
	assert.True(t, res.Waiting)
	assert.Contains(t, res.Reply, `"7" does not match`)

	s := f.session(t, "sess-c")
	assert.True(t, s.WaitingForUser)
	assert.Nil(t, s.SelectedRFP)
}

// ---------------------------------------------------------------------------
// Scenario D: a fatal pricing failure moves the session to ERROR.
// ---------------------------------------------------------------------------

func TestProcessMessage_PricingFailureEntersError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(func(_ context.Context, _ string) ([]domain.RFPSummary, error) {
		return threeCandidates(), nil
	})
	f.pricing.analyzeFunc = func(_ context.Context, _ domain.RFPSummary, _ *domain.TechnicalAnalysis) (*domain.PricingAnalysis, error) {
		return nil, &workflow.CapabilityError{Capability: "pricing", Err: errors.New("model quota exhausted")}
	}

	_, err := f.engine.ProcessMessage(ctx, "sess-d", "Scan for cable RFPs")
	require.NoError(t, err)
	_, err = f.engine.ProcessMessage(ctx, "sess-d", "1")
	require.NoError(t, err)
	_, err = f.engine.ProcessMessage(ctx, "sess-d", "go") // technical analysis
	require.NoError(t, err)

	res, err := f.engine.ProcessMessage(ctx, "sess-d", "go") // pricing analysis fails
	require.NoError(t, err)

	assert.Equal(t, domain.StepError, res.Step)
	assert.False(t, res.Waiting)
	assert.NotContains(t, res.Reply, "quota", "user-facing reply stays non-technical")

	s := f.session(t, "sess-d")
	assert.Equal(t, domain.StepError, s.CurrentStep)
	assert.NotEmpty(t, s.Error)
	assert.Nil(t, s.PricingAnalysis)
	assert.NotNil(t, s.TechnicalAnalysis, "earlier results survive the failure")

	// The failure raised an operational alert.
	require.NotEmpty(t, f.notifier.messages)
	assert.Contains(t, f.notifier.messages[0], "quota")
}

// ---------------------------------------------------------------------------
// Scenario E: explicit restart resets ERROR to IDLE.
// ---------------------------------------------------------------------------

func TestProcessMessage_RestartFromError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(func(_ context.Context, _ string) ([]domain.RFPSummary, error) {
		return nil, &workflow.CapabilityError{Capability: "discovery", Err: errors.New("scraper crashed")}
	})

	_, err := f.engine.ProcessMessage(ctx, "sess-e", "Scan for cable RFPs")
	require.NoError(t, err)
	require.Equal(t, domain.StepError, f.session(t, "sess-e").CurrentStep)

	// A non-restart message in ERROR changes nothing.
	res, err := f.engine.ProcessMessage(ctx, "sess-e", "why did that happen?")
	require.NoError(t, err)
	assert.Equal(t, domain.StepError, res.Step)
	assert.Contains(t, res.Reply, "restart")

	res, err = f.engine.ProcessMessage(ctx, "sess-e", "restart")
	require.NoError(t, err)
	assert.Equal(t, domain.StepIdle, res.Step)

	s := f.session(t, "sess-e")
	assert.Equal(t, domain.StepIdle, s.CurrentStep)
	assert.Empty(t, s.Error)
}

// ---------------------------------------------------------------------------
// Edge cases around discovery.
// ---------------------------------------------------------------------------

func TestProcessMessage_SingleMatchSkipsSelection(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(func(_ context.Context, _ string) ([]domain.RFPSummary, error) {
		return threeCandidates()[:1], nil
	})

	res, err := f.engine.ProcessMessage(ctx, "sess-one", "Scan for subsea cable RFPs")
	require.NoError(t, err)

	assert.Equal(t, domain.StepTechnicalAnalysis, res.Step)
	assert.False(t, res.Waiting)

	s := f.session(t, "sess-one")
	require.NotNil(t, s.SelectedRFP)
	assert.Equal(t, "rfp-100", s.SelectedRFP.ID)
}

func TestProcessMessage_NoMatchesReprompts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(func(_ context.Context, _ string) ([]domain.RFPSummary, error) {
		return nil, nil
	})

	res, err := f.engine.ProcessMessage(ctx, "sess-none", "Scan for unobtainium RFPs")
	require.NoError(t, err)

	assert.Equal(t, domain.StepIdentifyRFPs, res.Step)
	assert.True(t, res.Waiting)
	assert.Contains(t, res.Reply, "No open RFPs matched")
}

func TestProcessMessage_TransientDiscoveryPausesInsteadOfFailing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(func(_ context.Context, _ string) ([]domain.RFPSummary, error) {
		return nil, &workflow.CapabilityError{Capability: "discovery", Transient: true, Err: errors.New("503")}
	})

	res, err := f.engine.ProcessMessage(ctx, "sess-tr", "Scan for cable RFPs")
	require.NoError(t, err)

	assert.Equal(t, domain.StepIdentifyRFPs, res.Step)
	assert.True(t, res.Waiting)

	s := f.session(t, "sess-tr")
	assert.Empty(t, s.Error)
	assert.NotEqual(t, domain.StepError, s.CurrentStep)
}

// ---------------------------------------------------------------------------
// Full walk to DONE and a fresh instruction afterwards.
// ---------------------------------------------------------------------------

func TestProcessMessage_FullWorkflowReachesDone(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(func(_ context.Context, _ string) ([]domain.RFPSummary, error) {
		return threeCandidates(), nil
	})

	steps := []struct {
		message  string
		wantStep domain.Step
	}{
		{"Scan for cable RFPs", domain.StepAwaitRFPSelection},
		{"1", domain.StepTechnicalAnalysis},
		{"go", domain.StepPricingAnalysis},
		{"go", domain.StepGenerateResponse},
		{"go", domain.StepDone},
	}

	for _, st := range steps {
		res, err := f.engine.ProcessMessage(ctx, "sess-full", st.message)
		require.NoError(t, err)
		assert.Equal(t, st.wantStep, res.Step, "after message %q", st.message)
	}

	s := f.session(t, "sess-full")
	assert.NotEmpty(t, s.FinalResponse)
	assert.Equal(t, "data/reports/sess-full_rfp-100.pdf", s.ReportPath)
	assert.Contains(t, s.ProductSummary, "FIB-SM-01")
	assert.Contains(t, s.TestSummary, "IEC 60793")
	require.NotNil(t, s.PricingAnalysis)
	assert.InDelta(t, 1350, s.PricingAnalysis.Total, 0.001)

	// A new instruction from DONE starts a fresh workflow on the same session.
	res, err := f.engine.ProcessMessage(ctx, "sess-full", "Scan for signalling RFPs")
	require.NoError(t, err)
	assert.Equal(t, domain.StepAwaitRFPSelection, res.Step)

	s = f.session(t, "sess-full")
	assert.Empty(t, s.FinalResponse, "terminal artifacts are cleared by the new run")
	assert.Nil(t, s.SelectedRFP)
}

// ---------------------------------------------------------------------------
// Handler purity: identical input against identical pre-turn state gives
// identical post-turn state.
// ---------------------------------------------------------------------------

func TestProcessMessage_DeterministicAcrossIndependentCopies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	run := func(sessionID string) *domain.Session {
		f := newFixture(func(_ context.Context, _ string) ([]domain.RFPSummary, error) {
			return threeCandidates(), nil
		})
		_, err := f.engine.ProcessMessage(ctx, sessionID, "Scan for cable RFPs")
		require.NoError(t, err)
		_, err = f.engine.ProcessMessage(ctx, sessionID, "3")
		require.NoError(t, err)
		return f.session(t, sessionID)
	}

	a := run("sess-p")
	b := run("sess-p")

	assert.Equal(t, a.CurrentStep, b.CurrentStep)
	assert.Equal(t, a.WaitingForUser, b.WaitingForUser)
	assert.Equal(t, a.UserPrompt, b.UserPrompt)
	assert.Equal(t, a.RFPsIdentified, b.RFPsIdentified)
	assert.Equal(t, a.SelectedRFP, b.SelectedRFP)
	assert.Equal(t, a.UserSelectedRFPID, b.UserSelectedRFPID)
	assert.Equal(t, a.Error, b.Error)
}

// ---------------------------------------------------------------------------
// Concurrency: a lost save re-runs the whole turn from a fresh load.
// ---------------------------------------------------------------------------

// conflictingSessions injects ErrConflict into the first n Save calls.
type conflictingSessions struct {
	domain.SessionRepository
	mu        sync.Mutex
	conflicts int
	saves     int
}

func (c *conflictingSessions) Save(ctx context.Context, s *domain.Session) error {
	c.mu.Lock()
	c.saves++
	inject := c.saves <= c.conflicts
	c.mu.Unlock()

	if inject {
		return domain.ErrConflict
	}
	return c.SessionRepository.Save(ctx, s)
}

func TestProcessMessage_RetriesTurnOnConflict(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.New()
	sessions := &conflictingSessions{SessionRepository: store.Sessions(), conflicts: 1}

	var discoveryCalls int
	var mu sync.Mutex
	disc := &stubDiscovery{findFunc: func(_ context.Context, _ string) ([]domain.RFPSummary, error) {
		mu.Lock()
		discoveryCalls++
		mu.Unlock()
		return threeCandidates(), nil
	}}

	eng := workflow.NewEngine(
		sessions, store.Messages(), store.Interactions(),
		disc, happyTechnical(), happyPricing(), stubClassifier{}, nil, nil,
	)

	res, err := eng.ProcessMessage(ctx, "sess-conf", "Scan for cable RFPs")
	require.NoError(t, err)
	assert.Equal(t, domain.StepAwaitRFPSelection, res.Step)

	// The whole turn re-ran: the handler (and its capability call) executed
	// once per attempt, not just Save.
	assert.Equal(t, 2, discoveryCalls)
	assert.Equal(t, 2, sessions.saves)
}

func TestProcessMessage_ExhaustedConflictsSurface(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.New()
	sessions := &conflictingSessions{SessionRepository: store.Sessions(), conflicts: 100}

	eng := workflow.NewEngine(
		sessions, store.Messages(), store.Interactions(),
		&stubDiscovery{findFunc: func(_ context.Context, _ string) ([]domain.RFPSummary, error) {
			return threeCandidates(), nil
		}},
		happyTechnical(), happyPricing(), stubClassifier{}, nil, nil,
	)

	_, err := eng.ProcessMessage(ctx, "sess-exh", "Scan for cable RFPs")
	assert.ErrorIs(t, err, workflow.ErrTooManyConflicts)
}

// ---------------------------------------------------------------------------
// Corruption: unknown persisted step refuses dispatch.
// ---------------------------------------------------------------------------

func TestProcessMessage_CorruptStepSurfacesLoudly(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(func(_ context.Context, _ string) ([]domain.RFPSummary, error) {
		return threeCandidates(), nil
	})

	loaded, err := f.store.Sessions().Create(ctx, "sess-corrupt")
	require.NoError(t, err)
	loaded.CurrentStep = domain.Step("NOT_A_STEP")
	require.NoError(t, f.store.Sessions().Save(ctx, loaded))

	_, err = f.engine.ProcessMessage(ctx, "sess-corrupt", "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCorruptState)

	// Corruption raises an operational alert rather than a chat reply.
	require.NotEmpty(t, f.notifier.messages)
	assert.Contains(t, f.notifier.messages[0], "corrupt")
}

func TestProcessMessage_EmptySessionIDRejected(t *testing.T) {
	t.Parallel()

	f := newFixture(func(_ context.Context, _ string) ([]domain.RFPSummary, error) {
		return nil, nil
	})

	_, err := f.engine.ProcessMessage(context.Background(), "  ", "hi")
	assert.Error(t, err)
}
