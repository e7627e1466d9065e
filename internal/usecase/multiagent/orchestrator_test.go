package multiagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hedgefund/internal/adapter/tool"
	"hedgefund/internal/domain"
	"hedgefund/internal/infra/config"
	"hedgefund/internal/usecase"
	"hedgefund/internal/usecase/eventbus"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// fakeBrapi serves PETR4 module data and 404s for every other ticker.
type fakeBrapi struct {
	srv   *httptest.Server
	mu    sync.Mutex
	paths []string
	count atomic.Int32
}

func newFakeBrapi(t *testing.T) *fakeBrapi {
	t.Helper()
	f := &fakeBrapi{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.count.Add(1)
		f.mu.Lock()
		f.paths = append(f.paths, r.URL.Path+"?modules="+r.URL.Query().Get("modules"))
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		symbol := strings.TrimPrefix(r.URL.Path, "/quote/")
		if symbol != "PETR4" {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintf(w, `{"error":true,"message":"Não encontramos a ação %s"}`, symbol)
			return
		}
		module := r.URL.Query().Get("modules")
		if module == "" {
			fmt.Fprint(w, `{"results":[{"symbol":"PETR4","regularMarketPrice":38.5}]}`)
			return
		}
		fmt.Fprintf(w, `{"results":[{"symbol":"PETR4","%s":{"value":1}}]}`, module)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeBrapi) requests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

func brapiRegistry(t *testing.T, f *fakeBrapi) *tool.Registry {
	t.Helper()
	client := tool.NewBrapiClient(config.BrapiConfig{BaseURL: f.srv.URL, Token: "t", Timeout: 2 * time.Second}, nil, testLogger())
	reg := tool.NewRegistry(testLogger())
	require.NoError(t, reg.RegisterAll(tool.NewModuleTools(client, testLogger())...))
	require.NoError(t, reg.Register(tool.NewQuoteTool(client, testLogger())))
	require.NoError(t, reg.Register(tool.NewPriceStatsTool(client, testLogger())))
	return reg
}

type setup struct {
	tools      domain.ToolExecutor
	decider    usecase.Decider
	maxSteps   int
	router     Router
	planner    Planner
	summarizer usecase.Summarizer
	maxCycles  int
	maxTotal   int
	bus        domain.EventBus
}

func newOrchestrator(t *testing.T, s setup) *Orchestrator {
	t.Helper()
	defaults := config.Defaults()
	reg := NewRegistry(testLogger())
	for _, name := range allSpecialists {
		sc, _ := defaults.Specialist(name)
		spec, err := usecase.NewSpecialist(usecase.SpecialistDeps{
			Identity: domain.SpecialistIdentity{Name: name, Tools: sc.Tools, MaxSteps: s.maxSteps},
			Tools:    s.tools,
			Decider:  s.decider,
			Logger:   testLogger(),
			Bus:      s.bus,
		})
		require.NoError(t, err)
		require.NoError(t, reg.Register(spec))
	}
	o, err := NewOrchestrator(OrchestratorDeps{
		Specialists:   reg,
		Router:        s.router,
		Planner:       s.planner,
		Summarizer:    s.summarizer,
		MaxCycles:     s.maxCycles,
		MaxTotalSteps: s.maxTotal,
		Bus:           s.bus,
		Logger:        testLogger(),
	})
	require.NoError(t, err)
	return o
}

// assertPaired checks that every tool_call is immediately answered.
func assertPaired(t *testing.T, msgs []domain.Message) {
	t.Helper()
	for i, m := range msgs {
		if m.Role != domain.RoleToolCall {
			continue
		}
		require.Less(t, i+1, len(msgs), "tool_call is the last message")
		next := msgs[i+1]
		require.Contains(t, []string{domain.RoleToolResult, domain.RoleToolError}, next.Role)
		require.Equal(t, m.ToolCall.ID, next.ToolResult.ToolCallID)
		require.Equal(t, m.ToolCall.Name, next.Name)
	}
}

func routedActors(msgs []domain.Message) []string {
	var out []string
	for _, m := range msgs {
		if m.Role == domain.RoleRouter && m.Decision != nil && m.Decision.NextActor != "" {
			out = append(out, m.Decision.NextActor)
		}
	}
	return out
}

func TestRunQuery_FundamentalOnly(t *testing.T) {
	f := newFakeBrapi(t)
	decider := usecase.NewScriptedDecider().Script(domain.FundamentalAnalyst,
		usecase.CallTool("get_balance_sheet_history", `{"tickers":"PETR4"}`),
		usecase.CallTool("get_income_statements", `{"tickers":"PETR4"}`),
		usecase.Conclude("PETR4 shows solid liquidity and falling leverage."),
	)
	o := newOrchestrator(t, setup{tools: brapiRegistry(t, f), decider: decider})

	answer, err := o.RunQuery(context.Background(), "PETR4 current financial health")
	require.NoError(t, err)

	require.Len(t, answer.Sections, 1)
	assert.Equal(t, domain.FundamentalAnalyst, answer.Sections[0].Specialist)
	assert.False(t, answer.Incomplete)
	assert.Nil(t, answer.Summary)
	assert.Equal(t, "PETR4 current financial health", answer.Query)

	assert.Equal(t, []string{
		"/quote/PETR4?modules=balanceSheetHistory",
		"/quote/PETR4?modules=incomeStatementHistory",
	}, f.requests())
	assert.Equal(t, []string{domain.FundamentalAnalyst, domain.Done}, routedActors(answer.Messages))
	assertPaired(t, answer.Messages)
}

func TestRunQuery_FundamentalThenPrice(t *testing.T) {
	f := newFakeBrapi(t)
	decider := usecase.NewScriptedDecider().
		Script(domain.FundamentalAnalyst,
			usecase.CallTool("get_balance_sheet_history", `{"tickers":"PETR4"}`),
			usecase.Conclude("Healthy."),
		).
		Script(domain.PriceAnalyst,
			usecase.CallTool("get_quote", `{"tickers":"PETR4"}`),
			usecase.Conclude("Uptrend."),
		)
	o := newOrchestrator(t, setup{tools: brapiRegistry(t, f), decider: decider})

	answer, err := o.RunQuery(context.Background(), "PETR4 financial health and price trend")
	require.NoError(t, err)

	assert.Equal(t, []string{domain.FundamentalAnalyst, domain.PriceAnalyst}, answer.Specialists())
	assert.Equal(t, "Healthy.", answer.Sections[0].Text)
	assert.Equal(t, "Uptrend.", answer.Sections[1].Text)
	assert.False(t, answer.Incomplete)
	assertPaired(t, answer.Messages)

	// The price analyst sees the fundamental conclusion.
	calls := decider.Calls()
	last := calls[len(calls)-1]
	assert.Equal(t, domain.PriceAnalyst, last.Specialist.Name)
	var sawFundamental bool
	for _, m := range last.Messages {
		if m.Role == domain.RoleSpecialist && m.Name == domain.FundamentalAnalyst {
			sawFundamental = true
		}
	}
	assert.True(t, sawFundamental)
}

func TestRunQuery_UnknownTicker(t *testing.T) {
	f := newFakeBrapi(t)
	decider := usecase.NewScriptedDecider().Script(domain.FundamentalAnalyst,
		usecase.CallTool("get_balance_sheet_history", `{"tickers":"ZZZZ3"}`),
		usecase.Conclude("The ticker ZZZZ3 was not found on B3."),
	)
	o := newOrchestrator(t, setup{tools: brapiRegistry(t, f), decider: decider})

	answer, err := o.RunQuery(context.Background(), "ZZZZ3 financial health")
	require.NoError(t, err)

	assert.False(t, answer.Incomplete)
	require.Len(t, answer.Sections, 1)
	assert.Contains(t, answer.Sections[0].Text, "not found")

	var toolErr *domain.Message
	for i := range answer.Messages {
		if answer.Messages[i].Role == domain.RoleToolError {
			toolErr = &answer.Messages[i]
		}
	}
	require.NotNil(t, toolErr)
	assert.Equal(t, domain.ToolErrNotFound, toolErr.ToolResult.ErrorKind)
}

func TestRunQuery_StepBudgetMakesSectionPartial(t *testing.T) {
	f := newFakeBrapi(t)
	steps := make([]usecase.ScriptStep, 0, 6)
	for i := 0; i < 6; i++ {
		steps = append(steps, usecase.CallTool("get_balance_sheet_history", `{"tickers":"PETR4"}`))
	}
	decider := usecase.NewScriptedDecider().
		Script(domain.FundamentalAnalyst, steps...).
		Script(domain.PriceAnalyst, usecase.Conclude("Sideways."))
	o := newOrchestrator(t, setup{tools: brapiRegistry(t, f), decider: decider, maxSteps: 5})

	answer, err := o.RunQuery(context.Background(), "PETR4 financial health and price trend")
	require.NoError(t, err)

	assert.True(t, answer.Incomplete)
	require.Len(t, answer.Sections, 2)
	assert.True(t, answer.Sections[0].Partial)
	assert.Contains(t, answer.Sections[0].Text, "budget of 5 tool calls")
	assert.False(t, answer.Sections[1].Partial)
	assert.Equal(t, "Sideways.", answer.Sections[1].Text)
	assert.Equal(t, int32(5), f.count.Load())
}

func TestRunQuery_SchemaViolationMakesNoRequest(t *testing.T) {
	f := newFakeBrapi(t)
	decider := usecase.NewScriptedDecider().Script(domain.FundamentalAnalyst,
		usecase.CallTool("get_balance_sheet_history", `{"tickers":"PETROBRAS"}`),
		usecase.Conclude("Could not retrieve data."),
	)
	o := newOrchestrator(t, setup{tools: brapiRegistry(t, f), decider: decider})

	answer, err := o.RunQuery(context.Background(), "PETROBRAS financial health")
	require.NoError(t, err)

	assert.Equal(t, int32(0), f.count.Load())
	var kinds []domain.ToolErrorKind
	for _, m := range answer.Messages {
		if m.Role == domain.RoleToolError {
			kinds = append(kinds, m.ToolResult.ErrorKind)
		}
	}
	assert.Equal(t, []domain.ToolErrorKind{domain.ToolErrInvalidArguments}, kinds)
}

func TestRunQuery_EmptyQuery(t *testing.T) {
	o := newOrchestrator(t, setup{tools: brapiRegistry(t, newFakeBrapi(t)), decider: usecase.NewScriptedDecider()})
	_, err := o.RunQuery(context.Background(), "   ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

// --- adversarial collaborators ---

type stubbornRouter struct{ actor string }

func (r stubbornRouter) Next(*domain.ConversationState) domain.RoutingDecision {
	return domain.RoutingDecision{NextActor: r.actor, Rationale: "again"}
}

// toolLoopDecider never concludes voluntarily.
type toolLoopDecider struct{ tool string }

func (d toolLoopDecider) Decide(_ context.Context, dc usecase.DecisionContext) (domain.Action, error) {
	return domain.Action{ToolCall: &domain.ToolCall{Name: d.tool, Arguments: json.RawMessage(`{"tickers":"PETR4"}`)}}, nil
}

func TestRunQuery_TerminatesWithAdversarialCollaborators(t *testing.T) {
	f := newFakeBrapi(t)
	o := newOrchestrator(t, setup{
		tools:     brapiRegistry(t, f),
		decider:   toolLoopDecider{tool: "get_balance_sheet_history"},
		router:    stubbornRouter{actor: domain.FundamentalAnalyst},
		maxCycles: 3,
		maxTotal:  7,
	})

	done := make(chan struct{})
	var answer *domain.FinalAnswer
	var err error
	go func() {
		defer close(done)
		answer, err = o.RunQuery(context.Background(), "PETR4 financial health")
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("RunQuery did not terminate")
	}

	require.NoError(t, err)
	assert.True(t, answer.Incomplete)
	assert.Len(t, answer.Sections, 2, "5 steps then the remaining 2")
	assert.Equal(t, int32(7), f.count.Load())
	assertPaired(t, answer.Messages)

	last := answer.Messages[len(answer.Messages)-1]
	require.Equal(t, domain.RoleRouter, last.Role)
	assert.True(t, last.Decision.IsDone())
	assert.Contains(t, last.Content, "step budget of 7")
}

func TestRunQuery_CycleBudget(t *testing.T) {
	decider := usecase.NewScriptedDecider()
	for i := 0; i < 5; i++ {
		decider.Script(domain.PriceAnalyst, usecase.Conclude("again"))
	}
	o := newOrchestrator(t, setup{
		tools:     brapiRegistry(t, newFakeBrapi(t)),
		decider:   decider,
		router:    stubbornRouter{actor: domain.PriceAnalyst},
		maxCycles: 2,
	})

	answer, err := o.RunQuery(context.Background(), "PETR4 price")
	require.NoError(t, err)
	assert.True(t, answer.Incomplete)
	assert.Len(t, answer.Sections, 2)
	last := answer.Messages[len(answer.Messages)-1]
	assert.Contains(t, last.Content, "cycle budget of 2")
	assert.Contains(t, last.Content, domain.ErrBudgetExceeded.Error())
}

// recordingRouter keeps the state it was last asked about.
type recordingRouter struct {
	stubbornRouter
	state *domain.ConversationState
}

func (r *recordingRouter) Next(state *domain.ConversationState) domain.RoutingDecision {
	r.state = state
	return r.stubbornRouter.Next(state)
}

func TestRunQuery_RouterChoosesUnknownSpecialist(t *testing.T) {
	router := &recordingRouter{stubbornRouter: stubbornRouter{actor: "macro_analyst"}}
	o := newOrchestrator(t, setup{
		tools:   brapiRegistry(t, newFakeBrapi(t)),
		decider: usecase.NewScriptedDecider(),
		router:  router,
	})
	_, err := o.RunQuery(context.Background(), "PETR4")
	require.True(t, domain.IsConfigurationError(err))

	msgs := router.state.Messages()
	last := msgs[len(msgs)-1]
	assert.Equal(t, domain.RoleRouter, last.Role)
	assert.Contains(t, last.Content, `unknown specialist "macro_analyst"`)
	require.NotNil(t, last.Decision)
	assert.True(t, last.Decision.IsDone())
}

func TestRunQuery_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o := newOrchestrator(t, setup{tools: brapiRegistry(t, newFakeBrapi(t)), decider: usecase.NewScriptedDecider()})
	_, err := o.RunQuery(ctx, "PETR4 price")
	assert.ErrorIs(t, err, context.Canceled)
}

type concludeDecider struct{}

func (concludeDecider) Decide(_ context.Context, dc usecase.DecisionContext) (domain.Action, error) {
	return domain.Action{Final: dc.Specialist.Name + " on " + dc.Query}, nil
}

func TestRunQuery_ConcurrentQueriesAreIndependent(t *testing.T) {
	o := newOrchestrator(t, setup{tools: brapiRegistry(t, newFakeBrapi(t)), decider: concludeDecider{}})

	queries := []string{"PETR4 price trend", "VALE3 valuation", "ITUB4 financial health", "WEGE3 momentum"}
	answers := make([]*domain.FinalAnswer, len(queries))
	var wg sync.WaitGroup
	for i, q := range queries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := o.RunQuery(context.Background(), q)
			if err != nil {
				t.Errorf("%q: %v", q, err)
				return
			}
			answers[i] = a
		}()
	}
	wg.Wait()

	for i, a := range answers {
		require.NotNil(t, a)
		require.Len(t, a.Sections, 1)
		assert.Contains(t, a.Sections[0].Text, queries[i])
	}
	assert.NotEqual(t, answers[0].QueryID, answers[1].QueryID)
}

// --- summary and planner ---

type fakeSummarizer struct {
	text string
	err  error
	got  []domain.Section
}

func (s *fakeSummarizer) Summarize(_ context.Context, _ string, sections []domain.Section) (string, error) {
	s.got = sections
	return s.text, s.err
}

func TestRunQuery_Summary(t *testing.T) {
	sum := &fakeSummarizer{text: "Buy on dips."}
	o := newOrchestrator(t, setup{tools: brapiRegistry(t, newFakeBrapi(t)), decider: concludeDecider{}, summarizer: sum})

	answer, err := o.RunQuery(context.Background(), "PETR4 financial health and price trend")
	require.NoError(t, err)

	require.NotNil(t, answer.Summary)
	assert.Equal(t, domain.PortfolioManager, answer.Summary.Specialist)
	assert.Equal(t, "Buy on dips.", answer.Summary.Text)
	assert.Len(t, sum.got, 2)

	last := answer.Messages[len(answer.Messages)-1]
	assert.Equal(t, domain.RoleFinal, last.Role)
	assert.False(t, answer.Incomplete)
}

func TestRunQuery_SummaryFailureIsRecorded(t *testing.T) {
	sum := &fakeSummarizer{err: errors.New("model unavailable")}
	o := newOrchestrator(t, setup{tools: brapiRegistry(t, newFakeBrapi(t)), decider: concludeDecider{}, summarizer: sum})

	answer, err := o.RunQuery(context.Background(), "PETR4 price trend")
	require.NoError(t, err)

	require.NotNil(t, answer.Summary)
	assert.True(t, answer.Summary.Partial)
	assert.Contains(t, answer.Summary.Text, "model unavailable")
	assert.Len(t, answer.Sections, 1)
}

type fakePlanner struct {
	decision domain.RoutingDecision
	err      error
}

func (p fakePlanner) Plan(context.Context, string) (domain.RoutingDecision, error) {
	return p.decision, p.err
}

func TestRunQuery_PlannerOverridesKeywords(t *testing.T) {
	planner := fakePlanner{decision: domain.RoutingDecision{Rationale: "price only", Facets: []domain.Facet{domain.FacetPrice}}}
	o := newOrchestrator(t, setup{tools: brapiRegistry(t, newFakeBrapi(t)), decider: concludeDecider{}, planner: planner})

	answer, err := o.RunQuery(context.Background(), "PETR4 financial health")
	require.NoError(t, err)
	assert.Equal(t, []string{domain.PriceAnalyst}, answer.Specialists())
}

func TestRunQuery_PlannerFailureFallsBack(t *testing.T) {
	planner := fakePlanner{err: domain.ErrMalformedResponse}
	o := newOrchestrator(t, setup{tools: brapiRegistry(t, newFakeBrapi(t)), decider: concludeDecider{}, planner: planner})

	answer, err := o.RunQuery(context.Background(), "PETR4 financial health")
	require.NoError(t, err)
	assert.Equal(t, []string{domain.FundamentalAnalyst}, answer.Specialists())

	first := answer.Messages[1]
	assert.Equal(t, domain.RoleRouter, first.Role)
	assert.Contains(t, first.Content, "plan failed: "+domain.ErrMalformedResponse.Error())
	require.NotNil(t, first.Decision)
	assert.Empty(t, first.Decision.NextActor)
	assert.Empty(t, first.Decision.Facets)
	assert.Equal(t, []string{domain.FundamentalAnalyst}, routedActors(answer.Messages))
}

func TestRunQuery_Events(t *testing.T) {
	bus := eventbus.New(nil)
	var seen []domain.EventType
	bus.SubscribeAll(func(_ context.Context, e domain.Event) { seen = append(seen, e.Type) })

	f := newFakeBrapi(t)
	decider := usecase.NewScriptedDecider().Script(domain.FundamentalAnalyst,
		usecase.CallTool("get_balance_sheet_history", `{"tickers":"PETR4"}`),
		usecase.Conclude("ok"),
	)
	o := newOrchestrator(t, setup{tools: brapiRegistry(t, f), decider: decider, bus: bus})

	_, err := o.RunQuery(context.Background(), "PETR4 financial health")
	require.NoError(t, err)

	assert.Equal(t, []domain.EventType{
		domain.EventQueryStarted,
		domain.EventAgentRouted,
		domain.EventSpecialistStarted,
		domain.EventToolCallStarted,
		domain.EventToolCallCompleted,
		domain.EventSpecialistConcluded,
		domain.EventAgentRouted,
		domain.EventQueryCompleted,
	}, seen)
}

func TestNewOrchestrator_UnknownEnabled(t *testing.T) {
	_, err := NewOrchestrator(OrchestratorDeps{
		Specialists: NewRegistry(nil),
		Enabled:     []string{"macro_analyst"},
	})
	assert.True(t, domain.IsConfigurationError(err))

	_, err = NewOrchestrator(OrchestratorDeps{})
	assert.True(t, domain.IsConfigurationError(err))
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(nil)
	s, err := usecase.NewSpecialist(usecase.SpecialistDeps{
		Identity: domain.SpecialistIdentity{Name: domain.PriceAnalyst},
		Decider:  concludeDecider{},
	})
	require.NoError(t, err)

	require.NoError(t, reg.Register(s))
	assert.ErrorIs(t, reg.Register(s), domain.ErrDuplicate)

	got, err := reg.Get(domain.PriceAnalyst)
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = reg.Get("nope")
	assert.ErrorIs(t, err, domain.ErrSpecialistNotFound)

	assert.Equal(t, []string{domain.PriceAnalyst}, reg.Names())
	require.Len(t, reg.List(), 1)
	assert.Equal(t, usecase.DefaultDescriptions[domain.PriceAnalyst], reg.List()[0].Description)
}
