package multiagent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"hedgefund/internal/domain"
	"hedgefund/internal/infra/tracer"
	"hedgefund/internal/usecase"
)

// Default global budgets for one query.
const (
	DefaultMaxCycles     = 10
	DefaultMaxTotalSteps = 20
)

// OrchestratorDeps holds the dependencies of an Orchestrator.
type OrchestratorDeps struct {
	Specialists   *Registry
	Enabled       []string // defaults to every registered specialist
	Router        Router   // defaults to a FacetRouter over Enabled
	Planner       Planner  // optional
	Summarizer    usecase.Summarizer
	MaxCycles     int
	MaxTotalSteps int
	Bus           domain.EventBus
	Logger        *slog.Logger
	Clock         func() time.Time
}

// Orchestrator runs the route, activate, aggregate workflow. It keeps no
// per-query state, so independent queries may run concurrently.
type Orchestrator struct {
	deps    OrchestratorDeps
	enabled map[string]bool
}

// NewOrchestrator validates the enabled specialists against the registry.
func NewOrchestrator(deps OrchestratorDeps) (*Orchestrator, error) {
	if deps.Specialists == nil {
		return nil, domain.NewConfigurationError("NewOrchestrator", "specialist registry is required")
	}
	if deps.Logger == nil {
		deps.Logger = discardLogger()
	}
	if len(deps.Enabled) == 0 {
		deps.Enabled = deps.Specialists.Names()
	}
	if len(deps.Enabled) == 0 {
		return nil, domain.NewConfigurationError("NewOrchestrator", "no specialists enabled")
	}

	enabled := make(map[string]bool, len(deps.Enabled))
	for _, name := range deps.Enabled {
		if _, err := deps.Specialists.Get(name); err != nil {
			return nil, domain.NewConfigurationError("NewOrchestrator",
				fmt.Sprintf("enabled specialist %q is not registered", name))
		}
		enabled[name] = true
	}

	if deps.Router == nil {
		deps.Router = NewFacetRouter(deps.Enabled, deps.Logger)
	}
	if deps.MaxCycles <= 0 {
		deps.MaxCycles = DefaultMaxCycles
	}
	if deps.MaxTotalSteps <= 0 {
		deps.MaxTotalSteps = DefaultMaxTotalSteps
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Orchestrator{deps: deps, enabled: enabled}, nil
}

// RunQuery answers one question. Tool failures and budget exhaustion degrade
// the answer; only invalid input, configuration errors and cancellation are
// returned as errors.
func (o *Orchestrator) RunQuery(ctx context.Context, text string) (*domain.FinalAnswer, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.NewDomainError("Orchestrator.RunQuery", domain.ErrInvalidInput, "empty query")
	}

	state := domain.NewConversationState(text, o.deps.Clock)
	logger := o.deps.Logger.With("query_id", state.ID())

	ctx, span := tracer.StartSpan(ctx, "orchestrator.run_query",
		trace.WithAttributes(tracer.StringAttr("query.id", state.ID())))
	defer span.End()

	start := o.deps.Clock()
	o.publish(ctx, state, domain.EventQueryStarted, domain.ProgressPayload{Detail: text})
	logger.Info("query started")

	if o.deps.Planner != nil {
		if err := o.plan(ctx, state, logger); err != nil {
			tracer.RecordError(span, err)
			return nil, err
		}
	}

	cycles, steps, incomplete, err := o.loop(ctx, state, logger)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	answer := aggregate(state)
	answer.Incomplete = answer.Incomplete || incomplete

	if o.deps.Summarizer != nil && len(answer.Sections) > 0 {
		summary, err := o.summarize(ctx, state, answer.Sections)
		if err != nil {
			tracer.RecordError(span, err)
			return nil, err
		}
		answer.Summary = summary
	}
	answer.Messages = state.Messages()

	span.SetAttributes(
		tracer.IntAttr("query.cycles", cycles),
		tracer.IntAttr("query.steps", steps),
		tracer.BoolAttr("query.incomplete", answer.Incomplete),
	)
	tracer.SetOK(span)

	ok := !answer.Incomplete
	o.publish(ctx, state, domain.EventQueryCompleted, domain.ProgressPayload{
		Detail:  fmt.Sprintf("%d sections", len(answer.Sections)),
		Success: &ok,
	})
	logger.Info("query completed",
		"sections", len(answer.Sections),
		"cycles", cycles,
		"steps", steps,
		"incomplete", answer.Incomplete,
		"duration", o.deps.Clock().Sub(start),
	)
	return answer, nil
}

// plan records the planner's facets as the first router message. A planner
// failure is recorded as a router message without facets, and routing falls
// back to keyword detection.
func (o *Orchestrator) plan(ctx context.Context, state *domain.ConversationState, logger *slog.Logger) error {
	decision, err := o.deps.Planner.Plan(ctx, state.Query())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		logger.Warn("planner failed, using keyword routing", "error", err)
		note := fmt.Sprintf("plan failed: %v; keyword routing", err)
		_, err = state.Append(domain.Message{
			Role:     domain.RoleRouter,
			Content:  note,
			Decision: &domain.RoutingDecision{Rationale: note},
		})
		return err
	}
	_, err = state.Append(domain.Message{
		Role:     domain.RoleRouter,
		Content:  "plan: " + joinFacets(decision.Facets) + " (" + decision.Rationale + ")",
		Decision: &decision,
	})
	return err
}

func (o *Orchestrator) loop(ctx context.Context, state *domain.ConversationState, logger *slog.Logger) (cycles, steps int, incomplete bool, err error) {
	for {
		if err := ctx.Err(); err != nil {
			return cycles, steps, true, err
		}

		decision := o.deps.Router.Next(state)
		if !decision.IsDone() && !o.enabled[decision.NextActor] {
			cfgErr := domain.NewConfigurationError("Orchestrator.RunQuery",
				fmt.Sprintf("router chose unknown specialist %q", decision.NextActor))
			stop := domain.RoutingDecision{NextActor: domain.Done, Rationale: cfgErr.Error()}
			if _, err := state.Append(domain.Message{Role: domain.RoleRouter, Content: cfgErr.Error(), Decision: &stop}); err != nil {
				return cycles, steps, true, err
			}
			return cycles, steps, true, cfgErr
		}
		if _, err := state.Append(domain.Message{
			Role:     domain.RoleRouter,
			Content:  decision.Rationale,
			Decision: &decision,
		}); err != nil {
			return cycles, steps, true, err
		}
		o.publish(ctx, state, domain.EventAgentRouted, domain.ProgressPayload{
			Specialist: decision.NextActor,
			Detail:     decision.Rationale,
		})
		active, _ := state.ActiveDecision()
		if active.IsDone() {
			return cycles, steps, false, nil
		}

		if reason := o.exhausted(cycles, steps); reason != "" {
			logger.Warn("budget exceeded", "reason", reason, "cycles", cycles, "steps", steps)
			o.publish(ctx, state, domain.EventBudgetExceeded, domain.ProgressPayload{Detail: reason})
			text := domain.NewDomainError("Orchestrator.RunQuery", domain.ErrBudgetExceeded, reason).Error()
			stop := domain.RoutingDecision{NextActor: domain.Done, Rationale: reason}
			if _, err := state.Append(domain.Message{Role: domain.RoleRouter, Content: text, Decision: &stop}); err != nil {
				return cycles, steps, true, err
			}
			return cycles, steps, true, nil
		}

		specialist, err := o.deps.Specialists.Get(active.NextActor)
		if err != nil {
			return cycles, steps, true, err
		}
		cycles++
		out, err := specialist.Run(ctx, state, usecase.Activation{Steps: o.deps.MaxTotalSteps - steps})
		steps += out.StepsUsed
		if err != nil {
			return cycles, steps, true, err
		}
	}
}

func (o *Orchestrator) exhausted(cycles, steps int) string {
	switch {
	case cycles >= o.deps.MaxCycles:
		return fmt.Sprintf("cycle budget of %d activations exhausted", o.deps.MaxCycles)
	case steps >= o.deps.MaxTotalSteps:
		return fmt.Sprintf("step budget of %d tool calls exhausted", o.deps.MaxTotalSteps)
	default:
		return ""
	}
}

// summarize appends the portfolio manager's final message. A summarizer
// failure is recorded in that message instead of failing the query.
func (o *Orchestrator) summarize(ctx context.Context, state *domain.ConversationState, sections []domain.Section) (*domain.Section, error) {
	o.publish(ctx, state, domain.EventSummaryStarted, domain.ProgressPayload{Specialist: domain.PortfolioManager})

	text, err := o.deps.Summarizer.Summarize(ctx, state.Query(), sections)
	partial := false
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		o.deps.Logger.Warn("summary failed", "query_id", state.ID(), "error", err)
		text = fmt.Sprintf("The portfolio manager summary is unavailable: %v", err)
		partial = true
	}

	msg, err := state.Append(domain.Message{
		Role:    domain.RoleFinal,
		Name:    domain.PortfolioManager,
		Content: text,
		Partial: partial,
	})
	if err != nil {
		return nil, err
	}
	return &domain.Section{Specialist: msg.Name, Text: msg.Content, Partial: msg.Partial}, nil
}

func (o *Orchestrator) publish(ctx context.Context, state *domain.ConversationState, t domain.EventType, p domain.ProgressPayload) {
	domain.PublishProgress(ctx, o.deps.Bus, t, state.ID(), p)
}

// aggregate builds one section per concluding message, in routing order.
func aggregate(state *domain.ConversationState) *domain.FinalAnswer {
	answer := &domain.FinalAnswer{QueryID: state.ID(), Query: state.Query()}
	for _, m := range state.Messages() {
		if m.Role != domain.RoleSpecialist {
			continue
		}
		answer.Sections = append(answer.Sections, domain.Section{
			Specialist: m.Name,
			Text:       m.Content,
			Partial:    m.Partial,
		})
		if m.Partial {
			answer.Incomplete = true
		}
	}
	return answer
}
