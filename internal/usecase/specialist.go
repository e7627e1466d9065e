package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"hedgefund/internal/domain"
	"hedgefund/internal/infra/tracer"
)

// DefaultMaxSteps bounds the tool calls of one activation.
const DefaultMaxSteps = 5

// SpecialistDeps holds the dependencies of a Specialist.
type SpecialistDeps struct {
	Identity domain.SpecialistIdentity
	Tools    domain.ToolExecutor // full registry; Identity.Tools selects the bound set
	Decider  Decider
	Logger   *slog.Logger
	Bus      domain.EventBus  // optional
	Clock    func() time.Time // optional
}

// Activation carries per-run limits set by the orchestrator.
type Activation struct {
	// Steps further caps the tool calls of this run. Zero means no extra cap.
	Steps int
}

// Outcome is the result of one activation.
type Outcome struct {
	Message   domain.Message // the concluding specialist message
	StepsUsed int
	Partial   bool
}

// Specialist is a role-bound tool loop: decide, call, observe, conclude.
type Specialist struct {
	identity domain.SpecialistIdentity
	bound    map[string]domain.Tool
	schemas  []domain.ToolSchema
	decider  Decider
	logger   *slog.Logger
	bus      domain.EventBus
	now      func() time.Time
}

// NewSpecialist validates the identity against the tool registry.
func NewSpecialist(deps SpecialistDeps) (*Specialist, error) {
	id := deps.Identity
	if strings.TrimSpace(id.Name) == "" {
		return nil, domain.NewConfigurationError("NewSpecialist", "specialist name is required")
	}
	if deps.Decider == nil {
		return nil, domain.NewConfigurationError("NewSpecialist", id.Name+": decider is required")
	}
	if id.MaxSteps <= 0 {
		id.MaxSteps = DefaultMaxSteps
	}
	if id.SystemPrompt == "" {
		id.SystemPrompt = DefaultSystemPrompts[id.Name]
	}
	if id.Description == "" {
		id.Description = DefaultDescriptions[id.Name]
	}

	s := &Specialist{
		identity: id,
		bound:    make(map[string]domain.Tool, len(id.Tools)),
		decider:  deps.Decider,
		logger:   deps.Logger,
		bus:      deps.Bus,
		now:      deps.Clock,
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	if s.now == nil {
		s.now = time.Now
	}

	for _, name := range id.Tools {
		if deps.Tools == nil {
			return nil, domain.NewSubSystemError("specialist", "NewSpecialist", domain.ErrConfiguration,
				fmt.Sprintf("%s: no tool registry for bound tool %q", id.Name, name))
		}
		if _, dup := s.bound[name]; dup {
			continue
		}
		t, err := deps.Tools.Get(name)
		if err != nil {
			return nil, domain.NewSubSystemError("specialist", "NewSpecialist", domain.ErrConfiguration,
				fmt.Sprintf("%s: bound tool %q is not registered", id.Name, name))
		}
		s.bound[name] = t
		s.schemas = append(s.schemas, t.Schema())
	}
	s.logger = s.logger.With("specialist", id.Name)
	return s, nil
}

// Name returns the specialist's name.
func (s *Specialist) Name() string { return s.identity.Name }

// Identity returns the effective identity, defaults applied.
func (s *Specialist) Identity() domain.SpecialistIdentity { return s.identity }

// Run drives one activation against state and appends a concluding message.
// Tool failures and collaborator failures become messages; only context
// cancellation and state invariant violations are returned as errors.
func (s *Specialist) Run(ctx context.Context, state *domain.ConversationState, act Activation) (Outcome, error) {
	ctx, span := tracer.StartSpan(ctx, "specialist.run",
		trace.WithAttributes(tracer.StringAttr("specialist.name", s.identity.Name)))
	defer span.End()

	start := s.now()
	first := state.Len()
	maxSteps := s.identity.MaxSteps
	if act.Steps > 0 && act.Steps < maxSteps {
		maxSteps = act.Steps
	}

	s.publish(ctx, state, domain.EventSpecialistStarted, domain.ProgressPayload{
		Detail: fmt.Sprintf("budget %d steps", maxSteps),
	})

	steps := 0
	for {
		if err := ctx.Err(); err != nil {
			tracer.RecordError(span, err)
			return Outcome{StepsUsed: steps}, err
		}

		mustConclude := steps >= maxSteps
		action, err := s.decider.Decide(ctx, DecisionContext{
			QueryID:      state.ID(),
			Specialist:   s.identity,
			Query:        state.Query(),
			Messages:     visibleMessages(state.Messages(), first),
			Tools:        s.schemas,
			MustConclude: mustConclude,
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				tracer.RecordError(span, ctxErr)
				return Outcome{StepsUsed: steps}, ctxErr
			}
			s.logger.Warn("decider failed, concluding", "error", err, "steps", steps)
			text := fmt.Sprintf("%s could not complete the analysis: the reasoning service failed (%v).", s.identity.Name, err)
			return s.conclude(ctx, span, state, text, true, steps, start)
		}

		if action.IsFinal() {
			text := strings.TrimSpace(action.Final)
			partial := mustConclude
			if text == "" {
				text = s.exhaustedText(maxSteps, mustConclude)
				partial = true
			}
			return s.conclude(ctx, span, state, text, partial, steps, start)
		}

		if mustConclude {
			s.logger.Warn("tool requested after forced conclusion", "tool", action.ToolCall.Name)
			return s.conclude(ctx, span, state, s.exhaustedText(maxSteps, true), true, steps, start)
		}

		steps++
		if err := s.callTool(ctx, state, *action.ToolCall); err != nil {
			tracer.RecordError(span, err)
			return Outcome{StepsUsed: steps}, err
		}
	}
}

func (s *Specialist) exhaustedText(maxSteps int, exhausted bool) string {
	if exhausted {
		return domain.NewDomainError(s.identity.Name, domain.ErrBudgetExceeded,
			fmt.Sprintf("used its budget of %d tool calls without reaching a conclusion, the analysis is incomplete", maxSteps)).Error()
	}
	return fmt.Sprintf("%s returned an empty conclusion; the analysis is incomplete.", s.identity.Name)
}

// callTool appends the call, executes it, and appends exactly one result.
func (s *Specialist) callTool(ctx context.Context, state *domain.ConversationState, tc domain.ToolCall) error {
	if tc.ID == "" {
		tc.ID = state.NewCallID()
	}
	if len(tc.Arguments) == 0 {
		tc.Arguments = json.RawMessage(`{}`)
	}

	if _, err := state.Append(domain.Message{
		Role:     domain.RoleToolCall,
		Name:     tc.Name,
		Content:  string(tc.Arguments),
		ToolCall: &tc,
	}); err != nil {
		return err
	}

	s.publish(ctx, state, domain.EventToolCallStarted, domain.ProgressPayload{Tool: tc.Name, Detail: string(tc.Arguments)})
	s.logger.Debug("tool call", "tool", tc.Name, "call_id", tc.ID)

	result := s.execute(ctx, tc)
	result.ToolCallID = tc.ID

	role := domain.RoleToolResult
	if result.IsError {
		role = domain.RoleToolError
		s.logger.Info("tool error", "tool", tc.Name, "kind", result.ErrorKind)
	}
	if _, err := state.Append(domain.Message{
		Role:       role,
		Name:       tc.Name,
		Content:    result.Content,
		ToolResult: result,
	}); err != nil {
		return err
	}

	ok := !result.IsError
	s.publish(ctx, state, domain.EventToolCallCompleted, domain.ProgressPayload{
		Tool:    tc.Name,
		Detail:  string(result.ErrorKind),
		Success: &ok,
	})
	return nil
}

// execute never returns nil; every failure is turned into an error result.
func (s *Specialist) execute(ctx context.Context, tc domain.ToolCall) *domain.ToolResult {
	t, ok := s.bound[tc.Name]
	if !ok {
		return (&domain.ToolError{
			Tool: tc.Name,
			Kind: domain.ToolErrInvalidArguments,
			Err:  fmt.Errorf("tool %q is not available to %s", tc.Name, s.identity.Name),
		}).AsResult()
	}

	result, err := t.Execute(ctx, tc.Arguments)
	if err != nil {
		return (&domain.ToolError{Tool: tc.Name, Kind: domain.ToolErrNetwork, Err: err}).AsResult()
	}
	if result == nil {
		return (&domain.ToolError{
			Tool: tc.Name,
			Kind: domain.ToolErrMalformed,
			Err:  fmt.Errorf("empty result"),
		}).AsResult()
	}
	cp := *result
	return &cp
}

func (s *Specialist) conclude(
	ctx context.Context,
	span trace.Span,
	state *domain.ConversationState,
	text string,
	partial bool,
	steps int,
	start time.Time,
) (Outcome, error) {
	msg, err := state.Append(domain.Message{
		Role:    domain.RoleSpecialist,
		Name:    s.identity.Name,
		Content: text,
		Partial: partial,
	})
	if err != nil {
		tracer.RecordError(span, err)
		return Outcome{StepsUsed: steps}, err
	}

	span.SetAttributes(
		tracer.IntAttr("specialist.steps", steps),
		tracer.BoolAttr("specialist.partial", partial),
	)
	tracer.SetOK(span)

	ok := !partial
	s.publish(ctx, state, domain.EventSpecialistConcluded, domain.ProgressPayload{
		Detail:  fmt.Sprintf("%d steps", steps),
		Success: &ok,
	})
	s.logger.Info("specialist concluded",
		"steps", steps, "partial", partial, "duration", s.now().Sub(start))

	return Outcome{Message: msg, StepsUsed: steps, Partial: partial}, nil
}

func (s *Specialist) publish(ctx context.Context, state *domain.ConversationState, t domain.EventType, p domain.ProgressPayload) {
	p.Specialist = s.identity.Name
	domain.PublishProgress(ctx, s.bus, t, state.ID(), p)
}

// visibleMessages returns what a specialist sees: the user query, the
// conclusions of earlier specialists, and its own tool exchange from index
// first onward.
func visibleMessages(all []domain.Message, first int) []domain.Message {
	out := make([]domain.Message, 0, len(all))
	for i, m := range all {
		switch {
		case m.Role == domain.RoleUser:
			out = append(out, m)
		case i < first && m.Role == domain.RoleSpecialist:
			out = append(out, m)
		case i >= first && m.Role != domain.RoleRouter && m.Role != domain.RoleFinal:
			out = append(out, m)
		}
	}
	return out
}
