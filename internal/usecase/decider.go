package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"hedgefund/internal/domain"
)

// Retry configuration for LLM calls.
const (
	defaultLLMAttempts = 3
	baseRetryDelay     = 500 * time.Millisecond
	maxRetryDelay      = 10 * time.Second
	minTrimBudget      = 256
)

// DecisionContext is everything a Decider sees for one step.
type DecisionContext struct {
	QueryID      string
	Specialist   domain.SpecialistIdentity
	Query        string
	Messages     []domain.Message // messages visible to the specialist, oldest first
	Tools        []domain.ToolSchema
	MustConclude bool
}

// Decider picks the specialist's next action.
type Decider interface {
	Decide(ctx context.Context, dc DecisionContext) (domain.Action, error)
}

// LLMDeciderDeps holds the dependencies of an LLMDecider.
type LLMDeciderDeps struct {
	LLM         domain.LLMProvider
	Classifier  *ErrorClassifier // nil disables retries
	Trimmer     *TokenTrimmer    // nil sends tool payloads untrimmed
	Logger      *slog.Logger
	Bus         domain.EventBus
	Model       string
	Temperature float64
	MaxAttempts int
}

// LLMDecider asks a chat model for the next action.
type LLMDecider struct {
	deps  LLMDeciderDeps
	sleep func(ctx context.Context, d time.Duration) error
}

// NewLLMDecider creates a decider backed by deps.LLM.
func NewLLMDecider(deps LLMDeciderDeps) (*LLMDecider, error) {
	if deps.LLM == nil {
		return nil, domain.NewConfigurationError("NewLLMDecider", "llm provider is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.MaxAttempts <= 0 {
		deps.MaxAttempts = defaultLLMAttempts
	}
	return &LLMDecider{deps: deps, sleep: sleepCtx}, nil
}

// Decide sends one chat request and maps the reply to an Action.
func (d *LLMDecider) Decide(ctx context.Context, dc DecisionContext) (domain.Action, error) {
	trimmer := d.deps.Trimmer

	maxAttempts := 1
	if d.deps.Classifier != nil {
		maxAttempts = d.deps.MaxAttempts
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		req := d.buildRequest(dc, trimmer)

		domain.PublishProgress(ctx, d.deps.Bus, domain.EventLLMCallStarted, dc.QueryID, domain.ProgressPayload{
			Specialist: dc.Specialist.Name,
		})
		resp, err := d.deps.LLM.Chat(ctx, req)
		ok := err == nil
		domain.PublishProgress(ctx, d.deps.Bus, domain.EventLLMCallCompleted, dc.QueryID, domain.ProgressPayload{
			Specialist: dc.Specialist.Name,
			Success:    &ok,
		})
		if err == nil {
			return toAction(resp)
		}
		lastErr = err

		if d.deps.Classifier == nil {
			return domain.Action{}, err
		}
		classified := d.deps.Classifier.Classify(err)
		if classified.Category != ErrorCategoryRetryable {
			return domain.Action{}, err
		}

		// Context overflow: shrink tool payloads and rebuild right away.
		if errors.Is(classified.Sentinel, domain.ErrContextOverflow) {
			trimmer = shrink(trimmer)
			d.deps.Logger.Warn("context overflow, shrinking tool payloads",
				"specialist", dc.Specialist.Name, "budget", trimmer.Budget())
			continue
		}

		if attempt < maxAttempts-1 {
			delay := retryBackoff(attempt)
			d.deps.Logger.Info("retrying LLM call after error",
				"specialist", dc.Specialist.Name, "attempt", attempt+1, "delay", delay, "error", err)
			if err := d.sleep(ctx, delay); err != nil {
				return domain.Action{}, err
			}
		}
	}
	return domain.Action{}, lastErr
}

func (d *LLMDecider) buildRequest(dc DecisionContext, trimmer *TokenTrimmer) domain.ChatRequest {
	tools := dc.Tools
	if dc.MustConclude {
		tools = nil
	}

	msgs := make([]domain.ChatMessage, 0, len(dc.Messages)+1)
	msgs = append(msgs, domain.ChatMessage{
		Role:    domain.ChatRoleSystem,
		Content: buildSystemPrompt(dc.Specialist, tools, dc.MustConclude),
	})
	for _, m := range dc.Messages {
		cm, ok := toChatMessage(m, trimmer)
		if ok {
			msgs = append(msgs, cm)
		}
	}

	return domain.ChatRequest{
		Model:       d.deps.Model,
		Messages:    msgs,
		Tools:       tools,
		Temperature: d.deps.Temperature,
	}
}

// toChatMessage maps a conversation message to the chat protocol. Router and
// final messages are not shown to specialists.
func toChatMessage(m domain.Message, trimmer *TokenTrimmer) (domain.ChatMessage, bool) {
	switch m.Role {
	case domain.RoleUser:
		return domain.ChatMessage{Role: domain.ChatRoleUser, Content: m.Content}, true
	case domain.RoleSpecialist:
		return domain.ChatMessage{
			Role:    domain.ChatRoleUser,
			Name:    m.Name,
			Content: fmt.Sprintf("Report from %s:\n%s", m.Name, m.Content),
		}, true
	case domain.RoleToolCall:
		if m.ToolCall == nil {
			return domain.ChatMessage{}, false
		}
		return domain.ChatMessage{Role: domain.ChatRoleAssistant, ToolCalls: []domain.ToolCall{*m.ToolCall}}, true
	case domain.RoleToolResult, domain.RoleToolError:
		content := m.Content
		callID := ""
		if m.ToolResult != nil {
			callID = m.ToolResult.ToolCallID
		}
		if m.Role == domain.RoleToolResult {
			content = trimmer.Trim(content)
		}
		return domain.ChatMessage{Role: domain.ChatRoleTool, Name: m.Name, ToolCallID: callID, Content: content}, true
	default:
		return domain.ChatMessage{}, false
	}
}

// toAction keeps only the first tool call of a reply; the specialist loop
// runs tools strictly one at a time.
func toAction(resp *domain.ChatResponse) (domain.Action, error) {
	if resp == nil {
		return domain.Action{}, domain.NewDomainError("LLMDecider.Decide", domain.ErrMalformedResponse, "empty response")
	}
	if len(resp.Message.ToolCalls) > 0 {
		tc := resp.Message.ToolCalls[0]
		if strings.TrimSpace(tc.Name) == "" {
			return domain.Action{}, domain.NewDomainError("LLMDecider.Decide", domain.ErrMalformedResponse, "tool call without name")
		}
		if len(tc.Arguments) == 0 {
			tc.Arguments = json.RawMessage(`{}`)
		}
		return domain.Action{ToolCall: &tc}, nil
	}
	return domain.Action{Final: resp.Message.Content}, nil
}

func shrink(t *TokenTrimmer) *TokenTrimmer {
	if t == nil {
		return newApproxTrimmer(minTrimBudget * 4)
	}
	budget := t.Budget() / 2
	if budget < minTrimBudget {
		budget = minTrimBudget
	}
	return t.WithBudget(budget)
}

// retryBackoff computes exponential backoff with jitter.
func retryBackoff(attempt int) time.Duration {
	delay := baseRetryDelay * time.Duration(1<<uint(attempt))
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	// Add 0-25% jitter.
	jitter := time.Duration(rand.Int63n(int64(delay/4) + 1))
	return delay + jitter
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ErrScriptExhausted is returned by a ScriptedDecider with no steps left.
var ErrScriptExhausted = errors.New("scripted decider: no steps left")

// ScriptStep is one scripted reply.
type ScriptStep struct {
	Action domain.Action
	Err    error
}

// CallTool scripts a tool call with raw JSON arguments.
func CallTool(name, args string) ScriptStep {
	return ScriptStep{Action: domain.Action{ToolCall: &domain.ToolCall{Name: name, Arguments: json.RawMessage(args)}}}
}

// Conclude scripts a final answer.
func Conclude(text string) ScriptStep {
	return ScriptStep{Action: domain.Action{Final: text}}
}

// Fail scripts a collaborator failure.
func Fail(err error) ScriptStep {
	return ScriptStep{Err: err}
}

// ScriptedDecider replays per-specialist queues of steps. It is
// deterministic and safe for concurrent use.
type ScriptedDecider struct {
	mu      sync.Mutex
	scripts map[string][]ScriptStep
	calls   []DecisionContext
}

// NewScriptedDecider creates an empty ScriptedDecider.
func NewScriptedDecider() *ScriptedDecider {
	return &ScriptedDecider{scripts: make(map[string][]ScriptStep)}
}

// Script appends steps to the named specialist's queue.
func (s *ScriptedDecider) Script(specialist string, steps ...ScriptStep) *ScriptedDecider {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[specialist] = append(s.scripts[specialist], steps...)
	return s
}

// Decide pops the next step for dc.Specialist.
func (s *ScriptedDecider) Decide(_ context.Context, dc DecisionContext) (domain.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, dc)

	queue := s.scripts[dc.Specialist.Name]
	if len(queue) == 0 {
		return domain.Action{}, ErrScriptExhausted
	}
	step := queue[0]
	s.scripts[dc.Specialist.Name] = queue[1:]
	if step.Action.ToolCall != nil {
		tc := *step.Action.ToolCall
		step.Action.ToolCall = &tc
	}
	return step.Action, step.Err
}

// Calls returns the decision contexts seen so far.
func (s *ScriptedDecider) Calls() []DecisionContext {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DecisionContext(nil), s.calls...)
}

var (
	_ Decider = (*LLMDecider)(nil)
	_ Decider = (*ScriptedDecider)(nil)
)
