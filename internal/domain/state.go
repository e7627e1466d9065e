package domain

import (
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ConversationState is the append-only log of one query. It is owned by a
// single orchestrator run and passed explicitly to every collaborator.
type ConversationState struct {
	mu      sync.RWMutex
	id      string
	msgs    []Message
	pending *ToolCall // tool_call still waiting for its result
	now     func() time.Time
	entropy io.Reader
}

// NewConversationState starts a state seeded with the user query.
// now may be nil, in which case time.Now is used.
func NewConversationState(query string, now func() time.Time) *ConversationState {
	if now == nil {
		now = time.Now
	}
	t := now()
	s := &ConversationState{
		now:     now,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0),
	}
	s.id = s.newID(t)
	s.msgs = append(s.msgs, Message{
		ID:        s.newID(t),
		Role:      RoleUser,
		Content:   strings.TrimSpace(query),
		Timestamp: t,
	})
	return s
}

func (s *ConversationState) newID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), s.entropy).String()
}

// ID returns the ULID of the query.
func (s *ConversationState) ID() string { return s.id }

// NewCallID returns a fresh identifier for a tool call.
func (s *ConversationState) NewCallID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return "call_" + s.newID(s.now())
}

// Append records msg and returns the stored copy with ID and Timestamp set.
//
// A tool_call must be answered by exactly one tool_result or tool_error
// carrying the same call ID and tool name before anything else is appended.
func (s *ConversationState) Append(msg Message) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch msg.Role {
	case RoleUser, RoleSpecialist, RoleRouter, RoleFinal, RoleToolCall:
		if s.pending != nil {
			return Message{}, NewDomainError("ConversationState.Append", ErrUnpairedToolCall,
				fmt.Sprintf("%s %s pending before %s", s.pending.Name, s.pending.ID, msg.Role))
		}
		if msg.Role == RoleToolCall {
			if msg.ToolCall == nil {
				return Message{}, NewDomainError("ConversationState.Append", ErrInvalidInput, "tool_call without call")
			}
			tc := *msg.ToolCall
			s.pending = &tc
			if msg.Name == "" {
				msg.Name = tc.Name
			}
		}
	case RoleToolResult, RoleToolError:
		if s.pending == nil {
			return Message{}, NewDomainError("ConversationState.Append", ErrInvalidInput, msg.Role+" without tool_call")
		}
		if msg.ToolResult == nil || msg.ToolResult.ToolCallID != s.pending.ID || msg.Name != s.pending.Name {
			return Message{}, NewDomainError("ConversationState.Append", ErrInvalidInput,
				fmt.Sprintf("%s does not answer %s %s", msg.Role, s.pending.Name, s.pending.ID))
		}
		s.pending = nil
	default:
		return Message{}, NewDomainError("ConversationState.Append", ErrInvalidInput, "unknown role "+msg.Role)
	}

	t := s.now()
	msg.ID = s.newID(t)
	msg.Timestamp = t
	stored := msg.clone()
	s.msgs = append(s.msgs, stored)
	return stored.clone(), nil
}

// Messages returns a copy of the log.
func (s *ConversationState) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := make([]Message, len(s.msgs))
	for i, m := range s.msgs {
		cp[i] = m.clone()
	}
	return cp
}

// Len returns the number of messages.
func (s *ConversationState) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}

// Query returns the user query that seeded the state.
func (s *ConversationState) Query() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.msgs[0].Content
}

// Concluded returns the concluding message of the named specialist, if any.
func (s *ConversationState) Concluded(name string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.msgs {
		if m.Role == RoleSpecialist && m.Name == name {
			return m.clone(), true
		}
	}
	return Message{}, false
}

// PendingToolCall returns the unanswered tool call, if any.
func (s *ConversationState) PendingToolCall() (ToolCall, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pending == nil {
		return ToolCall{}, false
	}
	return *s.pending, true
}

// ActiveDecision returns the most recent routing decision.
func (s *ConversationState) ActiveDecision() (RoutingDecision, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.msgs) - 1; i >= 0; i-- {
		if s.msgs[i].Role == RoleRouter && s.msgs[i].Decision != nil {
			return *s.msgs[i].clone().Decision, true
		}
	}
	return RoutingDecision{}, false
}
