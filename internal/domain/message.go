package domain

import (
	"encoding/json"
	"time"
)

// Role constants for conversation messages.
const (
	RoleUser       = "user"
	RoleSpecialist = "specialist"
	RoleToolCall   = "tool_call"
	RoleToolResult = "tool_result"
	RoleToolError  = "tool_error"
	RoleRouter     = "router"
	RoleFinal      = "final"
)

// Message is one immutable entry of a ConversationState.
type Message struct {
	ID         string           `json:"id"`
	Role       string           `json:"role"`
	Name       string           `json:"name,omitempty"` // specialist or tool name
	Content    string           `json:"content"`
	ToolCall   *ToolCall        `json:"tool_call,omitempty"`
	ToolResult *ToolResult      `json:"tool_result,omitempty"`
	Decision   *RoutingDecision `json:"decision,omitempty"`
	Partial    bool             `json:"partial,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// Attribution returns "specialist:<name>" for concluding messages and the role otherwise.
func (m Message) Attribution() string {
	if m.Role == RoleSpecialist && m.Name != "" {
		return RoleSpecialist + ":" + m.Name
	}
	return m.Role
}

// clone returns a deep copy so stored messages cannot be mutated through
// pointers handed out to callers.
func (m Message) clone() Message {
	if m.ToolCall != nil {
		tc := *m.ToolCall
		tc.Arguments = append(json.RawMessage(nil), m.ToolCall.Arguments...)
		m.ToolCall = &tc
	}
	if m.ToolResult != nil {
		tr := *m.ToolResult
		m.ToolResult = &tr
	}
	if m.Decision != nil {
		d := *m.Decision
		d.Facets = append([]Facet(nil), m.Decision.Facets...)
		m.Decision = &d
	}
	return m
}
