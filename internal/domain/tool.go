package domain

import (
	"context"
	"encoding/json"
	"fmt"
)

// ToolSchema describes a tool for the LLM function-calling protocol.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCall represents a specialist's request to invoke a tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolErrorKind categorizes a failed tool invocation.
type ToolErrorKind string

const (
	// ToolErrInvalidArguments: arguments failed schema validation; no external call was made.
	ToolErrInvalidArguments ToolErrorKind = "invalid_arguments"
	ToolErrNetwork          ToolErrorKind = "network"
	ToolErrRateLimit        ToolErrorKind = "rate_limit"
	ToolErrNotFound         ToolErrorKind = "not_found"
	ToolErrMalformed        ToolErrorKind = "malformed_response"
)

// ToolResult is the outcome of executing a tool.
type ToolResult struct {
	ToolCallID string        `json:"tool_call_id"`
	Content    string        `json:"content"`
	IsError    bool          `json:"is_error"`
	ErrorKind  ToolErrorKind `json:"error_kind,omitempty"`
}

// ToolError is a categorized tool failure.
type ToolError struct {
	Tool string
	Kind ToolErrorKind
	Err  error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Tool, e.Kind, e.Err)
}

func (e *ToolError) Unwrap() error { return e.Err }

// AsResult converts the error into an error ToolResult.
func (e *ToolError) AsResult() *ToolResult {
	return &ToolResult{IsError: true, ErrorKind: e.Kind, Content: e.Error()}
}

// Tool is the interface every tool must implement.
type Tool interface {
	Name() string
	Description() string
	Schema() ToolSchema
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolExecutor abstracts tool lookup.
type ToolExecutor interface {
	Get(name string) (Tool, error)
	Schemas() []ToolSchema
}
