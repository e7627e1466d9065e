package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"hedgefund/internal/domain"
	"hedgefund/internal/infra/tracer"
)

// Execute is the standard tool execution pipeline: parse params -> start trace -> run handler -> format result.
//
// The handler receives the parsed params and an active trace span. It should return:
//   - (any Go value, nil): the value is JSON-marshaled into a success ToolResult
//   - (string, nil): wrapped in a plain-text ToolResult
//   - (*domain.ToolResult, nil): returned as-is
//   - (nil, error): turned into a categorized error ToolResult
//
// Failures are always reported through the result, never as a Go error, so a
// tool failure can be observed by the specialist that asked for it.
func Execute[P any](
	ctx context.Context,
	toolName string,
	logger *slog.Logger,
	rawParams json.RawMessage,
	handler func(ctx context.Context, span trace.Span, params P) (any, error),
) (*domain.ToolResult, error) {
	ctx, span := tracer.StartSpan(ctx, "tool."+toolName,
		trace.WithAttributes(tracer.StringAttr("tool.name", toolName)),
	)
	defer span.End()

	p, bad := ParseParams[P](toolName, rawParams)
	if bad != nil {
		tracer.RecordError(span, fmt.Errorf("%s", bad.Content))
		return bad, nil
	}

	result, err := handler(ctx, span, p)
	if err != nil {
		kind := classifyToolError(err)
		span.SetAttributes(tracer.StringAttr("tool.error_kind", string(kind)))
		tracer.RecordError(span, err)
		if logger != nil {
			logger.Warn("tool failed", "tool", toolName, "kind", kind, "error", err)
		}
		te := &domain.ToolError{Tool: toolName, Kind: kind, Err: err}
		return te.AsResult(), nil
	}

	return formatResult(span, result)
}

// formatResult converts the handler's return value into a ToolResult.
func formatResult(span trace.Span, result any) (*domain.ToolResult, error) {
	switch v := result.(type) {
	case *domain.ToolResult:
		if v.IsError {
			tracer.RecordError(span, fmt.Errorf("%s", v.Content))
		} else {
			tracer.SetOK(span)
		}
		return v, nil
	case string:
		tracer.SetOK(span)
		return &domain.ToolResult{Content: v}, nil
	default:
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			tracer.RecordError(span, err)
			return &domain.ToolResult{
				IsError:   true,
				ErrorKind: domain.ToolErrMalformed,
				Content:   fmt.Sprintf("failed to format response: %v", err),
			}, nil
		}
		tracer.SetOK(span)
		return &domain.ToolResult{Content: string(data)}, nil
	}
}

// ParseParams unmarshals rawParams into P. On failure it returns an
// invalid_arguments ToolResult suitable for returning directly.
func ParseParams[P any](toolName string, rawParams json.RawMessage) (P, *domain.ToolResult) {
	var p P
	if len(rawParams) == 0 {
		rawParams = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(rawParams, &p); err != nil {
		return p, InvalidArgs(toolName, "invalid params: %v", err)
	}
	return p, nil
}

// InvalidArgs creates an invalid_arguments error ToolResult.
func InvalidArgs(toolName, format string, args ...any) *domain.ToolResult {
	te := &domain.ToolError{
		Tool: toolName,
		Kind: domain.ToolErrInvalidArguments,
		Err:  fmt.Errorf(format, args...),
	}
	return te.AsResult()
}
