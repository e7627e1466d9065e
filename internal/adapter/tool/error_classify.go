package tool

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/sony/gobreaker/v2"

	"hedgefund/internal/domain"
)

// kindSentinels maps domain sentinels to the tool error category they imply.
// Order matters: the first match wins.
var kindSentinels = []struct {
	err  error
	kind domain.ToolErrorKind
}{
	{domain.ErrInvalidInput, domain.ToolErrInvalidArguments},
	{domain.ErrNotFound, domain.ToolErrNotFound},
	{domain.ErrRateLimit, domain.ToolErrRateLimit},
	{domain.ErrMalformedResponse, domain.ToolErrMalformed},
	{domain.ErrNetwork, domain.ToolErrNetwork},
	{domain.ErrTimeout, domain.ToolErrNetwork},
	{domain.ErrAuthInvalid, domain.ToolErrNetwork},
	{context.DeadlineExceeded, domain.ToolErrNetwork},
	{gobreaker.ErrOpenState, domain.ToolErrNetwork},
	{gobreaker.ErrTooManyRequests, domain.ToolErrNetwork},
}

// networkPatterns are substrings in error messages that indicate a transport failure.
// Checked case-insensitively.
var networkPatterns = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"timeout",
	"deadline exceeded",
	"temporarily unavailable",
	"service unavailable",
	"eof",
}

// classifyToolError maps a provider failure to a ToolErrorKind. Errors that
// carry no recognizable category are treated as network failures, since
// every tool failure past argument validation happens on the wire.
func classifyToolError(err error) domain.ToolErrorKind {
	if err == nil {
		return ""
	}

	var te *domain.ToolError
	if errors.As(err, &te) {
		return te.Kind
	}

	for _, s := range kindSentinels {
		if errors.Is(err, s.err) {
			return s.kind
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.ToolErrNetwork
	}

	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "not found") {
		return domain.ToolErrNotFound
	}
	for _, p := range networkPatterns {
		if strings.Contains(lower, p) {
			return domain.ToolErrNetwork
		}
	}
	return domain.ToolErrNetwork
}

// IsTransient reports whether a failure of this kind may succeed if the
// same call is made again later.
func IsTransient(kind domain.ToolErrorKind) bool {
	return kind == domain.ToolErrNetwork || kind == domain.ToolErrRateLimit
}
