package domain

import (
	"errors"
	"fmt"
)

// Category sentinels.
var (
	ErrNotFound      = fmt.Errorf("not found")
	ErrDuplicate     = fmt.Errorf("duplicate")
	ErrTimeout       = fmt.Errorf("operation timed out")
	ErrInvalidInput  = fmt.Errorf("invalid input")
	ErrProviderError = fmt.Errorf("provider error")
)

// Sentinel errors for the domain layer.
var (
	ErrProviderNotFound   = fmt.Errorf("llm provider not found")
	ErrToolNotFound       = fmt.Errorf("tool not found")
	ErrSpecialistNotFound = fmt.Errorf("specialist not found")
	ErrConfigLoad         = fmt.Errorf("failed to load configuration")

	// ErrConfiguration marks wiring mistakes detected at startup, such as a
	// specialist bound to a tool that is not registered. Fatal, never per-query.
	ErrConfiguration = fmt.Errorf("invalid configuration")

	// ErrBudgetExceeded is recorded when a step or cycle budget runs out.
	// It degrades the answer to partial instead of failing the query.
	ErrBudgetExceeded = fmt.Errorf("budget exceeded")

	// ErrUnpairedToolCall is returned by ConversationState when an append
	// would leave a tool_call without its result.
	ErrUnpairedToolCall = fmt.Errorf("tool call without matching result")

	// Data provider errors.
	ErrNetwork           = fmt.Errorf("network failure")
	ErrMalformedResponse = fmt.Errorf("malformed provider response")

	// Resilience errors.
	ErrContextOverflow = fmt.Errorf("context window exceeded")
	ErrRateLimit       = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid     = fmt.Errorf("authentication failed")
	ErrToolFailure     = fmt.Errorf("tool execution failed")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Specialist.New")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "brapi", "specialist"); used for ErrorCode dispatch
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem for ErrorCode dispatch.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// NewConfigurationError reports a startup wiring problem.
func NewConfigurationError(op, detail string) *DomainError {
	return &DomainError{Op: op, Err: ErrConfiguration, Detail: detail}
}

// IsConfigurationError reports whether err is (or wraps) a configuration error.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient error that may succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrContextOverflow)
}

// ErrorCode is a machine-parseable error category for logs and exit reporting.
type ErrorCode string

const (
	CodeUnknown            ErrorCode = "UNKNOWN"
	CodeNotFound           ErrorCode = "NOT_FOUND"
	CodeDuplicate          ErrorCode = "DUPLICATE"
	CodeTimeout            ErrorCode = "TIMEOUT"
	CodeInvalidInput       ErrorCode = "INVALID_INPUT"
	CodeProviderError      ErrorCode = "PROVIDER_ERROR"
	CodeProviderNotFound   ErrorCode = "PROVIDER_NOT_FOUND"
	CodeToolNotFound       ErrorCode = "TOOL_NOT_FOUND"
	CodeSpecialistNotFound ErrorCode = "SPECIALIST_NOT_FOUND"
	CodeConfigLoad         ErrorCode = "CONFIG_LOAD"
	CodeConfiguration      ErrorCode = "CONFIGURATION"
	CodeBudgetExceeded     ErrorCode = "BUDGET_EXCEEDED"
	CodeUnpairedToolCall   ErrorCode = "UNPAIRED_TOOL_CALL"
	CodeNetwork            ErrorCode = "NETWORK"
	CodeMalformedResponse  ErrorCode = "MALFORMED_RESPONSE"
	CodeContextOverflow    ErrorCode = "CONTEXT_OVERFLOW"
	CodeRateLimit          ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid        ErrorCode = "AUTH_INVALID"
	CodeToolFailure        ErrorCode = "TOOL_FAILURE"

	// Subsystem-specific codes.
	CodeTickerNotFound   ErrorCode = "TICKER_NOT_FOUND"
	CodeBrapiTimeout     ErrorCode = "BRAPI_TIMEOUT"
	CodeSpecialistConfig ErrorCode = "SPECIALIST_CONFIG"
)

var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:           CodeNotFound,
	ErrDuplicate:          CodeDuplicate,
	ErrTimeout:            CodeTimeout,
	ErrInvalidInput:       CodeInvalidInput,
	ErrProviderError:      CodeProviderError,
	ErrProviderNotFound:   CodeProviderNotFound,
	ErrToolNotFound:       CodeToolNotFound,
	ErrSpecialistNotFound: CodeSpecialistNotFound,
	ErrConfigLoad:         CodeConfigLoad,
	ErrConfiguration:      CodeConfiguration,
	ErrBudgetExceeded:     CodeBudgetExceeded,
	ErrUnpairedToolCall:   CodeUnpairedToolCall,
	ErrNetwork:            CodeNetwork,
	ErrMalformedResponse:  CodeMalformedResponse,
	ErrContextOverflow:    CodeContextOverflow,
	ErrRateLimit:          CodeRateLimit,
	ErrAuthInvalid:        CodeAuthInvalid,
	ErrToolFailure:        CodeToolFailure,
}

// subSystemCodeMap maps (category sentinel, subsystem) pairs to specific ErrorCodes.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrNotFound: {
		"brapi": CodeTickerNotFound,
	},
	ErrTimeout: {
		"brapi": CodeBrapiTimeout,
	},
	ErrConfiguration: {
		"specialist": CodeSpecialistConfig,
	},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// DomainErrors with a SubSystem resolve through subSystemCodeMap first.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code := de.Code(); code != CodeUnknown {
			return code
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	if e.SubSystem != "" {
		if subsysMap, ok := subSystemCodeMap[e.Err]; ok {
			if code, ok := subsysMap[e.SubSystem]; ok {
				return code
			}
		}
	}
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
