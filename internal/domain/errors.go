package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorCode classifies failures the conversation pipeline reacts to.
type ErrorCode string

const (
	CodeCapture       ErrorCode = "CAPTURE"
	CodeTranscription ErrorCode = "TRANSCRIPTION"
	CodeImageAnalysis ErrorCode = "IMAGE_ANALYSIS"
	CodeGeneration    ErrorCode = "GENERATION"
	CodeExecution     ErrorCode = "EXECUTION"
	CodePersistence   ErrorCode = "PERSISTENCE"

	CodeInvalidInput ErrorCode = "INVALID_INPUT"
	CodeNotFound     ErrorCode = "NOT_FOUND"
	CodeBusy         ErrorCode = "BUSY"
	CodeInternal     ErrorCode = "INTERNAL"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("collaborator unavailable")
	ErrBusy        = errors.New("a turn is already in flight")
)

// Error is a classified error with an optional user-facing message.
type Error struct {
	Code        ErrorCode
	Message     string
	Underlying  error
	Context     map[string]any
	Retryable   bool
	UserMessage string
}

// NewError creates a classified error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap classifies err. A nil err stays nil.
func Wrap(err error, code ErrorCode, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Underlying: err}
}

func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

func (e *Error) WithUserMessage(message string) *Error {
	e.UserMessage = message
	return e
}

func (e *Error) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", e.Code, e.Message)

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString(" {")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s: %v", k, e.Context[k])
		}
		sb.WriteString("}")
	}

	if e.Underlying != nil {
		fmt.Fprintf(&sb, ": %v", e.Underlying)
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Underlying
}

// IsCode reports whether any error in err's chain carries code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Underlying
	}
	return false
}

// GetCode returns the outermost code in err's chain, INTERNAL when unclassified.
func GetCode(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrBusy):
		return CodeBusy
	}
	return CodeInternal
}

// UserMessage returns the user-facing text carried by err, or fallback.
func UserMessage(err error, fallback string) string {
	var e *Error
	for err != nil && errors.As(err, &e) {
		if e.UserMessage != "" {
			return e.UserMessage
		}
		err = e.Underlying
	}
	return fallback
}
