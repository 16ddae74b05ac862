package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrQuestionSetNotFound indicates no question bank exists for a level/week.
	ErrQuestionSetNotFound = errors.New("question set not found")
	// ErrAttemptNotFound indicates a mutation referenced an unknown attempt.
	ErrAttemptNotFound = errors.New("quiz attempt not found")
)

// ErrorKind is the typed failure taxonomy used across the engine.
type ErrorKind string

const (
	KindNetwork        ErrorKind = "network"
	KindDatabase       ErrorKind = "database"
	KindTimer          ErrorKind = "timer"
	KindValidation     ErrorKind = "validation"
	KindAuthentication ErrorKind = "authentication"
	KindQuizState      ErrorKind = "quiz_state"
	KindQuestionLoad   ErrorKind = "question_load"
	KindSave           ErrorKind = "save"
	KindUnknown        ErrorKind = "unknown"
)

// ClassifiedError carries a failure kind plus both a technical and a
// user-facing message. The technical message never reaches end users.
type ClassifiedError struct {
	Kind        ErrorKind
	Message     string
	UserMessage string
	Recoverable bool
	Retryable   bool
	Context     map[string]string
	Cause       error
}

func (e *ClassifiedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ClassifiedError) Unwrap() error { return e.Cause }

// WithContext attaches a key/value pair for logging; returns the receiver.
func (e *ClassifiedError) WithContext(key, value string) *ClassifiedError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// NewNetworkError marks a connectivity failure; retryable.
func NewNetworkError(message string, cause error) *ClassifiedError {
	return &ClassifiedError{
		Kind:        KindNetwork,
		Message:     message,
		UserMessage: "Connection problem. Please check your internet and try again.",
		Recoverable: true,
		Retryable:   true,
		Cause:       cause,
	}
}

// NewDatabaseError marks a backing-store failure; retryable.
func NewDatabaseError(message string, cause error) *ClassifiedError {
	return &ClassifiedError{
		Kind:        KindDatabase,
		Message:     message,
		UserMessage: "We had trouble reaching the server. Please try again.",
		Recoverable: true,
		Retryable:   true,
		Cause:       cause,
	}
}

// NewTimerError marks a countdown fault. Absorbed: the quiz continues
// untimed rather than crashing, so never retried.
func NewTimerError(message string, cause error) *ClassifiedError {
	return &ClassifiedError{
		Kind:        KindTimer,
		Message:     message,
		UserMessage: "The question timer hiccupped. You can keep playing.",
		Recoverable: true,
		Retryable:   false,
		Cause:       cause,
	}
}

// NewValidationError marks bad input; never retried.
func NewValidationError(message string) *ClassifiedError {
	return &ClassifiedError{
		Kind:        KindValidation,
		Message:     message,
		UserMessage: "That doesn't look right. Please check and try again.",
		Recoverable: true,
		Retryable:   false,
	}
}

// NewQuizStateError marks an invalid transition; a programming error,
// never retried.
func NewQuizStateError(message string) *ClassifiedError {
	return &ClassifiedError{
		Kind:        KindQuizState,
		Message:     message,
		UserMessage: "Something went wrong with the quiz. Please restart.",
		Recoverable: false,
		Retryable:   false,
	}
}

// NewQuestionLoadError marks a failure fetching the question bank; retryable.
func NewQuestionLoadError(message string, cause error) *ClassifiedError {
	return &ClassifiedError{
		Kind:        KindQuestionLoad,
		Message:     message,
		UserMessage: "We couldn't load your questions. Please try again.",
		Recoverable: true,
		Retryable:   true,
		Cause:       cause,
	}
}

// NewSaveError marks a failed progress write; retryable but never blocking.
func NewSaveError(message string, cause error) *ClassifiedError {
	return &ClassifiedError{
		Kind:        KindSave,
		Message:     message,
		UserMessage: "Your progress may not have synced. Your score is safe on this device.",
		Recoverable: true,
		Retryable:   true,
		Cause:       cause,
	}
}

// NewUnknownError wraps an unrecognized failure with a generic user message.
func NewUnknownError(message string, cause error) *ClassifiedError {
	return &ClassifiedError{
		Kind:        KindUnknown,
		Message:     message,
		UserMessage: "Something unexpected happened. Please try again.",
		Recoverable: true,
		Retryable:   false,
		Cause:       cause,
	}
}

// Classify normalizes an arbitrary error into a ClassifiedError. Already
// classified errors pass through unchanged; otherwise the kind is
// inferred from message substrings, defaulting to unknown.
func Classify(err error) *ClassifiedError {
	if err == nil {
		return nil
	}
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "network"),
		strings.Contains(msg, "fetch"),
		strings.Contains(msg, "timeout"),
		strings.Contains(msg, "connection refused"):
		return NewNetworkError(err.Error(), err)
	case strings.Contains(msg, "database"),
		strings.Contains(msg, "relation"),
		strings.Contains(msg, "column"):
		return NewDatabaseError(err.Error(), err)
	default:
		return NewUnknownError(err.Error(), err)
	}
}
