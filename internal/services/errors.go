package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTransient marks retryable failures from external services
	// (analysis, messaging, storage, mail) including timeouts.
	ErrTransient = errors.New("transient failure")
	// ErrValidation marks permanently invalid input.
	ErrValidation = errors.New("validation error")
	// ErrParse marks an unparseable field (due date, action line). The
	// affected item is skipped; siblings continue.
	ErrParse = errors.New("parse error")
	// ErrConflict marks an attempted mutation of a terminal record. Callers
	// log a warning and treat it as a no-op.
	ErrConflict = errors.New("state conflict")
	// ErrDuplicate marks work already claimed or posted by another caller.
	// It is a silent success path, not a failure.
	ErrDuplicate = errors.New("duplicate suppressed")
	// ErrConfiguration marks missing or invalid configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound marks a missing record or draft.
	ErrNotFound = errors.New("not found")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsRetryable reports whether an error should be retried with backoff rather
// than failing the job outright.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrParse),
		errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrDuplicate):
		return false
	}
	return true
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
