package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrResolution         = errors.New("resolution error")
	ErrReconciliation     = errors.New("reconciliation error")
	ErrFetch              = errors.New("fetch error")
	ErrDuplicateArtifact  = errors.New("duplicate artifact")
	ErrCatalogWrite       = errors.New("catalog write error")
	ErrCatalogRead        = errors.New("catalog read error")
	ErrPreexistingState   = errors.New("preexisting state")
	ErrNotFound           = errors.New("not found")
	ErrTransport          = errors.New("transport failure")
	ErrManualIntervention = errors.New("manual intervention required")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransport
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// RequireManual tags err as needing a human decision. Such failures happen
// after the catalog may have been touched and are never retried automatically.
func RequireManual(err error) error {
	if err == nil || errors.Is(err, ErrManualIntervention) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrManualIntervention, err)
}

// NeedsManualIntervention reports whether err must be resolved by a human
// before the same source can be submitted again.
func NeedsManualIntervention(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrManualIntervention), errors.Is(err, ErrDuplicateArtifact), errors.Is(err, ErrPreexistingState):
		return true
	default:
		return false
	}
}

// Retryable reports whether a fresh submission may be attempted after err.
func Retryable(err error) bool {
	return err != nil && !NeedsManualIntervention(err)
}

// FailureMessage renders err for progress entries and API responses. Failures
// requiring manual intervention always carry the marker text so callers can
// tell them apart from clean failures.
func FailureMessage(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if NeedsManualIntervention(err) && !strings.Contains(msg, ErrManualIntervention.Error()) {
		return ErrManualIntervention.Error() + ": " + msg
	}
	return msg
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
