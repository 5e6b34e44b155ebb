package deadletter

import (
	"time"

	"github.com/google/uuid"
)

// Severity ranks how urgently a failure needs attention.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Notifiable reports whether this severity warrants a notification.
func (s Severity) Notifiable() bool {
	return s >= SeverityHigh
}

// FailureRecord describes one terminally-failed operation.
// It is immutable once built.
type FailureRecord struct {
	ErrorID          string         `json:"error_id"`
	Timestamp        time.Time      `json:"timestamp"`
	SubjectID        string         `json:"subject_id,omitempty"`
	Dependency       string         `json:"dependency"`
	Operation        string         `json:"operation"`
	ExceptionType    string         `json:"exception_type"`
	ExceptionMessage string         `json:"exception_message"`
	Severity         Severity       `json:"severity"`
	Details          map[string]any `json:"details,omitempty"`
}

// NewRecord builds a FailureRecord with a fresh unique error ID.
func NewRecord(subject, dependency, operation, exceptionType string, err error, severity Severity) FailureRecord {
	rec := FailureRecord{
		ErrorID:       uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		SubjectID:     subject,
		Dependency:    dependency,
		Operation:     operation,
		ExceptionType: exceptionType,
		Severity:      severity,
	}
	if err != nil {
		rec.ExceptionMessage = err.Error()
	}
	return rec
}

// WithDetails returns a copy of the record with details attached.
func (r FailureRecord) WithDetails(details map[string]any) FailureRecord {
	r.Details = details
	return r
}
