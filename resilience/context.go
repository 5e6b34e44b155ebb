package resilience

import "context"

// Context keys for resilience-related values.
type contextKey int

const subjectKey contextKey = iota

// WithSubject returns a new context carrying the metered subject on whose
// behalf downstream calls are made. Executors stamp failure records with
// it.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey, subject)
}

// SubjectFromContext retrieves the subject from the context.
// Returns empty string if none is present.
func SubjectFromContext(ctx context.Context) string {
	subject, _ := ctx.Value(subjectKey).(string)
	return subject
}
