package resilience

import (
	"context"
	"errors"

	"github.com/kmorrisey/gatekeep/deadletter"
)

// ErrorClass buckets a downstream error for retry and severity decisions.
type ErrorClass int

const (
	// ClassUnknown is an unclassified error. Not retried: an error the
	// classifier cannot place is assumed not to self-resolve.
	ClassUnknown ErrorClass = iota
	// ClassTransient is a generic server-side (5xx-equivalent) condition.
	ClassTransient
	// ClassThrottling is a rate-limit rejection from the dependency.
	ClassThrottling
	// ClassUnavailable is a service-unavailable condition.
	ClassUnavailable
	// ClassInternal is a dependency-internal server error.
	ClassInternal
	// ClassQuota is a quota or limit-exceeded condition; retried with a
	// longer backoff.
	ClassQuota
	// ClassAuth is an authentication or authorization failure.
	ClassAuth
	// ClassValidation is a malformed-request failure.
	ClassValidation
	// ClassNotFound is a missing-resource failure.
	ClassNotFound
)

// String returns the string representation of the class.
func (c ErrorClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassThrottling:
		return "throttling"
	case ClassUnavailable:
		return "unavailable"
	case ClassInternal:
		return "internal"
	case ClassQuota:
		return "quota"
	case ClassAuth:
		return "authentication"
	case ClassValidation:
		return "validation"
	case ClassNotFound:
		return "not-found"
	default:
		return "unknown"
	}
}

// Retryable reports whether errors of this class may self-resolve and are
// worth retrying.
func (c ErrorClass) Retryable() bool {
	switch c {
	case ClassTransient, ClassThrottling, ClassUnavailable, ClassInternal, ClassQuota:
		return true
	default:
		return false
	}
}

// LongBackoff reports whether retries of this class should back off
// longer than the configured policy.
func (c ErrorClass) LongBackoff() bool {
	return c == ClassQuota
}

// Severity maps the class to a dead-letter severity.
func (c ErrorClass) Severity() deadletter.Severity {
	switch c {
	case ClassInternal, ClassUnavailable:
		return deadletter.SeverityCritical
	case ClassQuota, ClassTransient:
		return deadletter.SeverityHigh
	case ClassAuth, ClassValidation, ClassNotFound, ClassThrottling:
		return deadletter.SeverityMedium
	default:
		return deadletter.SeverityLow
	}
}

// Classifier buckets a downstream error. Supplied per dependency so this
// package needs no knowledge of any particular backend's error vocabulary.
type Classifier func(err error) ErrorClass

// StatusCoder is implemented by errors that carry an HTTP-like status.
// DefaultClassifier uses it when no explicit classifier is configured.
type StatusCoder interface {
	StatusCode() int
}

// DefaultClassifier classifies by status code when the error exposes one:
// server-side conditions are retryable, everything else is terminal.
// Context cancellation is always terminal.
func DefaultClassifier(err error) ErrorClass {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassUnknown
	}

	var sc StatusCoder
	if !errors.As(err, &sc) {
		return ClassUnknown
	}

	switch code := sc.StatusCode(); {
	case code == 429:
		return ClassThrottling
	case code == 401 || code == 403:
		return ClassAuth
	case code == 404:
		return ClassNotFound
	case code == 400 || code == 422:
		return ClassValidation
	case code == 500:
		return ClassInternal
	case code == 503:
		return ClassUnavailable
	case code >= 500 && code < 600:
		return ClassTransient
	default:
		return ClassUnknown
	}
}
