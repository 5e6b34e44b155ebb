package quota

import (
	"errors"
	"time"
)

// Sentinel errors for quota operations.
var (
	// ErrTracking indicates the quota bookkeeping itself failed, as
	// opposed to an orderly "quota exceeded" refusal.
	ErrTracking = errors.New("quota: counter store unavailable")

	// ErrNilStore indicates a Manager was constructed without a store.
	ErrNilStore = errors.New("quota: counter store is nil")

	// ErrMissingSubject indicates an empty subject was supplied.
	ErrMissingSubject = errors.New("quota: subject is required")
)

// LimitKind identifies which quota window refused an operation.
type LimitKind int

const (
	// LimitNone means no limit was hit.
	LimitNone LimitKind = iota
	// LimitDaily means the daily window is exhausted.
	LimitDaily
	// LimitMonthly means the monthly window is exhausted.
	LimitMonthly
)

// String returns the string representation of the limit kind.
func (k LimitKind) String() string {
	switch k {
	case LimitDaily:
		return "daily"
	case LimitMonthly:
		return "monthly"
	default:
		return "none"
	}
}

// Limits holds the per-subject admission limits.
// A limit <= 0 means that window is unlimited.
type Limits struct {
	Daily   int64
	Monthly int64
}

// BucketKey identifies one subject's counter bucket for one day.
type BucketKey struct {
	Subject string
	// Date is the day bucket in "2006-01-02" form.
	Date string
}

// Month returns the month bucket ("2006-01") the key belongs to.
func (k BucketKey) Month() string {
	if len(k.Date) < 7 {
		return k.Date
	}
	return k.Date[:7]
}

// DayKey builds the bucket key for a subject at the given instant (UTC).
func DayKey(subject string, at time.Time) BucketKey {
	return BucketKey{Subject: subject, Date: at.UTC().Format("2006-01-02")}
}

// UsageRecord is one subject's consumption in one day bucket.
type UsageRecord struct {
	SubjectID     string    `json:"subject_id"`
	BucketDate    string    `json:"bucket_date"`
	DailyCount    int64     `json:"daily_count"`
	MonthlyCount  int64     `json:"monthly_count"`
	LastOperation string    `json:"last_operation,omitempty"`
	LastUpdated   time.Time `json:"last_updated"`
}

// QuotaInfo is the usage snapshot surfaced to callers.
type QuotaInfo struct {
	SubjectID    string `json:"subject_id"`
	BucketDate   string `json:"bucket_date"`
	DailyUsed    int64  `json:"daily_used"`
	DailyLimit   int64  `json:"daily_limit"`
	MonthlyUsed  int64  `json:"monthly_used"`
	MonthlyLimit int64  `json:"monthly_limit"`
}

// DailyRemaining returns the operations left in the daily window.
// Unlimited windows report -1.
func (i QuotaInfo) DailyRemaining() int64 {
	return remaining(i.DailyUsed, i.DailyLimit)
}

// MonthlyRemaining returns the operations left in the monthly window.
// Unlimited windows report -1.
func (i QuotaInfo) MonthlyRemaining() int64 {
	return remaining(i.MonthlyUsed, i.MonthlyLimit)
}

func remaining(used, limit int64) int64 {
	if limit <= 0 {
		return -1
	}
	if used >= limit {
		return 0
	}
	return limit - used
}

// Decision is the outcome of an admission check.
type Decision struct {
	// Allowed reports whether the operation may proceed.
	Allowed bool

	// Reason identifies the exhausted window when Allowed is false.
	Reason LimitKind

	// Info is the usage snapshot backing the decision.
	Info QuotaInfo

	// Degraded is set when the store was unreachable and the configured
	// policy admitted the call anyway. TrackingErr carries the cause.
	Degraded    bool
	TrackingErr error
}

// info builds a QuotaInfo from a record and the configured limits.
func info(rec UsageRecord, limits Limits) QuotaInfo {
	return QuotaInfo{
		SubjectID:    rec.SubjectID,
		BucketDate:   rec.BucketDate,
		DailyUsed:    rec.DailyCount,
		DailyLimit:   limits.Daily,
		MonthlyUsed:  rec.MonthlyCount,
		MonthlyLimit: limits.Monthly,
	}
}

// evaluate decides admission from current counts without mutating anything.
func evaluate(rec UsageRecord, limits Limits) (bool, LimitKind) {
	if limits.Daily > 0 && rec.DailyCount >= limits.Daily {
		return false, LimitDaily
	}
	if limits.Monthly > 0 && rec.MonthlyCount >= limits.Monthly {
		return false, LimitMonthly
	}
	return true, LimitNone
}
