package domain

import (
	"context"
	"time"
)

// TimeRange is a half-open [Start, End) query window.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Window returns the range [end-d, end).
func Window(end time.Time, d time.Duration) TimeRange {
	return TimeRange{Start: end.Add(-d), End: end}
}

// EventStore is the read interface over historical user events.
// Scoring only reads; slight staleness between two queries' views of
// history is acceptable. SaveEvent exists for the ingestion hook and
// tests.
type EventStore interface {
	// Count returns the number of events of a type for a user in a window.
	Count(ctx context.Context, eventType, userID string, window TimeRange) (int64, error)

	// Sum totals a numeric field over matching events.
	Sum(ctx context.Context, eventType, userID, field string, window TimeRange) (float64, error)

	// Distinct returns the distinct values of a field over matching events.
	Distinct(ctx context.Context, eventType, userID, field string, window TimeRange) ([]string, error)

	// FirstOccurrence reports whether no prior event carries the given
	// field value, i.e. this is the first time the value is seen.
	FirstOccurrence(ctx context.Context, eventType, userID, field, value string) (bool, error)

	// LastEvent returns the most recent event strictly before the given
	// time, or nil when the user has no matching history.
	LastEvent(ctx context.Context, eventType, userID string, before time.Time) (*Event, error)

	// ListTimestamps returns matching event timestamps in ascending order.
	ListTimestamps(ctx context.Context, eventType, userID string, window TimeRange) ([]time.Time, error)

	// ListEvents returns matching events in ascending timestamp order.
	ListEvents(ctx context.Context, eventType, userID string, window TimeRange) ([]*Event, error)

	// SaveEvent appends an event to the store.
	SaveEvent(ctx context.Context, event *Event) error
}

// AlertFilter narrows an alert listing.
type AlertFilter struct {
	UserID   string
	Status   AlertStatus
	Severity Severity
	Limit    int
}

// AlertStore persists fraud alerts.
type AlertStore interface {
	SaveAlert(ctx context.Context, alert *Alert) error
	GetAlert(ctx context.Context, id string) (*Alert, error)

	// CountOpenAlerts counts a user's alerts in an open status created
	// at or after the given time. Drives deduplication.
	CountOpenAlerts(ctx context.Context, userID string, since time.Time) (int64, error)

	ListAlerts(ctx context.Context, filter AlertFilter) ([]*Alert, error)
}

// StoredScore archives one scoring result keyed by transaction id.
type StoredScore struct {
	TransactionID string          `json:"transactionId"`
	UserID        string          `json:"userId"`
	Result        *ScoringContext `json:"result"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// ScoreStore archives scoring results for idempotent re-reads.
type ScoreStore interface {
	SaveScore(ctx context.Context, score *StoredScore) error
	GetScore(ctx context.Context, transactionID string) (*StoredScore, error)
}
