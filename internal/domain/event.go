package domain

import "time"

// Event types recorded in the historical store.
const (
	EventTransactionInitiated = "transaction-initiated"
	EventSessionStarted       = "session-started"
	EventCircleMemberJoined   = "circle-member-joined"
)

// Event is one historical user event as the store returns it.
// Only the columns the rules query are first-class; everything else
// rides in Payload.
type Event struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	UserID      string         `json:"userId"`
	Amount      float64        `json:"amount"`
	Currency    string         `json:"currency,omitempty"`
	DeviceID    string         `json:"deviceId,omitempty"`
	Country     string         `json:"country,omitempty"`
	City        string         `json:"city,omitempty"`
	Latitude    float64        `json:"latitude,omitempty"`
	Longitude   float64        `json:"longitude,omitempty"`
	RecipientID string         `json:"recipientId,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Payload     map[string]any `json:"payload,omitempty"`
}
