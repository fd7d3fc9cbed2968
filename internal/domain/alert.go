package domain

import "time"

// AlertStatus is the case-management lifecycle state of an alert.
// The scorer only ever creates alerts in StatusNew; transitions are
// owned by the external case-management workflow.
type AlertStatus string

const (
	AlertStatusNew           AlertStatus = "new"
	AlertStatusAcknowledged  AlertStatus = "acknowledged"
	AlertStatusInvestigating AlertStatus = "investigating"
	AlertStatusEscalated     AlertStatus = "escalated"
	AlertStatusResolved      AlertStatus = "resolved"
)

// OpenAlertStatuses are the states that suppress a duplicate alert
// for the same user within the suppression window.
var OpenAlertStatuses = []AlertStatus{
	AlertStatusNew,
	AlertStatusAcknowledged,
	AlertStatusInvestigating,
	AlertStatusEscalated,
}

// Alert is a fraud alert raised for a high or critical scoring result.
type Alert struct {
	ID         string         `json:"id"`
	UserID     string         `json:"userId"`
	Type       string         `json:"type"`
	Severity   Severity       `json:"severity"`
	Status     AlertStatus    `json:"status"`
	Details    map[string]any `json:"details"`
	CreatedAt  time.Time      `json:"createdAt"`
	ResolvedAt *time.Time     `json:"resolvedAt,omitempty"`
}

// AlertTypeFraudScore is the alert type raised by the scoring pipeline.
const AlertTypeFraudScore = "fraud_score"
