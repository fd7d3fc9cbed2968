// Package domain defines the core types and interfaces for Kestrel.
package domain

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// ErrInvalidRequest indicates a scoring request that failed validation.
var ErrInvalidRequest = errors.New("invalid scoring request")

// GeoLocation is a point on the globe with optional country/city labels.
type GeoLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Country   string  `json:"country,omitempty"`
	City      string  `json:"city,omitempty"`
}

// ScoreRequest is the immutable input to one scoring call.
// Amount arrives as a fixed-point decimal string and is parsed during
// validation; a parse failure is a request-level error, never a rule failure.
type ScoreRequest struct {
	TransactionID   string       `json:"transactionId"`
	UserID          string       `json:"userId"`
	Amount          string       `json:"amount"`
	Currency        string       `json:"currency"`
	IPAddress       string       `json:"ipAddress,omitempty"`
	DeviceID        string       `json:"deviceId,omitempty"`
	Location        *GeoLocation `json:"location,omitempty"`
	TransactionType string       `json:"transactionType"`
	InitiatedAt     time.Time    `json:"initiatedAt"`
	RecipientID     string       `json:"recipientId,omitempty"`

	amount float64
}

// Validate checks required identifiers and parses the amount.
// Must be called before the request enters the scoring pipeline.
func (r *ScoreRequest) Validate() error {
	if r.TransactionID == "" {
		return fmt.Errorf("%w: transactionId is required", ErrInvalidRequest)
	}
	if r.UserID == "" {
		return fmt.Errorf("%w: userId is required", ErrInvalidRequest)
	}

	amount, err := strconv.ParseFloat(r.Amount, 64)
	if err != nil {
		return fmt.Errorf("%w: amount %q is not a decimal number", ErrInvalidRequest, r.Amount)
	}
	if amount < 0 {
		return fmt.Errorf("%w: amount must be non-negative", ErrInvalidRequest)
	}
	r.amount = amount

	if r.InitiatedAt.IsZero() {
		r.InitiatedAt = time.Now().UTC()
	}
	return nil
}

// AmountValue returns the parsed amount. Valid only after Validate.
func (r *ScoreRequest) AmountValue() float64 {
	return r.amount
}
