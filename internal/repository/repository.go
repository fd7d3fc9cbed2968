// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lakay-finance/kestrel/internal/domain"
)

// SQLRepository implements the event, alert and score stores using
// database/sql. Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// Store is the full persistence surface one repository provides.
type Store interface {
	domain.EventStore
	domain.AlertStore
	domain.ScoreStore

	Ping(ctx context.Context) error
	Close() error
}

// New creates a repository based on configuration.
func New(cfg domain.RepositoryConfig) (Store, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// columnFor whitelists the queryable event fields. Field names arrive
// from rule code, not user input, but the whitelist keeps the mapping
// explicit.
func columnFor(field string) (string, error) {
	switch field {
	case "amount", "currency", "device_id", "country", "city", "recipient_id":
		return field, nil
	default:
		return "", fmt.Errorf("%w: unknown event field %q", domain.ErrInvalidInput, field)
	}
}

// SaveEvent appends an event.
func (r *SQLRepository) SaveEvent(ctx context.Context, event *domain.Event) error {
	if event.ID == "" || event.UserID == "" || event.Type == "" {
		return fmt.Errorf("%w: event id, type and user id are required", domain.ErrInvalidInput)
	}

	payload, _ := json.Marshal(event.Payload)

	query := `
		INSERT INTO events (
			id, type, user_id, amount, currency, device_id,
			country, city, latitude, longitude, recipient_id,
			timestamp, payload
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		event.ID, event.Type, event.UserID,
		event.Amount, event.Currency, event.DeviceID,
		event.Country, event.City, event.Latitude, event.Longitude,
		event.RecipientID, event.Timestamp, string(payload),
	)
	return err
}

// Count returns the number of events of a type in a window.
func (r *SQLRepository) Count(ctx context.Context, eventType, userID string, window domain.TimeRange) (int64, error) {
	query := `
		SELECT COUNT(*) FROM events
		WHERE user_id = ? AND type = ? AND timestamp >= ? AND timestamp < ?
	`

	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), userID, eventType, window.Start, window.End).Scan(&count)
	return count, err
}

// Sum totals a numeric field over matching events.
func (r *SQLRepository) Sum(ctx context.Context, eventType, userID, field string, window domain.TimeRange) (float64, error) {
	column, err := columnFor(field)
	if err != nil {
		return 0, err
	}

	query := fmt.Sprintf(`
		SELECT COALESCE(SUM(%s), 0) FROM events
		WHERE user_id = ? AND type = ? AND timestamp >= ? AND timestamp < ?
	`, column)

	var sum float64
	err = r.db.QueryRowContext(ctx, r.rebind(query), userID, eventType, window.Start, window.End).Scan(&sum)
	return sum, err
}

// Distinct returns the distinct non-empty values of a field.
func (r *SQLRepository) Distinct(ctx context.Context, eventType, userID, field string, window domain.TimeRange) ([]string, error) {
	column, err := columnFor(field)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT DISTINCT %s FROM events
		WHERE user_id = ? AND type = ? AND timestamp >= ? AND timestamp < ?
		  AND %s IS NOT NULL AND %s != ''
	`, column, column, column)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), userID, eventType, window.Start, window.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

// FirstOccurrence reports whether no prior event carries the value.
func (r *SQLRepository) FirstOccurrence(ctx context.Context, eventType, userID, field, value string) (bool, error) {
	column, err := columnFor(field)
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf(`
		SELECT COUNT(*) FROM events
		WHERE user_id = ? AND type = ? AND %s = ?
	`, column)

	var count int64
	if err := r.db.QueryRowContext(ctx, r.rebind(query), userID, eventType, value).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}

// LastEvent returns the most recent event strictly before the given
// time, or nil without error when the user has no history.
func (r *SQLRepository) LastEvent(ctx context.Context, eventType, userID string, before time.Time) (*domain.Event, error) {
	query := `
		SELECT id, type, user_id, amount, currency, device_id,
			   country, city, latitude, longitude, recipient_id,
			   timestamp, payload
		FROM events
		WHERE user_id = ? AND type = ? AND timestamp < ?
		ORDER BY timestamp DESC
		LIMIT 1
	`

	event, err := r.scanEvent(r.db.QueryRowContext(ctx, r.rebind(query), userID, eventType, before))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return event, err
}

// ListTimestamps returns matching event timestamps in ascending order.
func (r *SQLRepository) ListTimestamps(ctx context.Context, eventType, userID string, window domain.TimeRange) ([]time.Time, error) {
	query := `
		SELECT timestamp FROM events
		WHERE user_id = ? AND type = ? AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp ASC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), userID, eventType, window.Start, window.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var timestamps []time.Time
	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		timestamps = append(timestamps, ts)
	}
	return timestamps, rows.Err()
}

// ListEvents returns matching events in ascending timestamp order.
func (r *SQLRepository) ListEvents(ctx context.Context, eventType, userID string, window domain.TimeRange) ([]*domain.Event, error) {
	query := `
		SELECT id, type, user_id, amount, currency, device_id,
			   country, city, latitude, longitude, recipient_id,
			   timestamp, payload
		FROM events
		WHERE user_id = ? AND type = ? AND timestamp >= ? AND timestamp < ?
		ORDER BY timestamp ASC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), userID, eventType, window.Start, window.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.Event
	for rows.Next() {
		event, err := r.scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *SQLRepository) scanEvent(row scanner) (*domain.Event, error) {
	var event domain.Event
	var currency, deviceID, country, city, recipientID, payload sql.NullString
	var latitude, longitude sql.NullFloat64

	err := row.Scan(
		&event.ID, &event.Type, &event.UserID,
		&event.Amount, &currency, &deviceID,
		&country, &city, &latitude, &longitude,
		&recipientID, &event.Timestamp, &payload,
	)
	if err != nil {
		return nil, err
	}

	event.Currency = currency.String
	event.DeviceID = deviceID.String
	event.Country = country.String
	event.City = city.String
	event.Latitude = latitude.Float64
	event.Longitude = longitude.Float64
	event.RecipientID = recipientID.String
	if payload.String != "" {
		json.Unmarshal([]byte(payload.String), &event.Payload)
	}
	return &event, nil
}

// SaveAlert stores a fraud alert.
func (r *SQLRepository) SaveAlert(ctx context.Context, alert *domain.Alert) error {
	if alert.ID == "" || alert.UserID == "" {
		return fmt.Errorf("%w: alert id and user id are required", domain.ErrInvalidInput)
	}

	details, _ := json.Marshal(alert.Details)

	query := `
		INSERT INTO alerts (
			id, user_id, type, severity, status, details, created_at, resolved_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		alert.ID, alert.UserID, alert.Type,
		string(alert.Severity), string(alert.Status),
		string(details), alert.CreatedAt, alert.ResolvedAt,
	)
	return err
}

// GetAlert retrieves an alert by id.
func (r *SQLRepository) GetAlert(ctx context.Context, id string) (*domain.Alert, error) {
	query := `
		SELECT id, user_id, type, severity, status, details, created_at, resolved_at
		FROM alerts
		WHERE id = ?
	`

	alert, err := r.scanAlert(r.db.QueryRowContext(ctx, r.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return alert, err
}

// CountOpenAlerts counts a user's alerts in an open status created at
// or after the given time.
func (r *SQLRepository) CountOpenAlerts(ctx context.Context, userID string, since time.Time) (int64, error) {
	placeholders := make([]string, len(domain.OpenAlertStatuses))
	args := make([]any, 0, len(domain.OpenAlertStatuses)+2)
	args = append(args, userID, since)
	for i, status := range domain.OpenAlertStatuses {
		placeholders[i] = "?"
		args = append(args, string(status))
	}

	query := fmt.Sprintf(`
		SELECT COUNT(*) FROM alerts
		WHERE user_id = ? AND created_at >= ? AND status IN (%s)
	`, strings.Join(placeholders, ", "))

	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), args...).Scan(&count)
	return count, err
}

// ListAlerts retrieves alerts matching the filter, newest first.
func (r *SQLRepository) ListAlerts(ctx context.Context, filter domain.AlertFilter) ([]*domain.Alert, error) {
	var conditions []string
	var args []any

	if filter.UserID != "" {
		conditions = append(conditions, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Severity != "" {
		conditions = append(conditions, "severity = ?")
		args = append(args, string(filter.Severity))
	}

	query := `
		SELECT id, user_id, type, severity, status, details, created_at, resolved_at
		FROM alerts
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(" LIMIT %d", limit)

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*domain.Alert
	for rows.Next() {
		alert, err := r.scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

func (r *SQLRepository) scanAlert(row scanner) (*domain.Alert, error) {
	var alert domain.Alert
	var severity, status, details string
	var resolvedAt sql.NullTime

	err := row.Scan(
		&alert.ID, &alert.UserID, &alert.Type,
		&severity, &status, &details,
		&alert.CreatedAt, &resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	alert.Severity = domain.Severity(severity)
	alert.Status = domain.AlertStatus(status)
	if resolvedAt.Valid {
		alert.ResolvedAt = &resolvedAt.Time
	}
	if details != "" {
		json.Unmarshal([]byte(details), &alert.Details)
	}
	return &alert, nil
}

// SaveScore archives a scoring result. Re-saving the same transaction
// keeps the first result.
func (r *SQLRepository) SaveScore(ctx context.Context, score *domain.StoredScore) error {
	if score.TransactionID == "" {
		return fmt.Errorf("%w: transaction id is required", domain.ErrInvalidInput)
	}

	result, err := json.Marshal(score.Result)
	if err != nil {
		return fmt.Errorf("failed to encode scoring result: %w", err)
	}

	query := `
		INSERT INTO scores (tx_id, user_id, result, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(tx_id) DO NOTHING
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		score.TransactionID, score.UserID, string(result), score.CreatedAt,
	)
	return err
}

// GetScore retrieves an archived scoring result.
func (r *SQLRepository) GetScore(ctx context.Context, transactionID string) (*domain.StoredScore, error) {
	query := `
		SELECT tx_id, user_id, result, created_at
		FROM scores
		WHERE tx_id = ?
	`

	var score domain.StoredScore
	var result string

	err := r.db.QueryRowContext(ctx, r.rebind(query), transactionID).Scan(
		&score.TransactionID, &score.UserID, &result, &score.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(result), &score.Result); err != nil {
		return nil, fmt.Errorf("failed to decode scoring result: %w", err)
	}
	return &score, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
