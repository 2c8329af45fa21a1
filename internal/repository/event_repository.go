package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cicconel11/TeamNetwork-sub008/internal/models"
)

// EventRepository is the processed-event ledger.
type EventRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db, now: time.Now}
}

// RegisterEvent records a delivery. A redelivery bumps delivery_count and
// reports alreadyProcessed when a previous delivery finished handling.
func (r *EventRepository) RegisterEvent(ctx context.Context, eventID, eventType string, snapshot []byte) (*models.ProcessedEvent, bool, error) {
	if len(snapshot) == 0 {
		snapshot = []byte("{}")
	}

	query := `
		INSERT INTO processed_events (event_id, type, payload_snapshot, delivery_count, received_at)
		VALUES ($1, $2, $3, 1, $4)
		ON CONFLICT (event_id) DO UPDATE
		SET delivery_count = processed_events.delivery_count + 1
		RETURNING event_id, type, payload_snapshot, delivery_count, outcome, received_at, processed_at`

	var (
		ev          models.ProcessedEvent
		payload     []byte
		outcome     sql.NullString
		processedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, eventID, eventType, snapshot, r.now().UTC()).Scan(
		&ev.EventID,
		&ev.Type,
		&payload,
		&ev.DeliveryCount,
		&outcome,
		&ev.ReceivedAt,
		&processedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("register event %s: %w", eventID, err)
	}

	ev.PayloadSnapshot = payload
	ev.Outcome = models.EventOutcome(outcome.String)
	ev.ProcessedAt = nullTimePtr(processedAt)
	return &ev, ev.ProcessedAt != nil, nil
}

// MarkProcessed stamps the event as handled. The first outcome sticks.
func (r *EventRepository) MarkProcessed(ctx context.Context, eventID string, outcome models.EventOutcome) error {
	query := `
		UPDATE processed_events
		SET outcome = CASE WHEN processed_at IS NULL THEN $2 ELSE outcome END,
		    processed_at = COALESCE(processed_at, $3)
		WHERE event_id = $1`

	res, err := r.db.ExecContext(ctx, query, eventID, string(outcome), r.now().UTC())
	if err != nil {
		return fmt.Errorf("mark event %s processed: %w", eventID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark event %s processed: %w", eventID, err)
	}
	if n == 0 {
		return fmt.Errorf("event %s: %w", eventID, models.ErrNotFound)
	}
	return nil
}

// GetEvent loads a ledger row.
func (r *EventRepository) GetEvent(ctx context.Context, eventID string) (*models.ProcessedEvent, error) {
	query := `
		SELECT event_id, type, payload_snapshot, delivery_count, outcome, received_at, processed_at
		FROM processed_events WHERE event_id = $1`

	var (
		ev          models.ProcessedEvent
		payload     []byte
		outcome     sql.NullString
		processedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, eventID).Scan(
		&ev.EventID,
		&ev.Type,
		&payload,
		&ev.DeliveryCount,
		&outcome,
		&ev.ReceivedAt,
		&processedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %s: %w", eventID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get event %s: %w", eventID, err)
	}
	ev.PayloadSnapshot = payload
	ev.Outcome = models.EventOutcome(outcome.String)
	ev.ProcessedAt = nullTimePtr(processedAt)
	return &ev, nil
}
