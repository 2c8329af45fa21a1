package models

import (
	"encoding/json"
	"time"
)

type EventOutcome string

const (
	EventOutcomeApplied   EventOutcome = "applied"
	EventOutcomeIgnored   EventOutcome = "ignored"
	EventOutcomeRejected  EventOutcome = "rejected"
	EventOutcomeDuplicate EventOutcome = "duplicate"
)

// ProcessedEvent is the ledger row for one provider webhook event.
type ProcessedEvent struct {
	EventID         string          `json:"event_id" db:"event_id"`
	Type            string          `json:"type" db:"type"`
	PayloadSnapshot json.RawMessage `json:"payload_snapshot" db:"payload_snapshot"`
	DeliveryCount   int             `json:"delivery_count" db:"delivery_count"`
	Outcome         EventOutcome    `json:"outcome,omitempty" db:"outcome"`
	ReceivedAt      time.Time       `json:"received_at" db:"received_at"`
	ProcessedAt     *time.Time      `json:"processed_at,omitempty" db:"processed_at"`
}

// EventSnapshot is the non-PII summary persisted with each event.
type EventSnapshot struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Account  string `json:"account,omitempty"`
	ObjectID string `json:"object_id,omitempty"`
	Livemode bool   `json:"livemode"`
	Created  int64  `json:"created"`
}
