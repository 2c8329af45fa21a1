package models

import "time"

type DonationStatus string

const (
	DonationStatusProcessing DonationStatus = "processing"
	DonationStatusSucceeded  DonationStatus = "succeeded"
	DonationStatusFailed     DonationStatus = "failed"
)

// Donation is the financial record of a one-off payment, unique per
// (organization, payment intent).
type Donation struct {
	ID                        string            `json:"id" db:"id"`
	OrganizationID            string            `json:"organization_id" db:"organization_id"`
	ProviderPaymentIntentID   string            `json:"provider_payment_intent_id" db:"provider_payment_intent_id"`
	ProviderCheckoutSessionID string            `json:"provider_checkout_session_id,omitempty" db:"provider_checkout_session_id"`
	PaymentAttemptID          string            `json:"payment_attempt_id,omitempty" db:"payment_attempt_id"`
	AmountCents               int64             `json:"amount_cents" db:"amount_cents"`
	Currency                  string            `json:"currency" db:"currency"`
	DonorEmail                string            `json:"donor_email,omitempty" db:"donor_email"`
	DonorName                 string            `json:"donor_name,omitempty" db:"donor_name"`
	Status                    DonationStatus    `json:"status" db:"status"`
	Metadata                  map[string]string `json:"metadata,omitempty" db:"metadata"`
	CountedAt                 *time.Time        `json:"counted_at,omitempty" db:"counted_at"`
	CreatedAt                 time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt                 time.Time         `json:"updated_at" db:"updated_at"`
}

// Subscription is the financial record of a recurring payment, unique per
// (organization, subscription).
type Subscription struct {
	ID                     string            `json:"id" db:"id"`
	OrganizationID         string            `json:"organization_id" db:"organization_id"`
	ProviderSubscriptionID string            `json:"provider_subscription_id" db:"provider_subscription_id"`
	Status                 string            `json:"status" db:"status"`
	AmountCents            int64             `json:"amount_cents" db:"amount_cents"`
	Currency               string            `json:"currency" db:"currency"`
	DonorEmail             string            `json:"donor_email,omitempty" db:"donor_email"`
	LatestInvoiceID        string            `json:"latest_invoice_id,omitempty" db:"latest_invoice_id"`
	Metadata               map[string]string `json:"metadata,omitempty" db:"metadata"`
	LastEventAt            time.Time         `json:"last_event_at" db:"last_event_at"`
	CreatedAt              time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt              time.Time         `json:"updated_at" db:"updated_at"`
}

// DonationStats aggregates succeeded donations per organization.
type DonationStats struct {
	OrganizationID string    `json:"organization_id" db:"organization_id"`
	TotalCents     int64     `json:"total_cents" db:"total_cents"`
	DonationCount  int64     `json:"donation_count" db:"donation_count"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}
