package models

import "time"

type FlowType string

const (
	FlowDonationCheckout      FlowType = "donation_checkout"
	FlowDonationPaymentIntent FlowType = "donation_payment_intent"
	FlowSubscriptionUpdate    FlowType = "subscription_update"
)

type AttemptStatus string

const (
	AttemptStatusInitiated  AttemptStatus = "initiated"
	AttemptStatusClaimed    AttemptStatus = "claimed"
	AttemptStatusProcessing AttemptStatus = "processing"
	AttemptStatusSucceeded  AttemptStatus = "succeeded"
	AttemptStatusFailed     AttemptStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s AttemptStatus) IsTerminal() bool {
	return s == AttemptStatusSucceeded || s == AttemptStatusFailed
}

// AllowedSources lists the statuses an attempt may be in for UpdateAttempt to
// move it to target. The initiated -> claimed edge is owned by ClaimAttempt.
func AllowedSources(target AttemptStatus) []AttemptStatus {
	switch target {
	case AttemptStatusProcessing:
		return []AttemptStatus{AttemptStatusClaimed}
	case AttemptStatusSucceeded, AttemptStatusFailed:
		return []AttemptStatus{AttemptStatusClaimed, AttemptStatusProcessing}
	default:
		return nil
	}
}

// CanTransition reports whether from -> to is an edge of the attempt state machine.
func CanTransition(from, to AttemptStatus) bool {
	if from == AttemptStatusInitiated && to == AttemptStatusClaimed {
		return true
	}
	for _, s := range AllowedSources(to) {
		if s == from {
			return true
		}
	}
	return false
}

// PaymentAttempt is one logical client-initiated payment request.
type PaymentAttempt struct {
	ID                        string            `json:"id" db:"id"`
	IdempotencyKey            string            `json:"idempotency_key,omitempty" db:"idempotency_key"`
	FlowType                  FlowType          `json:"flow_type" db:"flow_type"`
	AmountCents               int64             `json:"amount_cents" db:"amount_cents"`
	PlatformFeeCents          int64             `json:"platform_fee_cents" db:"platform_fee_cents"`
	Currency                  string            `json:"currency" db:"currency"`
	OrganizationID            string            `json:"organization_id" db:"organization_id"`
	ConnectedAccountID        string            `json:"connected_account_id" db:"connected_account_id"`
	TargetEntityID            string            `json:"target_entity_id,omitempty" db:"target_entity_id"`
	Purpose                   string            `json:"purpose,omitempty" db:"purpose"`
	RequestFingerprint        string            `json:"request_fingerprint" db:"request_fingerprint"`
	Status                    AttemptStatus     `json:"status" db:"status"`
	ProviderPaymentIntentID   string            `json:"provider_payment_intent_id,omitempty" db:"provider_payment_intent_id"`
	ProviderCheckoutSessionID string            `json:"provider_checkout_session_id,omitempty" db:"provider_checkout_session_id"`
	ProviderSubscriptionID    string            `json:"provider_subscription_id,omitempty" db:"provider_subscription_id"`
	CheckoutURL               string            `json:"checkout_url,omitempty" db:"checkout_url"`
	ClientSecret              string            `json:"-" db:"client_secret"`
	LastError                 string            `json:"last_error,omitempty" db:"last_error"`
	Metadata                  map[string]string `json:"-" db:"metadata"`
	CreatedAt                 time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt                 time.Time         `json:"updated_at" db:"updated_at"`
	ClaimedAt                 *time.Time        `json:"claimed_at,omitempty" db:"claimed_at"`
}

// HasResource reports whether the gateway resource for the attempt's flow is
// fully recorded, i.e. it can be handed back to a replaying client.
func (a *PaymentAttempt) HasResource() bool {
	switch a.FlowType {
	case FlowDonationCheckout:
		return a.ProviderCheckoutSessionID != "" && a.CheckoutURL != ""
	case FlowDonationPaymentIntent:
		return a.ProviderPaymentIntentID != "" && a.ClientSecret != ""
	case FlowSubscriptionUpdate:
		return a.ProviderSubscriptionID != ""
	default:
		return false
	}
}

// AttemptStatusView is the public status of an attempt. It carries no
// tenant routing or fingerprint data.
type AttemptStatusView struct {
	ID                string        `json:"id"`
	Status            AttemptStatus `json:"status"`
	FlowType          FlowType      `json:"flow_type"`
	AmountCents       int64         `json:"amount_cents"`
	Currency          string        `json:"currency"`
	PaymentIntentID   string        `json:"payment_intent_id,omitempty"`
	CheckoutSessionID string        `json:"checkout_session_id,omitempty"`
	SubscriptionID    string        `json:"subscription_id,omitempty"`
	LastError         string        `json:"last_error,omitempty"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

func (a *PaymentAttempt) StatusView() AttemptStatusView {
	return AttemptStatusView{
		ID:                a.ID,
		Status:            a.Status,
		FlowType:          a.FlowType,
		AmountCents:       a.AmountCents,
		Currency:          a.Currency,
		PaymentIntentID:   a.ProviderPaymentIntentID,
		CheckoutSessionID: a.ProviderCheckoutSessionID,
		SubscriptionID:    a.ProviderSubscriptionID,
		LastError:         a.LastError,
		UpdatedAt:         a.UpdatedAt,
	}
}

// Replayable reports whether a same-key retry can be answered from the
// stored attempt: its resource is complete or the attempt is finished.
func (a *PaymentAttempt) Replayable() bool {
	return a.HasResource() || a.Status.IsTerminal()
}

// GatewayIdempotencyToken is the token sent to the gateway for every creating
// call on behalf of this attempt. It never changes for a given attempt.
func (a *PaymentAttempt) GatewayIdempotencyToken() string {
	if a.IdempotencyKey != "" {
		return a.IdempotencyKey
	}
	return "attempt_" + a.ID
}

// NewAttempt carries the request fields stored when an attempt is first created.
type NewAttempt struct {
	FlowType           FlowType
	AmountCents        int64
	PlatformFeeCents   int64
	Currency           string
	OrganizationID     string
	ConnectedAccountID string
	TargetEntityID     string
	Purpose            string
	Fingerprint        string
	Metadata           map[string]string
}

type EnsureAttemptParams struct {
	IdempotencyKey string
	AttemptID      string
	Fields         NewAttempt
}

type ClaimParams struct {
	AmountCents        int64
	Currency           string
	ConnectedAccountID string
	Fingerprint        string
	// Lease is how long a claim without a recorded resource is honoured
	// before another caller may take it over.
	Lease time.Duration
}

// AttemptUpdate is a partial update. Empty strings and nil pointers leave the
// stored value untouched; resource ids are only ever filled in, never cleared.
type AttemptUpdate struct {
	Status            *AttemptStatus
	PaymentIntentID   string
	CheckoutSessionID string
	CheckoutURL       string
	ClientSecret      string
	SubscriptionID    string
	LastError         *string
	ReleaseClaim      bool
}

// ProviderRef identifies an attempt by any gateway resource id.
type ProviderRef struct {
	PaymentIntentID   string
	CheckoutSessionID string
	SubscriptionID    string
}

func (r ProviderRef) IsZero() bool {
	return r.PaymentIntentID == "" && r.CheckoutSessionID == "" && r.SubscriptionID == ""
}

func StatusPtr(s AttemptStatus) *AttemptStatus { return &s }
