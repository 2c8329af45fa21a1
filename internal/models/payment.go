package models

import "github.com/shopspring/decimal"

type PaymentMode string

const (
	ModeCheckout           PaymentMode = "checkout"
	ModePaymentIntent      PaymentMode = "payment_intent"
	ModeSubscriptionUpdate PaymentMode = "subscription_update"
)

// FlowType maps a request mode to the attempt flow. ok is false for unknown modes.
func (m PaymentMode) FlowType() (FlowType, bool) {
	switch m {
	case ModeCheckout:
		return FlowDonationCheckout, true
	case ModePaymentIntent:
		return FlowDonationPaymentIntent, true
	case ModeSubscriptionUpdate:
		return FlowSubscriptionUpdate, true
	default:
		return "", false
	}
}

// ModeForFlow is the inverse of PaymentMode.FlowType.
func ModeForFlow(f FlowType) PaymentMode {
	switch f {
	case FlowDonationPaymentIntent:
		return ModePaymentIntent
	case FlowSubscriptionUpdate:
		return ModeSubscriptionUpdate
	default:
		return ModeCheckout
	}
}

// StartPaymentRequest is the start-payment body. Amount is in major units
// ("50.00" or 50.00). The fee is always computed server side.
type StartPaymentRequest struct {
	OrganizationID   string           `json:"organizationId" binding:"max=36"`
	OrganizationSlug string           `json:"organizationSlug" binding:"max=100"`
	Amount           *decimal.Decimal `json:"amount" binding:"required"`
	Currency         string           `json:"currency"`
	DonorName        string           `json:"donorName" binding:"max=255"`
	DonorEmail       string           `json:"donorEmail" binding:"omitempty,email,max=254"`
	Purpose          string           `json:"purpose" binding:"max=500"`
	TargetEntityID   string           `json:"targetEntityId"`
	Mode             PaymentMode      `json:"mode"`
	IdempotencyKey   string           `json:"idempotencyKey" binding:"max=255"`
	PaymentAttemptID string           `json:"paymentAttemptId"`
	SubscriptionID   string           `json:"subscriptionId"`
	PriceID          string           `json:"priceId"`
}

// StartPaymentResponse is returned for both first calls and replays. Status
// is only set once the attempt has finished; a finished checkout may have no
// URL left to hand back.
type StartPaymentResponse struct {
	Mode             PaymentMode   `json:"mode"`
	SessionID        string        `json:"sessionId,omitempty"`
	PaymentIntentID  string        `json:"paymentIntentId,omitempty"`
	SubscriptionID   string        `json:"subscriptionId,omitempty"`
	URL              string        `json:"url,omitempty"`
	ClientSecret     string        `json:"clientSecret,omitempty"`
	IdempotencyKey   string        `json:"idempotencyKey,omitempty"`
	PaymentAttemptID string        `json:"paymentAttemptId"`
	Replayed         bool          `json:"replayed"`
	Status           AttemptStatus `json:"status,omitempty"`
}

// ResponseFromAttempt builds the client response from a recorded attempt.
func ResponseFromAttempt(a *PaymentAttempt, replayed bool) *StartPaymentResponse {
	resp := &StartPaymentResponse{
		Mode:             ModeForFlow(a.FlowType),
		IdempotencyKey:   a.IdempotencyKey,
		PaymentAttemptID: a.ID,
		Replayed:         replayed,
	}
	if a.Status.IsTerminal() {
		resp.Status = a.Status
	}
	switch a.FlowType {
	case FlowDonationCheckout:
		resp.SessionID = a.ProviderCheckoutSessionID
		resp.URL = a.CheckoutURL
	case FlowDonationPaymentIntent:
		resp.PaymentIntentID = a.ProviderPaymentIntentID
		resp.ClientSecret = a.ClientSecret
	case FlowSubscriptionUpdate:
		resp.SubscriptionID = a.ProviderSubscriptionID
	}
	return resp
}
