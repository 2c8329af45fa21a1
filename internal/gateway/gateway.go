// Package gateway talks to the payment provider on behalf of connected accounts.
package gateway

// CheckoutSessionParams describes a one-time hosted checkout on a connected account.
type CheckoutSessionParams struct {
	AccountID           string
	IdempotencyKey      string
	AmountCents         int64
	ApplicationFeeCents int64
	Currency            string
	ProductName         string
	CustomerEmail       string
	SuccessURL          string
	CancelURL           string
	Metadata            map[string]string
}

type CheckoutSessionResult struct {
	ID              string
	URL             string
	PaymentIntentID string
}

// PaymentIntentParams describes an embedded payment on a connected account.
type PaymentIntentParams struct {
	AccountID           string
	IdempotencyKey      string
	AmountCents         int64
	ApplicationFeeCents int64
	Currency            string
	Description         string
	Metadata            map[string]string
}

type PaymentIntentResult struct {
	ID           string
	ClientSecret string
	Status       string
}

// SubscriptionUpdateParams swaps the price of a subscription's first item.
type SubscriptionUpdateParams struct {
	AccountID      string
	IdempotencyKey string
	SubscriptionID string
	ItemID         string
	PriceID        string
	Metadata       map[string]string
}

type SubscriptionResult struct {
	ID          string
	Status      string
	FirstItemID string
	PriceID     string
	AmountCents int64
	Currency    string
	Metadata    map[string]string
}

// ConnectedAccountParams creates a new express account for an organization.
type ConnectedAccountParams struct {
	IdempotencyKey string
	Email          string
	Country        string
	Metadata       map[string]string
}
