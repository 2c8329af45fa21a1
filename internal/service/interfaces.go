package service

import (
	"context"

	"github.com/cicconel11/TeamNetwork-sub008/internal/gateway"
	"github.com/cicconel11/TeamNetwork-sub008/internal/models"
)

// AttemptStore persists payment attempts. Implementations must make
// EnsureAttempt, ClaimAttempt and the status part of UpdateAttempt atomic.
type AttemptStore interface {
	EnsureAttempt(ctx context.Context, p models.EnsureAttemptParams) (*models.PaymentAttempt, error)
	ClaimAttempt(ctx context.Context, attempt *models.PaymentAttempt, p models.ClaimParams) (*models.PaymentAttempt, bool, error)
	UpdateAttempt(ctx context.Context, id string, u models.AttemptUpdate) (*models.PaymentAttempt, error)
	GetAttempt(ctx context.Context, id string) (*models.PaymentAttempt, error)
	FindAttemptByProviderRef(ctx context.Context, ref models.ProviderRef) (*models.PaymentAttempt, error)
}

// EventLedger deduplicates provider webhook events.
type EventLedger interface {
	RegisterEvent(ctx context.Context, eventID, eventType string, snapshot []byte) (*models.ProcessedEvent, bool, error)
	MarkProcessed(ctx context.Context, eventID string, outcome models.EventOutcome) error
}

// RecordStore holds the financial records webhooks reconcile into.
type RecordStore interface {
	UpsertDonation(ctx context.Context, d *models.Donation) (*models.Donation, error)
	UpsertSubscription(ctx context.Context, s *models.Subscription) (*models.Subscription, error)
	FindSubscriptionByProviderID(ctx context.Context, subscriptionID string) (*models.Subscription, error)
}

// OrganizationDirectory resolves tenants.
type OrganizationDirectory interface {
	GetByID(ctx context.Context, id string) (*models.Organization, error)
	GetBySlug(ctx context.Context, slug string) (*models.Organization, error)
}

// Gateway is the payment provider, always acting on a connected account.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, p gateway.CheckoutSessionParams) (*gateway.CheckoutSessionResult, error)
	CreatePaymentIntent(ctx context.Context, p gateway.PaymentIntentParams) (*gateway.PaymentIntentResult, error)
	GetSubscription(ctx context.Context, accountID, subscriptionID string) (*gateway.SubscriptionResult, error)
	UpdateSubscription(ctx context.Context, p gateway.SubscriptionUpdateParams) (*gateway.SubscriptionResult, error)
	GetAccountStatus(ctx context.Context, accountID string) (*models.AccountStatus, error)
}

// Cache is a best-effort accelerator. It is never the source of truth and
// every method must tolerate an unavailable backend.
type Cache interface {
	GetReplay(ctx context.Context, token string) (*models.StartPaymentResponse, string, bool)
	SetReplay(ctx context.Context, token, fingerprint string, resp *models.StartPaymentResponse)
	AccountReady(ctx context.Context, accountID string) bool
	MarkAccountReady(ctx context.Context, accountID string)
}

// NoopCache disables caching.
type NoopCache struct{}

func (NoopCache) GetReplay(context.Context, string) (*models.StartPaymentResponse, string, bool) {
	return nil, "", false
}

func (NoopCache) SetReplay(context.Context, string, string, *models.StartPaymentResponse) {}

func (NoopCache) AccountReady(context.Context, string) bool { return false }

func (NoopCache) MarkAccountReady(context.Context, string) {}
