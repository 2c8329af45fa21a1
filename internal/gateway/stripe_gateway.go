// internal/gateway/stripe_gateway.go
package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/zap"

	"github.com/cicconel11/TeamNetwork-sub008/internal/metrics"
	"github.com/cicconel11/TeamNetwork-sub008/internal/models"
)

// Options configures the provider client.
type Options struct {
	// Timeout bounds a single HTTP request to the provider.
	Timeout           time.Duration
	MaxNetworkRetries int64
	// BackendURL overrides the API endpoint, e.g. for stripe-mock.
	BackendURL string
	Logger     *zap.Logger
}

// StripeGateway implements payment operations with direct charges on
// connected accounts.
type StripeGateway struct {
	api    *client.API
	logger *zap.Logger
}

func NewStripeGateway(secretKey string, opts Options) *StripeGateway {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	cfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: opts.Timeout},
		MaxNetworkRetries: stripe.Int64(opts.MaxNetworkRetries),
		LeveledLogger:     opts.Logger.Named("stripe").Sugar(),
	}
	if opts.BackendURL != "" {
		cfg.URL = stripe.String(opts.BackendURL)
	}

	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, cfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, cfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, cfg),
	}

	return &StripeGateway{
		api:    client.New(secretKey, backends),
		logger: opts.Logger,
	}
}

// CreateCheckoutSession creates a hosted checkout session on the connected
// account with the platform fee as application fee.
func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, p CheckoutSessionParams) (*CheckoutSessionResult, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(p.Currency),
					UnitAmount: stripe.Int64(p.AmountCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(p.ProductName),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			ApplicationFeeAmount: stripe.Int64(p.ApplicationFeeCents),
			Metadata:             p.Metadata,
		},
	}
	if p.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(p.CustomerEmail)
	}
	params.Metadata = p.Metadata
	params.Context = ctx
	params.SetIdempotencyKey(p.IdempotencyKey)
	params.SetStripeAccount(p.AccountID)

	start := time.Now()
	session, err := g.api.CheckoutSessions.New(params)
	observe("checkout_session.create", start, err)
	if err != nil {
		return nil, wrapError("create checkout session", err)
	}

	result := &CheckoutSessionResult{ID: session.ID, URL: session.URL}
	if session.PaymentIntent != nil {
		result.PaymentIntentID = session.PaymentIntent.ID
	}
	return result, nil
}

// CreatePaymentIntent creates a payment intent on the connected account.
func (g *StripeGateway) CreatePaymentIntent(ctx context.Context, p PaymentIntentParams) (*PaymentIntentResult, error) {
	params := &stripe.PaymentIntentParams{
		Amount:               stripe.Int64(p.AmountCents),
		Currency:             stripe.String(p.Currency),
		ApplicationFeeAmount: stripe.Int64(p.ApplicationFeeCents),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if p.Description != "" {
		params.Description = stripe.String(p.Description)
	}
	params.Metadata = p.Metadata
	params.Context = ctx
	params.SetIdempotencyKey(p.IdempotencyKey)
	params.SetStripeAccount(p.AccountID)

	start := time.Now()
	intent, err := g.api.PaymentIntents.New(params)
	observe("payment_intent.create", start, err)
	if err != nil {
		return nil, wrapError("create payment intent", err)
	}

	return &PaymentIntentResult{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Status:       string(intent.Status),
	}, nil
}

// GetSubscription retrieves a subscription that lives on the connected account.
func (g *StripeGateway) GetSubscription(ctx context.Context, accountID, subscriptionID string) (*SubscriptionResult, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	params.SetStripeAccount(accountID)

	start := time.Now()
	sub, err := g.api.Subscriptions.Get(subscriptionID, params)
	observe("subscription.get", start, err)
	if err != nil {
		return nil, wrapError("retrieve subscription", err)
	}
	return subscriptionResult(sub), nil
}

// UpdateSubscription moves the subscription's first item to a new price.
func (g *StripeGateway) UpdateSubscription(ctx context.Context, p SubscriptionUpdateParams) (*SubscriptionResult, error) {
	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:    stripe.String(p.ItemID),
				Price: stripe.String(p.PriceID),
			},
		},
		ProrationBehavior: stripe.String("create_prorations"),
	}
	params.Metadata = p.Metadata
	params.Context = ctx
	params.SetIdempotencyKey(p.IdempotencyKey)
	params.SetStripeAccount(p.AccountID)

	start := time.Now()
	sub, err := g.api.Subscriptions.Update(p.SubscriptionID, params)
	observe("subscription.update", start, err)
	if err != nil {
		return nil, wrapError("update subscription", err)
	}
	return subscriptionResult(sub), nil
}

// GetAccountStatus reports whether a connected account can take charges.
func (g *StripeGateway) GetAccountStatus(ctx context.Context, accountID string) (*models.AccountStatus, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx

	start := time.Now()
	acct, err := g.api.Accounts.GetByID(accountID, params)
	observe("account.get", start, err)
	if err != nil {
		return nil, wrapError("retrieve account", err)
	}
	return &models.AccountStatus{
		AccountID:        acct.ID,
		ChargesEnabled:   acct.ChargesEnabled,
		DetailsSubmitted: acct.DetailsSubmitted,
	}, nil
}

// CreateConnectedAccount creates an express account for onboarding.
func (g *StripeGateway) CreateConnectedAccount(ctx context.Context, p ConnectedAccountParams) (*models.AccountStatus, error) {
	params := &stripe.AccountParams{
		Type: stripe.String(string(stripe.AccountTypeExpress)),
	}
	if p.Email != "" {
		params.Email = stripe.String(p.Email)
	}
	if p.Country != "" {
		params.Country = stripe.String(p.Country)
	}
	params.Metadata = p.Metadata
	params.Context = ctx
	params.SetIdempotencyKey(p.IdempotencyKey)

	start := time.Now()
	acct, err := g.api.Accounts.New(params)
	observe("account.create", start, err)
	if err != nil {
		return nil, wrapError("create account", err)
	}
	return &models.AccountStatus{
		AccountID:        acct.ID,
		ChargesEnabled:   acct.ChargesEnabled,
		DetailsSubmitted: acct.DetailsSubmitted,
	}, nil
}

func subscriptionResult(sub *stripe.Subscription) *SubscriptionResult {
	result := &SubscriptionResult{
		ID:       sub.ID,
		Status:   string(sub.Status),
		Currency: string(sub.Currency),
		Metadata: sub.Metadata,
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		result.FirstItemID = item.ID
		if item.Price != nil {
			result.PriceID = item.Price.ID
			result.AmountCents = item.Price.UnitAmount * max(item.Quantity, 1)
		}
	}
	return result
}

// wrapError converts provider errors. Card and request errors are the
// caller's problem, everything else is an upstream failure.
func wrapError(op string, err error) error {
	gwErr := &models.GatewayError{Op: op, Err: err}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch stripeErr.Type {
		case stripe.ErrorTypeCard, stripe.ErrorTypeInvalidRequest:
			gwErr.UserFacing = true
		}
	}
	return gwErr
}

func observe(operation string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.GatewayRequestDuration.WithLabelValues(operation, result).Observe(time.Since(start).Seconds())
}
