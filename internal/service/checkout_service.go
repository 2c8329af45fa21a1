// internal/service/checkout_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cicconel11/TeamNetwork-sub008/internal/gateway"
	"github.com/cicconel11/TeamNetwork-sub008/internal/metrics"
	"github.com/cicconel11/TeamNetwork-sub008/internal/models"
)

// persistTimeout bounds writes that must survive the client going away.
const persistTimeout = 5 * time.Second

type CheckoutConfig struct {
	GatewayTimeout time.Duration
	ClaimLease     time.Duration
	Wait           WaitPolicy
	SuccessURL     string
	CancelURL      string
}

// CheckoutService starts payments. For one idempotency key at most one
// gateway resource is ever created, and every retry gets that resource back.
type CheckoutService struct {
	attempts AttemptStore
	orgs     OrganizationDirectory
	gateway  Gateway
	cache    Cache
	cfg      CheckoutConfig
	logger   *zap.Logger
}

func NewCheckoutService(attempts AttemptStore, orgs OrganizationDirectory, gw Gateway, cache Cache, cfg CheckoutConfig, logger *zap.Logger) *CheckoutService {
	if cache == nil {
		cache = NoopCache{}
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 10 * time.Second
	}
	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = 30 * time.Second
	}
	if cfg.Wait == (WaitPolicy{}) {
		cfg.Wait = DefaultWaitPolicy()
	}
	return &CheckoutService{
		attempts: attempts,
		orgs:     orgs,
		gateway:  gw,
		cache:    cache,
		cfg:      cfg,
		logger:   logger,
	}
}

type paymentInput struct {
	mode           models.PaymentMode
	flow           models.FlowType
	amountCents    int64
	currency       string
	donorName      string
	donorEmail     string
	purpose        string
	targetEntityID string
	idempotencyKey string
	attemptID      string
	subscriptionID string
	priceID        string
}

// replayToken names the cache entry for the request, empty when the caller
// asked for no idempotency.
func (in *paymentInput) replayToken() string {
	if in.attemptID != "" {
		return "attempt:" + in.attemptID
	}
	if in.idempotencyKey != "" {
		return "key:" + in.idempotencyKey
	}
	return ""
}

// StartPayment validates the request, verifies the organization's account
// and returns the gateway resource for the attempt, creating it only if
// this call wins the claim.
func (s *CheckoutService) StartPayment(ctx context.Context, req *models.StartPaymentRequest) (resp *models.StartPaymentResponse, err error) {
	mode := modeLabel(req.Mode)
	defer func() {
		outcome := metrics.OutcomeCreated
		switch {
		case err != nil:
			outcome = outcomeFor(err)
		case resp.Replayed:
			outcome = metrics.OutcomeReplayed
		}
		metrics.PaymentStarts.WithLabelValues(mode, outcome).Inc()
	}()

	in, err := normalizeRequest(req)
	if err != nil {
		return nil, err
	}

	org, err := s.resolveOrganization(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.ensureAccountReady(ctx, org); err != nil {
		return nil, err
	}

	fee := CalculatePlatformFee(in.amountCents)
	fingerprint := HashFingerprint(FingerprintFields{
		OrganizationID:   org.ID,
		AmountCents:      in.amountCents,
		Currency:         in.currency,
		FlowType:         in.flow,
		DonorEmail:       in.donorEmail,
		DonorName:        in.donorName,
		TargetEntityID:   in.targetEntityID,
		Purpose:          in.purpose,
		PlatformFeeCents: fee,
	})

	token := in.replayToken()
	if token != "" {
		if cached, fp, ok := s.cache.GetReplay(ctx, token); ok && fp == fingerprint {
			out := *cached
			out.Replayed = true
			return &out, nil
		}
	}

	attempt, err := s.attempts.EnsureAttempt(ctx, models.EnsureAttemptParams{
		IdempotencyKey: in.idempotencyKey,
		AttemptID:      in.attemptID,
		Fields: models.NewAttempt{
			FlowType:           in.flow,
			AmountCents:        in.amountCents,
			PlatformFeeCents:   fee,
			Currency:           in.currency,
			OrganizationID:     org.ID,
			ConnectedAccountID: org.ConnectedAccountID,
			TargetEntityID:     in.targetEntityID,
			Purpose:            in.purpose,
			Fingerprint:        fingerprint,
			Metadata:           attemptMetadata(in),
		},
	})
	if err != nil {
		return nil, err
	}

	current, claimed, err := s.attempts.ClaimAttempt(ctx, attempt, models.ClaimParams{
		AmountCents:        in.amountCents,
		Currency:           in.currency,
		ConnectedAccountID: org.ConnectedAccountID,
		Fingerprint:        fingerprint,
		Lease:              s.cfg.ClaimLease,
	})
	if err != nil {
		if errors.Is(err, models.ErrIdempotencyConflict) {
			s.logger.Info("idempotency key reused with different fields",
				zap.String("attempt_id", attempt.ID),
				zap.String("organization_id", org.ID))
		}
		return nil, err
	}

	if !claimed {
		if current.Replayable() {
			return s.replay(ctx, token, fingerprint, current), nil
		}
		waited, err := WaitForExistingResource(ctx, s.attempts, current.ID, s.cfg.Wait)
		if err != nil {
			return nil, err
		}
		if waited != nil {
			return s.replay(ctx, token, fingerprint, waited), nil
		}
		return nil, &models.TransientConflictError{
			IdempotencyKey: current.IdempotencyKey,
			AttemptID:      current.ID,
		}
	}

	saved, err := s.createResource(ctx, current, org)
	if err != nil {
		return nil, err
	}

	resp = models.ResponseFromAttempt(saved, false)
	if token != "" {
		s.cache.SetReplay(ctx, token, fingerprint, resp)
	}
	s.logger.Info("payment started",
		zap.String("attempt_id", saved.ID),
		zap.String("organization_id", org.ID),
		zap.String("flow_type", string(saved.FlowType)),
		zap.Int64("amount_cents", saved.AmountCents))
	return resp, nil
}

// GetAttempt returns an attempt by id.
func (s *CheckoutService) GetAttempt(ctx context.Context, id string) (*models.PaymentAttempt, error) {
	return s.attempts.GetAttempt(ctx, id)
}

func (s *CheckoutService) replay(ctx context.Context, token, fingerprint string, attempt *models.PaymentAttempt) *models.StartPaymentResponse {
	if token != "" {
		s.cache.SetReplay(ctx, token, fingerprint, models.ResponseFromAttempt(attempt, false))
	}
	return models.ResponseFromAttempt(attempt, true)
}

// createResource calls the gateway for a claimed attempt. The idempotency
// token is stable per attempt, so a retry after a lost response converges
// on the same provider object.
func (s *CheckoutService) createResource(ctx context.Context, attempt *models.PaymentAttempt, org *models.Organization) (*models.PaymentAttempt, error) {
	gctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()

	token := attempt.GatewayIdempotencyToken()
	metadata := gatewayMetadata(attempt)
	update := models.AttemptUpdate{Status: models.StatusPtr(models.AttemptStatusProcessing)}

	switch attempt.FlowType {
	case models.FlowDonationCheckout:
		session, err := s.gateway.CreateCheckoutSession(gctx, gateway.CheckoutSessionParams{
			AccountID:           attempt.ConnectedAccountID,
			IdempotencyKey:      token,
			AmountCents:         attempt.AmountCents,
			ApplicationFeeCents: attempt.PlatformFeeCents,
			Currency:            attempt.Currency,
			ProductName:         productName(org, attempt),
			CustomerEmail:       attempt.Metadata["donor_email"],
			SuccessURL:          s.cfg.SuccessURL,
			CancelURL:           s.cfg.CancelURL,
			Metadata:            metadata,
		})
		if err != nil {
			return nil, s.releaseAfterFailure(ctx, attempt, asGatewayError("create checkout session", err))
		}
		update.CheckoutSessionID = session.ID
		update.CheckoutURL = session.URL
		update.PaymentIntentID = session.PaymentIntentID

	case models.FlowDonationPaymentIntent:
		intent, err := s.gateway.CreatePaymentIntent(gctx, gateway.PaymentIntentParams{
			AccountID:           attempt.ConnectedAccountID,
			IdempotencyKey:      token,
			AmountCents:         attempt.AmountCents,
			ApplicationFeeCents: attempt.PlatformFeeCents,
			Currency:            attempt.Currency,
			Description:         productName(org, attempt),
			Metadata:            metadata,
		})
		if err != nil {
			return nil, s.releaseAfterFailure(ctx, attempt, asGatewayError("create payment intent", err))
		}
		update.PaymentIntentID = intent.ID
		update.ClientSecret = intent.ClientSecret

	case models.FlowSubscriptionUpdate:
		sub, err := s.gateway.GetSubscription(gctx, attempt.ConnectedAccountID, attempt.TargetEntityID)
		if err != nil {
			return nil, s.releaseAfterFailure(ctx, attempt, asGatewayError("retrieve subscription", err))
		}
		switch {
		case sub.Status == "canceled" || sub.Status == "incomplete_expired":
			return nil, s.releaseAfterFailure(ctx, attempt,
				models.NewValidationError("subscriptionId", "subscription is "+sub.Status))
		case sub.FirstItemID == "":
			return nil, s.releaseAfterFailure(ctx, attempt,
				models.NewValidationError("subscriptionId", "subscription has no items"))
		}
		updated, err := s.gateway.UpdateSubscription(gctx, gateway.SubscriptionUpdateParams{
			AccountID:      attempt.ConnectedAccountID,
			IdempotencyKey: token,
			SubscriptionID: sub.ID,
			ItemID:         sub.FirstItemID,
			PriceID:        attempt.Purpose,
			Metadata:       metadata,
		})
		if err != nil {
			return nil, s.releaseAfterFailure(ctx, attempt, asGatewayError("update subscription", err))
		}
		update.SubscriptionID = updated.ID

	default:
		return nil, fmt.Errorf("attempt %s has unknown flow %q", attempt.ID, attempt.FlowType)
	}

	saved, err := s.persist(ctx, attempt.ID, update)
	if err != nil {
		// The claim stays held until the lease runs out; the next retry reuses
		// the same gateway token and gets the resource back.
		s.logger.Error("gateway resource created but not recorded",
			zap.String("attempt_id", attempt.ID),
			zap.Error(err))
		return nil, fmt.Errorf("record gateway resource: %w", err)
	}
	return saved, nil
}

// releaseAfterFailure records the failure and frees the claim so a retry
// with the same key can try again. The attempt stays claimed.
func (s *CheckoutService) releaseAfterFailure(ctx context.Context, attempt *models.PaymentAttempt, cause error) error {
	msg := cause.Error()
	if _, err := s.persist(ctx, attempt.ID, models.AttemptUpdate{LastError: &msg, ReleaseClaim: true}); err != nil {
		s.logger.Error("failed to release payment attempt claim",
			zap.String("attempt_id", attempt.ID),
			zap.Error(err))
	}
	s.logger.Warn("payment attempt failed at gateway",
		zap.String("attempt_id", attempt.ID),
		zap.String("flow_type", string(attempt.FlowType)),
		zap.Error(cause))
	return cause
}

func (s *CheckoutService) persist(ctx context.Context, id string, u models.AttemptUpdate) (*models.PaymentAttempt, error) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	return s.attempts.UpdateAttempt(pctx, id, u)
}

func (s *CheckoutService) resolveOrganization(ctx context.Context, req *models.StartPaymentRequest) (*models.Organization, error) {
	id := strings.TrimSpace(req.OrganizationID)
	slug := strings.TrimSpace(req.OrganizationSlug)
	switch {
	case id != "":
		return s.orgs.GetByID(ctx, id)
	case slug != "":
		return s.orgs.GetBySlug(ctx, slug)
	default:
		return nil, models.NewValidationError("organizationId", "organizationId or organizationSlug is required")
	}
}

// ensureAccountReady fails closed: a lookup error never lets a payment through.
func (s *CheckoutService) ensureAccountReady(ctx context.Context, org *models.Organization) error {
	if org.ConnectedAccountID == "" {
		return fmt.Errorf("organization %s has no connected account: %w", org.ID, models.ErrForbidden)
	}
	if s.cache.AccountReady(ctx, org.ConnectedAccountID) {
		return nil
	}

	gctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()
	status, err := s.gateway.GetAccountStatus(gctx, org.ConnectedAccountID)
	if err != nil {
		return &models.GatewayError{Op: "verify connected account", Err: err}
	}
	if !status.Ready() {
		return fmt.Errorf("connected account for organization %s cannot accept charges: %w", org.ID, models.ErrForbidden)
	}
	s.cache.MarkAccountReady(ctx, org.ConnectedAccountID)
	return nil
}

func normalizeRequest(req *models.StartPaymentRequest) (*paymentInput, error) {
	mode := req.Mode
	if mode == "" {
		mode = models.ModeCheckout
	}
	flow, ok := mode.FlowType()
	if !ok {
		return nil, models.NewValidationError("mode", fmt.Sprintf("unsupported mode %q", req.Mode))
	}

	cents, err := AmountToCents(req.Amount)
	if err != nil {
		return nil, err
	}
	currency, err := NormalizeCurrency(req.Currency)
	if err != nil {
		return nil, err
	}

	in := &paymentInput{
		mode:           mode,
		flow:           flow,
		amountCents:    cents,
		currency:       currency,
		donorName:      strings.TrimSpace(req.DonorName),
		donorEmail:     strings.ToLower(strings.TrimSpace(req.DonorEmail)),
		purpose:        strings.TrimSpace(req.Purpose),
		targetEntityID: strings.TrimSpace(req.TargetEntityID),
		idempotencyKey: strings.TrimSpace(req.IdempotencyKey),
		attemptID:      strings.TrimSpace(req.PaymentAttemptID),
		subscriptionID: strings.TrimSpace(req.SubscriptionID),
		priceID:        strings.TrimSpace(req.PriceID),
	}

	if flow == models.FlowSubscriptionUpdate {
		if in.subscriptionID == "" {
			return nil, models.NewValidationError("subscriptionId", "subscriptionId is required for subscription updates")
		}
		if in.priceID == "" {
			return nil, models.NewValidationError("priceId", "priceId is required for subscription updates")
		}
		in.targetEntityID = in.subscriptionID
		in.purpose = in.priceID
	}
	return in, nil
}

// attemptMetadata is stored with the attempt only, never sent to the gateway.
func attemptMetadata(in *paymentInput) map[string]string {
	m := map[string]string{}
	if in.donorName != "" {
		m["donor_name"] = in.donorName
	}
	if in.donorEmail != "" {
		m["donor_email"] = in.donorEmail
	}
	return m
}

// gatewayMetadata is the only data attached to provider objects. It must
// stay free of donor details.
func gatewayMetadata(a *models.PaymentAttempt) map[string]string {
	m := map[string]string{
		"organization_id":    a.OrganizationID,
		"payment_attempt_id": a.ID,
		"flow_type":          string(a.FlowType),
	}
	if a.TargetEntityID != "" {
		m["target_entity_id"] = a.TargetEntityID
	}
	return m
}

func productName(org *models.Organization, a *models.PaymentAttempt) string {
	name := "Donation to " + org.Name
	if a.Purpose != "" {
		name += " (" + a.Purpose + ")"
	}
	return name
}

func asGatewayError(op string, err error) error {
	var gwErr *models.GatewayError
	if errors.As(err, &gwErr) {
		return err
	}
	return &models.GatewayError{Op: op, Err: err}
}

func modeLabel(m models.PaymentMode) string {
	if m == "" {
		return string(models.ModeCheckout)
	}
	if _, ok := m.FlowType(); ok {
		return string(m)
	}
	return "unknown"
}

func outcomeFor(err error) string {
	var (
		validation *models.ValidationError
		transient  *models.TransientConflictError
		gwErr      *models.GatewayError
	)
	switch {
	case errors.As(err, &validation):
		return metrics.OutcomeInvalid
	case errors.Is(err, models.ErrIdempotencyConflict):
		return metrics.OutcomeConflict
	case errors.As(err, &transient):
		return metrics.OutcomeInProgress
	case errors.Is(err, models.ErrForbidden):
		return metrics.OutcomeAccountDenied
	case errors.As(err, &gwErr):
		return metrics.OutcomeGatewayError
	default:
		return metrics.OutcomeError
	}
}
