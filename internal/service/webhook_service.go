// internal/service/webhook_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76"
	"go.uber.org/zap"

	"github.com/cicconel11/TeamNetwork-sub008/internal/metrics"
	"github.com/cicconel11/TeamNetwork-sub008/internal/models"
)

// WebhookService reconciles verified provider events into financial records
// and attempt state. Every event is applied at most once.
type WebhookService struct {
	ledger   EventLedger
	attempts AttemptStore
	records  RecordStore
	orgs     OrganizationDirectory
	gateway  Gateway
	timeout  time.Duration
	logger   *zap.Logger
}

func NewWebhookService(ledger EventLedger, attempts AttemptStore, records RecordStore, orgs OrganizationDirectory, gw Gateway, gatewayTimeout time.Duration, logger *zap.Logger) *WebhookService {
	if gatewayTimeout <= 0 {
		gatewayTimeout = 10 * time.Second
	}
	return &WebhookService{
		ledger:   ledger,
		attempts: attempts,
		records:  records,
		orgs:     orgs,
		gateway:  gw,
		timeout:  gatewayTimeout,
		logger:   logger,
	}
}

// HandleEvent registers the delivery and applies it unless an earlier
// delivery already finished. On error nothing is marked processed and the
// provider's retry re-runs the whole handler.
func (s *WebhookService) HandleEvent(ctx context.Context, event *stripe.Event) (models.EventOutcome, error) {
	log := s.logger.With(
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)))

	row, alreadyProcessed, err := s.ledger.RegisterEvent(ctx, event.ID, string(event.Type), snapshotEvent(event))
	if err != nil {
		return "", err
	}
	if alreadyProcessed {
		log.Debug("duplicate event delivery", zap.Int("delivery_count", row.DeliveryCount))
		metrics.WebhookEvents.WithLabelValues(string(event.Type), string(models.EventOutcomeDuplicate)).Inc()
		return models.EventOutcomeDuplicate, nil
	}

	outcome, err := s.apply(ctx, event)
	if err != nil {
		var mismatch *models.SecurityMismatchError
		if !errors.As(err, &mismatch) {
			log.Error("failed to apply event", zap.Error(err))
			return "", err
		}
		log.Warn("event account does not match organization",
			zap.Bool("security_event", true),
			zap.String("organization_id", mismatch.OrganizationID),
			zap.String("expected_account", mismatch.ExpectedAccount),
			zap.String("event_account", mismatch.EventAccount))
		outcome = models.EventOutcomeRejected
	}

	if err := s.ledger.MarkProcessed(ctx, event.ID, outcome); err != nil {
		return "", err
	}
	metrics.WebhookEvents.WithLabelValues(string(event.Type), string(outcome)).Inc()
	log.Info("event processed", zap.String("outcome", string(outcome)))
	return outcome, nil
}

func (s *WebhookService) apply(ctx context.Context, event *stripe.Event) (models.EventOutcome, error) {
	payload, err := DecodeEvent(event)
	if err != nil {
		return "", err
	}

	switch p := payload.(type) {
	case CheckoutCompleted:
		return s.applyCheckoutCompleted(ctx, event, p.Session)
	case CheckoutExpired:
		return s.applyCheckoutExpired(ctx, event, p.Session)
	case PaymentSucceeded:
		return s.applyPaymentIntent(ctx, event, p.Intent, models.DonationStatusSucceeded, "")
	case PaymentFailed:
		return s.applyPaymentIntent(ctx, event, p.Intent, models.DonationStatusFailed, p.FailureMessage)
	case SubscriptionChanged:
		return s.applySubscription(ctx, event, p)
	case InvoiceSettled:
		return s.applyInvoice(ctx, event, p)
	default:
		return models.EventOutcomeIgnored, nil
	}
}

// resolveTenant loads the organization an event claims to belong to and
// checks that the event came from that organization's connected account.
// A nil organization means the event carries no usable tenant.
func (s *WebhookService) resolveTenant(ctx context.Context, event *stripe.Event, orgID string) (*models.Organization, error) {
	if orgID == "" {
		return nil, nil
	}
	org, err := s.orgs.GetByID(ctx, orgID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if org.ConnectedAccountID == "" || event.Account != org.ConnectedAccountID {
		return nil, &models.SecurityMismatchError{
			EventID:         event.ID,
			OrganizationID:  org.ID,
			ExpectedAccount: org.ConnectedAccountID,
			EventAccount:    event.Account,
		}
	}
	return org, nil
}

func (s *WebhookService) applyCheckoutCompleted(ctx context.Context, event *stripe.Event, cs *stripe.CheckoutSession) (models.EventOutcome, error) {
	org, err := s.resolveTenant(ctx, event, cs.Metadata["organization_id"])
	if err != nil || org == nil {
		return models.EventOutcomeIgnored, err
	}

	paymentIntentID := ""
	if cs.PaymentIntent != nil {
		paymentIntentID = cs.PaymentIntent.ID
	}
	paid := cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid

	attempt, err := s.findAttempt(ctx, org.ID, cs.Metadata["payment_attempt_id"], models.ProviderRef{
		CheckoutSessionID: cs.ID,
		PaymentIntentID:   paymentIntentID,
	})
	if err != nil {
		return "", err
	}

	if cs.Mode == stripe.CheckoutSessionModeSubscription && cs.Subscription != nil {
		status := "incomplete"
		if paid {
			status = string(stripe.SubscriptionStatusActive)
		}
		if _, err := s.records.UpsertSubscription(ctx, &models.Subscription{
			OrganizationID:         org.ID,
			ProviderSubscriptionID: cs.Subscription.ID,
			Status:                 status,
			AmountCents:            cs.AmountTotal,
			Currency:               string(cs.Currency),
			DonorEmail:             customerEmail(cs),
			Metadata:               cs.Metadata,
			LastEventAt:            eventTime(event),
		}); err != nil {
			return "", err
		}
	} else {
		if paymentIntentID == "" {
			s.logger.Warn("checkout session without payment intent", zap.String("session_id", cs.ID))
			return models.EventOutcomeIgnored, nil
		}
		status := models.DonationStatusProcessing
		if paid {
			status = models.DonationStatusSucceeded
		}
		donation := &models.Donation{
			OrganizationID:            org.ID,
			ProviderPaymentIntentID:   paymentIntentID,
			ProviderCheckoutSessionID: cs.ID,
			AmountCents:               cs.AmountTotal,
			Currency:                  string(cs.Currency),
			DonorEmail:                customerEmail(cs),
			Status:                    status,
			Metadata:                  cs.Metadata,
		}
		if cs.CustomerDetails != nil {
			donation.DonorName = cs.CustomerDetails.Name
		}
		if attempt != nil {
			donation.PaymentAttemptID = attempt.ID
		}
		if _, err := s.records.UpsertDonation(ctx, donation); err != nil {
			return "", err
		}
	}

	target := models.AttemptStatusProcessing
	if paid {
		target = models.AttemptStatusSucceeded
	}
	if err := s.updateAttempt(ctx, attempt, models.AttemptUpdate{
		Status:            models.StatusPtr(target),
		CheckoutSessionID: cs.ID,
		PaymentIntentID:   paymentIntentID,
	}); err != nil {
		return "", err
	}
	return models.EventOutcomeApplied, nil
}

// applyCheckoutExpired fails the attempt. No donation exists for a session
// that never took a payment.
func (s *WebhookService) applyCheckoutExpired(ctx context.Context, event *stripe.Event, cs *stripe.CheckoutSession) (models.EventOutcome, error) {
	org, err := s.resolveTenant(ctx, event, cs.Metadata["organization_id"])
	if err != nil || org == nil {
		return models.EventOutcomeIgnored, err
	}
	attempt, err := s.findAttempt(ctx, org.ID, cs.Metadata["payment_attempt_id"], models.ProviderRef{CheckoutSessionID: cs.ID})
	if err != nil {
		return "", err
	}
	if attempt == nil {
		return models.EventOutcomeIgnored, nil
	}
	msg := "checkout session " + string(event.Type)
	if err := s.updateAttempt(ctx, attempt, models.AttemptUpdate{
		Status:    models.StatusPtr(models.AttemptStatusFailed),
		LastError: &msg,
	}); err != nil {
		return "", err
	}
	return models.EventOutcomeApplied, nil
}

func (s *WebhookService) applyPaymentIntent(ctx context.Context, event *stripe.Event, pi *stripe.PaymentIntent, status models.DonationStatus, failure string) (models.EventOutcome, error) {
	org, err := s.resolveTenant(ctx, event, pi.Metadata["organization_id"])
	if err != nil || org == nil {
		return models.EventOutcomeIgnored, err
	}

	attempt, err := s.findAttempt(ctx, org.ID, pi.Metadata["payment_attempt_id"], models.ProviderRef{PaymentIntentID: pi.ID})
	if err != nil {
		return "", err
	}

	amount := pi.AmountReceived
	if amount == 0 {
		amount = pi.Amount
	}
	donation := &models.Donation{
		OrganizationID:          org.ID,
		ProviderPaymentIntentID: pi.ID,
		AmountCents:             amount,
		Currency:                string(pi.Currency),
		DonorEmail:              pi.ReceiptEmail,
		Status:                  status,
		Metadata:                pi.Metadata,
	}
	if attempt != nil {
		donation.PaymentAttemptID = attempt.ID
		donation.DonorName = attempt.Metadata["donor_name"]
		if donation.DonorEmail == "" {
			donation.DonorEmail = attempt.Metadata["donor_email"]
		}
	}
	if _, err := s.records.UpsertDonation(ctx, donation); err != nil {
		return "", err
	}

	update := models.AttemptUpdate{PaymentIntentID: pi.ID}
	if status == models.DonationStatusSucceeded {
		update.Status = models.StatusPtr(models.AttemptStatusSucceeded)
	} else {
		if failure == "" {
			failure = "payment failed"
		}
		update.LastError = &failure
		// A hosted checkout lets the donor retry with another card, so only
		// its expiry ends the attempt.
		if attempt == nil || attempt.FlowType != models.FlowDonationCheckout {
			update.Status = models.StatusPtr(models.AttemptStatusFailed)
		}
	}
	if err := s.updateAttempt(ctx, attempt, update); err != nil {
		return "", err
	}
	return models.EventOutcomeApplied, nil
}

func (s *WebhookService) applySubscription(ctx context.Context, event *stripe.Event, p SubscriptionChanged) (models.EventOutcome, error) {
	sub := p.Subscription
	org, err := s.resolveTenant(ctx, event, sub.Metadata["organization_id"])
	if err != nil || org == nil {
		return models.EventOutcomeIgnored, err
	}

	status := string(sub.Status)
	if p.Deleted {
		status = string(stripe.SubscriptionStatusCanceled)
	}

	record := &models.Subscription{
		OrganizationID:         org.ID,
		ProviderSubscriptionID: sub.ID,
		Status:                 status,
		Currency:               string(sub.Currency),
		Metadata:               sub.Metadata,
		LastEventAt:            eventTime(event),
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		item := sub.Items.Data[0]
		record.AmountCents = item.Price.UnitAmount * max(item.Quantity, 1)
	}
	if sub.LatestInvoice != nil {
		record.LatestInvoiceID = sub.LatestInvoice.ID
	}
	if _, err := s.records.UpsertSubscription(ctx, record); err != nil {
		return "", err
	}

	attempt, err := s.findAttempt(ctx, org.ID, sub.Metadata["payment_attempt_id"], models.ProviderRef{SubscriptionID: sub.ID})
	if err != nil {
		return "", err
	}
	if err := s.updateAttempt(ctx, attempt, models.AttemptUpdate{
		Status:         models.StatusPtr(attemptStatusForSubscription(status)),
		SubscriptionID: sub.ID,
	}); err != nil {
		return "", err
	}
	return models.EventOutcomeApplied, nil
}

// applyInvoice records the subscription's payment state. Invoices rarely
// carry tenant metadata, so the tenant comes from the stored subscription
// or, failing that, from the subscription at the gateway.
func (s *WebhookService) applyInvoice(ctx context.Context, event *stripe.Event, p InvoiceSettled) (models.EventOutcome, error) {
	inv := p.Invoice
	if inv.Subscription == nil || inv.Subscription.ID == "" {
		return models.EventOutcomeIgnored, nil
	}
	subID := inv.Subscription.ID

	orgID, err := s.invoiceTenant(ctx, event, inv)
	if err != nil {
		return "", err
	}
	org, err := s.resolveTenant(ctx, event, orgID)
	if err != nil || org == nil {
		return models.EventOutcomeIgnored, err
	}

	status := string(stripe.SubscriptionStatusPastDue)
	amount := inv.AmountDue
	if p.Paid {
		status = string(stripe.SubscriptionStatusActive)
		amount = inv.AmountPaid
	}
	if _, err := s.records.UpsertSubscription(ctx, &models.Subscription{
		OrganizationID:         org.ID,
		ProviderSubscriptionID: subID,
		Status:                 status,
		AmountCents:            amount,
		Currency:               string(inv.Currency),
		DonorEmail:             inv.CustomerEmail,
		LatestInvoiceID:        inv.ID,
		LastEventAt:            eventTime(event),
	}); err != nil {
		return "", err
	}
	return models.EventOutcomeApplied, nil
}

func (s *WebhookService) invoiceTenant(ctx context.Context, event *stripe.Event, inv *stripe.Invoice) (string, error) {
	if id := inv.Metadata["organization_id"]; id != "" {
		return id, nil
	}
	if id := inv.Subscription.Metadata["organization_id"]; id != "" {
		return id, nil
	}

	stored, err := s.records.FindSubscriptionByProviderID(ctx, inv.Subscription.ID)
	if err == nil {
		return stored.OrganizationID, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return "", err
	}

	if event.Account == "" {
		return "", nil
	}
	gctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	sub, err := s.gateway.GetSubscription(gctx, event.Account, inv.Subscription.ID)
	if err != nil {
		return "", fmt.Errorf("resolve invoice tenant: %w", err)
	}
	return sub.Metadata["organization_id"], nil
}

// findAttempt locates the attempt an event refers to, by metadata first and
// gateway ids second. Attempts of another organization are never returned.
func (s *WebhookService) findAttempt(ctx context.Context, orgID, attemptID string, ref models.ProviderRef) (*models.PaymentAttempt, error) {
	if attemptID != "" {
		attempt, err := s.attempts.GetAttempt(ctx, attemptID)
		switch {
		case err == nil && attempt.OrganizationID == orgID:
			return attempt, nil
		case err != nil && !errors.Is(err, models.ErrNotFound):
			return nil, err
		}
	}
	if ref.IsZero() {
		return nil, nil
	}

	attempt, err := s.attempts.FindAttemptByProviderRef(ctx, ref)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if attempt.OrganizationID != orgID {
		s.logger.Warn("attempt belongs to another organization",
			zap.Bool("security_event", true),
			zap.String("attempt_id", attempt.ID),
			zap.String("organization_id", orgID))
		return nil, nil
	}
	return attempt, nil
}

func (s *WebhookService) updateAttempt(ctx context.Context, attempt *models.PaymentAttempt, u models.AttemptUpdate) error {
	if attempt == nil {
		return nil
	}
	_, err := s.attempts.UpdateAttempt(ctx, attempt.ID, u)
	return err
}

func attemptStatusForSubscription(status string) models.AttemptStatus {
	switch stripe.SubscriptionStatus(status) {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return models.AttemptStatusSucceeded
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired, stripe.SubscriptionStatusUnpaid:
		return models.AttemptStatusFailed
	default:
		return models.AttemptStatusProcessing
	}
}

func customerEmail(cs *stripe.CheckoutSession) string {
	if cs.CustomerDetails != nil && cs.CustomerDetails.Email != "" {
		return cs.CustomerDetails.Email
	}
	return cs.CustomerEmail
}

func eventTime(event *stripe.Event) time.Time {
	if event.Created == 0 {
		return time.Now()
	}
	return time.Unix(event.Created, 0).UTC()
}
