package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cicconel11/TeamNetwork-sub008/internal/models"
	"github.com/cicconel11/TeamNetwork-sub008/pkg/database"
)

const donationColumns = `id, organization_id, provider_payment_intent_id, provider_checkout_session_id,
	payment_attempt_id, amount_cents, currency, donor_email, donor_name, status, metadata,
	counted_at, created_at, updated_at`

const subscriptionColumns = `id, organization_id, provider_subscription_id, status, amount_cents,
	currency, donor_email, latest_invoice_id, metadata, last_event_at, created_at, updated_at`

// RecordRepository owns donations, subscriptions and per-organization stats.
type RecordRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRecordRepository(db *sql.DB) *RecordRepository {
	return &RecordRepository{db: db, now: time.Now}
}

// UpsertDonation creates or updates the donation for (organization, payment
// intent). A succeeded donation never goes back to another status, and it
// is added to the organization's stats exactly once, in the same transaction.
func (r *RecordRepository) UpsertDonation(ctx context.Context, d *models.Donation) (*models.Donation, error) {
	metadata, err := encodeMetadata(d.Metadata)
	if err != nil {
		return nil, err
	}

	var saved *models.Donation
	err = database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		now := r.now().UTC()

		query := `
			INSERT INTO donations (
				id, organization_id, provider_payment_intent_id, provider_checkout_session_id,
				payment_attempt_id, amount_cents, currency, donor_email, donor_name, status,
				metadata, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
			ON CONFLICT (organization_id, provider_payment_intent_id) DO UPDATE SET
				provider_checkout_session_id = COALESCE(donations.provider_checkout_session_id, EXCLUDED.provider_checkout_session_id),
				payment_attempt_id = COALESCE(donations.payment_attempt_id, EXCLUDED.payment_attempt_id),
				amount_cents = CASE WHEN donations.counted_at IS NULL AND EXCLUDED.amount_cents > 0
					THEN EXCLUDED.amount_cents ELSE donations.amount_cents END,
				currency = CASE WHEN donations.counted_at IS NULL AND EXCLUDED.currency <> ''
					THEN EXCLUDED.currency ELSE donations.currency END,
				donor_email = COALESCE(EXCLUDED.donor_email, donations.donor_email),
				donor_name = COALESCE(EXCLUDED.donor_name, donations.donor_name),
				status = CASE WHEN donations.status = 'succeeded' THEN donations.status ELSE EXCLUDED.status END,
				metadata = donations.metadata || EXCLUDED.metadata,
				updated_at = EXCLUDED.updated_at
			RETURNING ` + donationColumns

		row := tx.QueryRowContext(ctx, query,
			uuid.New().String(),
			d.OrganizationID,
			d.ProviderPaymentIntentID,
			nullString(d.ProviderCheckoutSessionID),
			nullString(d.PaymentAttemptID),
			d.AmountCents,
			d.Currency,
			nullString(d.DonorEmail),
			nullString(d.DonorName),
			d.Status,
			metadata,
			now,
		)
		donation, err := scanDonation(row)
		if err != nil {
			return fmt.Errorf("upsert donation: %w", err)
		}

		if donation.Status == models.DonationStatusSucceeded && donation.CountedAt == nil {
			counted, err := countDonation(ctx, tx, donation, now)
			if err != nil {
				return err
			}
			if counted {
				donation.CountedAt = &now
			}
		}
		saved = donation
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// countDonation flips counted_at and adds the donation to the stats row.
// The conditional update serializes concurrent deliveries on the row lock,
// so only one of them sees a changed row.
func countDonation(ctx context.Context, tx *sql.Tx, d *models.Donation, now time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE donations SET counted_at = $2
		WHERE id = $1 AND status = 'succeeded' AND counted_at IS NULL`,
		d.ID, now)
	if err != nil {
		return false, fmt.Errorf("mark donation counted: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark donation counted: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO organization_donation_stats (organization_id, total_cents, donation_count, updated_at)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (organization_id) DO UPDATE SET
			total_cents = organization_donation_stats.total_cents + EXCLUDED.total_cents,
			donation_count = organization_donation_stats.donation_count + 1,
			updated_at = EXCLUDED.updated_at`,
		d.OrganizationID, d.AmountCents, now)
	if err != nil {
		return false, fmt.Errorf("update donation stats: %w", err)
	}
	return true, nil
}

// GetDonationByPaymentIntent loads the donation for (organization, payment intent).
func (r *RecordRepository) GetDonationByPaymentIntent(ctx context.Context, orgID, paymentIntentID string) (*models.Donation, error) {
	query := `SELECT ` + donationColumns + `
		FROM donations WHERE organization_id = $1 AND provider_payment_intent_id = $2`

	donation, err := scanDonation(r.db.QueryRowContext(ctx, query, orgID, paymentIntentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("donation %s: %w", paymentIntentID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get donation: %w", err)
	}
	return donation, nil
}

// GetDonationStats returns the organization's aggregate, zero when nothing was counted yet.
func (r *RecordRepository) GetDonationStats(ctx context.Context, orgID string) (*models.DonationStats, error) {
	stats := &models.DonationStats{OrganizationID: orgID}
	err := r.db.QueryRowContext(ctx, `
		SELECT total_cents, donation_count, updated_at
		FROM organization_donation_stats WHERE organization_id = $1`, orgID).
		Scan(&stats.TotalCents, &stats.DonationCount, &stats.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return stats, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get donation stats: %w", err)
	}
	return stats, nil
}

// UpsertSubscription creates or updates the subscription for (organization,
// subscription). An event older than the last applied one does not change
// the status.
func (r *RecordRepository) UpsertSubscription(ctx context.Context, s *models.Subscription) (*models.Subscription, error) {
	metadata, err := encodeMetadata(s.Metadata)
	if err != nil {
		return nil, err
	}
	lastEventAt := s.LastEventAt
	if lastEventAt.IsZero() {
		lastEventAt = r.now()
	}

	query := `
		INSERT INTO subscriptions (
			id, organization_id, provider_subscription_id, status, amount_cents, currency,
			donor_email, latest_invoice_id, metadata, last_event_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		ON CONFLICT (organization_id, provider_subscription_id) DO UPDATE SET
			status = CASE WHEN EXCLUDED.last_event_at >= subscriptions.last_event_at
				THEN EXCLUDED.status ELSE subscriptions.status END,
			amount_cents = CASE WHEN EXCLUDED.amount_cents > 0
				THEN EXCLUDED.amount_cents ELSE subscriptions.amount_cents END,
			currency = CASE WHEN EXCLUDED.currency <> ''
				THEN EXCLUDED.currency ELSE subscriptions.currency END,
			donor_email = COALESCE(EXCLUDED.donor_email, subscriptions.donor_email),
			latest_invoice_id = COALESCE(EXCLUDED.latest_invoice_id, subscriptions.latest_invoice_id),
			metadata = subscriptions.metadata || EXCLUDED.metadata,
			last_event_at = GREATEST(subscriptions.last_event_at, EXCLUDED.last_event_at),
			updated_at = EXCLUDED.updated_at
		RETURNING ` + subscriptionColumns

	sub, err := scanSubscription(r.db.QueryRowContext(ctx, query,
		uuid.New().String(),
		s.OrganizationID,
		s.ProviderSubscriptionID,
		s.Status,
		s.AmountCents,
		s.Currency,
		nullString(s.DonorEmail),
		nullString(s.LatestInvoiceID),
		metadata,
		lastEventAt.UTC(),
		r.now().UTC(),
	))
	if err != nil {
		return nil, fmt.Errorf("upsert subscription: %w", err)
	}
	return sub, nil
}

// FindSubscriptionByProviderID looks a subscription up by gateway id alone.
// It is used to discover the tenant, which the caller must still verify.
func (r *RecordRepository) FindSubscriptionByProviderID(ctx context.Context, subscriptionID string) (*models.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + `
		FROM subscriptions WHERE provider_subscription_id = $1
		ORDER BY updated_at DESC LIMIT 1`

	sub, err := scanSubscription(r.db.QueryRowContext(ctx, query, subscriptionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("subscription %s: %w", subscriptionID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find subscription: %w", err)
	}
	return sub, nil
}

func scanDonation(row rowScanner) (*models.Donation, error) {
	var (
		d                                    models.Donation
		session, attemptID, email, donorName sql.NullString
		metadata                             []byte
		countedAt                            sql.NullTime
	)
	err := row.Scan(
		&d.ID,
		&d.OrganizationID,
		&d.ProviderPaymentIntentID,
		&session,
		&attemptID,
		&d.AmountCents,
		&d.Currency,
		&email,
		&donorName,
		&d.Status,
		&metadata,
		&countedAt,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.ProviderCheckoutSessionID = session.String
	d.PaymentAttemptID = attemptID.String
	d.DonorEmail = email.String
	d.DonorName = donorName.String
	d.CountedAt = nullTimePtr(countedAt)
	if d.Metadata, err = decodeMetadata(metadata); err != nil {
		return nil, err
	}
	return &d, nil
}

func scanSubscription(row rowScanner) (*models.Subscription, error) {
	var (
		s              models.Subscription
		email, invoice sql.NullString
		metadata       []byte
	)
	err := row.Scan(
		&s.ID,
		&s.OrganizationID,
		&s.ProviderSubscriptionID,
		&s.Status,
		&s.AmountCents,
		&s.Currency,
		&email,
		&invoice,
		&metadata,
		&s.LastEventAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.DonorEmail = email.String
	s.LatestInvoiceID = invoice.String
	if s.Metadata, err = decodeMetadata(metadata); err != nil {
		return nil, err
	}
	return &s, nil
}
