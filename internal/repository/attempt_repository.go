// internal/repository/attempt_repository.go
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/cicconel11/TeamNetwork-sub008/internal/models"
	"github.com/cicconel11/TeamNetwork-sub008/pkg/database"
)

const attemptColumns = `id, idempotency_key, flow_type, amount_cents, platform_fee_cents, currency,
	organization_id, connected_account_id, target_entity_id, purpose, request_fingerprint, status,
	provider_payment_intent_id, provider_checkout_session_id, provider_subscription_id,
	checkout_url, client_secret, last_error, metadata, created_at, updated_at, claimed_at`

// DefaultClaimLease applies when a caller passes a zero lease.
const DefaultClaimLease = 30 * time.Second

type AttemptRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewAttemptRepository(db *sql.DB) *AttemptRepository {
	return &AttemptRepository{db: db, now: time.Now}
}

// EnsureAttempt returns the attempt for the request. An explicit attempt id
// must already exist. Otherwise the attempt is created, and concurrent
// callers with the same idempotency key all receive the row that won the
// insert.
func (r *AttemptRepository) EnsureAttempt(ctx context.Context, p models.EnsureAttemptParams) (*models.PaymentAttempt, error) {
	if p.AttemptID != "" {
		return r.GetAttempt(ctx, p.AttemptID)
	}

	attempt, err := r.insert(ctx, p)
	if err == nil {
		return attempt, nil
	}
	if p.IdempotencyKey != "" && (errors.Is(err, sql.ErrNoRows) || database.IsUniqueViolation(err)) {
		return r.getByIdempotencyKey(ctx, p.IdempotencyKey)
	}
	return nil, fmt.Errorf("insert payment attempt: %w", err)
}

func (r *AttemptRepository) insert(ctx context.Context, p models.EnsureAttemptParams) (*models.PaymentAttempt, error) {
	metadata, err := encodeMetadata(p.Fields.Metadata)
	if err != nil {
		return nil, err
	}

	f := p.Fields

	query := `
		INSERT INTO payment_attempts (
			id, idempotency_key, flow_type, amount_cents, platform_fee_cents, currency,
			organization_id, connected_account_id, target_entity_id, purpose,
			request_fingerprint, status, metadata, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING ` + attemptColumns

	row := r.db.QueryRowContext(ctx, query,
		uuid.New().String(),
		nullString(p.IdempotencyKey),
		f.FlowType,
		f.AmountCents,
		f.PlatformFeeCents,
		f.Currency,
		f.OrganizationID,
		f.ConnectedAccountID,
		nullString(f.TargetEntityID),
		nullString(f.Purpose),
		f.Fingerprint,
		models.AttemptStatusInitiated,
		metadata,
		r.now().UTC(),
	)
	return scanAttempt(row)
}

func (r *AttemptRepository) getByIdempotencyKey(ctx context.Context, key string) (*models.PaymentAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM payment_attempts WHERE idempotency_key = $1`

	attempt, err := scanAttempt(r.db.QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payment attempt for key %q: %w", key, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get payment attempt by key: %w", err)
	}
	return attempt, nil
}

// GetAttempt loads an attempt by id.
func (r *AttemptRepository) GetAttempt(ctx context.Context, id string) (*models.PaymentAttempt, error) {
	query := `SELECT ` + attemptColumns + ` FROM payment_attempts WHERE id = $1`

	attempt, err := scanAttempt(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payment attempt %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get payment attempt: %w", err)
	}
	return attempt, nil
}

// ClaimAttempt atomically takes exclusive ownership of the right to create
// the gateway resource. The row is only claimable when its fingerprint and
// charge fields match and it is initiated, or claimed without a resource and
// either released or past its lease. claimed is false when someone else
// holds the claim; ErrIdempotencyConflict is returned on a field mismatch.
func (r *AttemptRepository) ClaimAttempt(ctx context.Context, attempt *models.PaymentAttempt, p models.ClaimParams) (*models.PaymentAttempt, bool, error) {
	lease := p.Lease
	if lease <= 0 {
		lease = DefaultClaimLease
	}
	now := r.now().UTC()

	query := `
		UPDATE payment_attempts
		SET status = 'claimed', claimed_at = $6, updated_at = $6
		WHERE id = $1
		  AND request_fingerprint = $2
		  AND amount_cents = $3
		  AND currency = $4
		  AND connected_account_id = $5
		  AND (
		        status = 'initiated'
		     OR (status = 'claimed'
		         AND provider_payment_intent_id IS NULL
		         AND provider_checkout_session_id IS NULL
		         AND provider_subscription_id IS NULL
		         AND (claimed_at IS NULL OR claimed_at < $7))
		  )
		RETURNING ` + attemptColumns

	claimed, err := scanAttempt(r.db.QueryRowContext(ctx, query,
		attempt.ID,
		p.Fingerprint,
		p.AmountCents,
		p.Currency,
		p.ConnectedAccountID,
		now,
		now.Add(-lease),
	))
	if err == nil {
		return claimed, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("claim payment attempt: %w", err)
	}

	current, err := r.GetAttempt(ctx, attempt.ID)
	if err != nil {
		return nil, false, err
	}
	if current.RequestFingerprint != p.Fingerprint ||
		current.AmountCents != p.AmountCents ||
		current.Currency != p.Currency ||
		current.ConnectedAccountID != p.ConnectedAccountID {
		return nil, false, models.ErrIdempotencyConflict
	}
	return current, false, nil
}

// UpdateAttempt applies a partial update. Resource ids keep their first
// written value. A status change only happens from an allowed source status,
// so a terminal attempt never moves.
func (r *AttemptRepository) UpdateAttempt(ctx context.Context, id string, u models.AttemptUpdate) (*models.PaymentAttempt, error) {
	var target sql.NullString
	sources := []string{}
	if u.Status != nil {
		target = sql.NullString{String: string(*u.Status), Valid: true}
		for _, s := range models.AllowedSources(*u.Status) {
			sources = append(sources, string(s))
		}
	}
	var lastError sql.NullString
	if u.LastError != nil {
		lastError = sql.NullString{String: *u.LastError, Valid: true}
	}

	query := `
		UPDATE payment_attempts SET
			provider_payment_intent_id = COALESCE(provider_payment_intent_id, $2),
			provider_checkout_session_id = COALESCE(provider_checkout_session_id, $3),
			checkout_url = COALESCE(checkout_url, $4),
			client_secret = COALESCE(client_secret, $5),
			provider_subscription_id = COALESCE(provider_subscription_id, $6),
			status = CASE WHEN $7::text IS NOT NULL AND status = ANY($8::text[]) THEN $7::text ELSE status END,
			last_error = COALESCE($9, last_error),
			claimed_at = CASE WHEN $10::boolean THEN NULL ELSE claimed_at END,
			updated_at = $11
		WHERE id = $1
		RETURNING ` + attemptColumns

	attempt, err := scanAttempt(r.db.QueryRowContext(ctx, query,
		id,
		nullString(u.PaymentIntentID),
		nullString(u.CheckoutSessionID),
		nullString(u.CheckoutURL),
		nullString(u.ClientSecret),
		nullString(u.SubscriptionID),
		target,
		pq.Array(sources),
		lastError,
		u.ReleaseClaim,
		r.now().UTC(),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payment attempt %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("update payment attempt: %w", err)
	}
	return attempt, nil
}

// FindAttemptByProviderRef returns the most recent attempt that recorded any
// of the given gateway ids.
func (r *AttemptRepository) FindAttemptByProviderRef(ctx context.Context, ref models.ProviderRef) (*models.PaymentAttempt, error) {
	if ref.IsZero() {
		return nil, fmt.Errorf("empty provider reference: %w", models.ErrNotFound)
	}

	query := `
		SELECT ` + attemptColumns + `
		FROM payment_attempts
		WHERE ($1 <> '' AND provider_payment_intent_id = $1)
		   OR ($2 <> '' AND provider_checkout_session_id = $2)
		   OR ($3 <> '' AND provider_subscription_id = $3)
		ORDER BY created_at DESC
		LIMIT 1`

	attempt, err := scanAttempt(r.db.QueryRowContext(ctx, query,
		ref.PaymentIntentID, ref.CheckoutSessionID, ref.SubscriptionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payment attempt by provider ref: %w", models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find payment attempt: %w", err)
	}
	return attempt, nil
}

func scanAttempt(row rowScanner) (*models.PaymentAttempt, error) {
	var (
		a                                    models.PaymentAttempt
		idemKey, target, purpose             sql.NullString
		paymentIntent, session, subscription sql.NullString
		checkoutURL, clientSecret, lastError sql.NullString
		metadata                             []byte
		claimedAt                            sql.NullTime
	)
	err := row.Scan(
		&a.ID,
		&idemKey,
		&a.FlowType,
		&a.AmountCents,
		&a.PlatformFeeCents,
		&a.Currency,
		&a.OrganizationID,
		&a.ConnectedAccountID,
		&target,
		&purpose,
		&a.RequestFingerprint,
		&a.Status,
		&paymentIntent,
		&session,
		&subscription,
		&checkoutURL,
		&clientSecret,
		&lastError,
		&metadata,
		&a.CreatedAt,
		&a.UpdatedAt,
		&claimedAt,
	)
	if err != nil {
		return nil, err
	}

	a.IdempotencyKey = idemKey.String
	a.TargetEntityID = target.String
	a.Purpose = purpose.String
	a.ProviderPaymentIntentID = paymentIntent.String
	a.ProviderCheckoutSessionID = session.String
	a.ProviderSubscriptionID = subscription.String
	a.CheckoutURL = checkoutURL.String
	a.ClientSecret = clientSecret.String
	a.LastError = lastError.String
	a.ClaimedAt = nullTimePtr(claimedAt)
	if a.Metadata, err = decodeMetadata(metadata); err != nil {
		return nil, err
	}
	return &a, nil
}
