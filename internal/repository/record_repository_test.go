package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/cicconel11/TeamNetwork-sub008/internal/models"
)

const eventColumns = "event_id, type, payload_snapshot, delivery_count, outcome, received_at, processed_at"

func newRecordRepo(t *testing.T) (*RecordRepository, sqlmock.Sqlmock) {
	db, mock := newMock(t)
	r := NewRecordRepository(db)
	r.now = func() time.Time { return fixedNow }
	return r, mock
}

func donationRows(status models.DonationStatus, countedAt interface{}) *sqlmock.Rows {
	return sqlmock.NewRows(columns(donationColumns)).AddRow(
		"don-1", "org-1", "pi_1", "cs_1", "att-1", int64(5000), "usd",
		"ada@example.com", "Ada", string(status), []byte(`{}`), countedAt, fixedNow, fixedNow,
	)
}

func TestRecordRepository_UpsertDonation(t *testing.T) {
	donation := &models.Donation{
		OrganizationID:          "org-1",
		ProviderPaymentIntentID: "pi_1",
		AmountCents:             5000,
		Currency:                "usd",
		Status:                  models.DonationStatusSucceeded,
	}

	t.Run("counts a newly succeeded donation once", func(t *testing.T) {
		repo, mock := newRecordRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO donations")).
			WillReturnRows(donationRows(models.DonationStatusSucceeded, nil))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE donations SET counted_at")).
			WithArgs("don-1", fixedNow).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO organization_donation_stats")).
			WithArgs("org-1", int64(5000), fixedNow).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		got, err := repo.UpsertDonation(context.Background(), donation)
		if err != nil {
			t.Fatalf("UpsertDonation() error = %v", err)
		}
		if got.CountedAt == nil {
			t.Error("CountedAt = nil, want set")
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})

	t.Run("skips stats when another delivery counted first", func(t *testing.T) {
		repo, mock := newRecordRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO donations")).
			WillReturnRows(donationRows(models.DonationStatusSucceeded, nil))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE donations SET counted_at")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		got, err := repo.UpsertDonation(context.Background(), donation)
		if err != nil {
			t.Fatalf("UpsertDonation() error = %v", err)
		}
		if got.CountedAt != nil {
			t.Errorf("CountedAt = %v, want nil", got.CountedAt)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})

	t.Run("does not recount an already counted donation", func(t *testing.T) {
		repo, mock := newRecordRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO donations")).
			WillReturnRows(donationRows(models.DonationStatusSucceeded, fixedNow))
		mock.ExpectCommit()

		if _, err := repo.UpsertDonation(context.Background(), donation); err != nil {
			t.Fatalf("UpsertDonation() error = %v", err)
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})

	t.Run("rolls back when the stats update fails", func(t *testing.T) {
		repo, mock := newRecordRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO donations")).
			WillReturnRows(donationRows(models.DonationStatusSucceeded, nil))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE donations SET counted_at")).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO organization_donation_stats")).
			WillReturnError(errors.New("connection reset"))
		mock.ExpectRollback()

		if _, err := repo.UpsertDonation(context.Background(), donation); err == nil {
			t.Fatal("UpsertDonation() error = nil, want failure")
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
	})
}

func TestRecordRepository_UpsertSubscription(t *testing.T) {
	repo, mock := newRecordRepo(t)
	eventAt := fixedNow.Add(-time.Minute)
	mock.ExpectQuery(regexp.QuoteMeta("EXCLUDED.last_event_at >= subscriptions.last_event_at")).
		WithArgs(sqlmock.AnyArg(), "org-1", "sub_1", "active", int64(2500), "usd",
			sqlmock.AnyArg(), "in_1", sqlmock.AnyArg(), eventAt, fixedNow).
		WillReturnRows(sqlmock.NewRows(columns(subscriptionColumns)).AddRow(
			"s-1", "org-1", "sub_1", "active", int64(2500), "usd", nil, "in_1", []byte(`{}`), eventAt, fixedNow, fixedNow))

	got, err := repo.UpsertSubscription(context.Background(), &models.Subscription{
		OrganizationID:         "org-1",
		ProviderSubscriptionID: "sub_1",
		Status:                 "active",
		AmountCents:            2500,
		Currency:               "usd",
		LatestInvoiceID:        "in_1",
		LastEventAt:            eventAt,
	})
	if err != nil {
		t.Fatalf("UpsertSubscription() error = %v", err)
	}
	if got.Status != "active" || got.LatestInvoiceID != "in_1" {
		t.Errorf("UpsertSubscription() = %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRecordRepository_GetDonationStats(t *testing.T) {
	repo, mock := newRecordRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM organization_donation_stats")).
		WithArgs("org-empty").
		WillReturnRows(sqlmock.NewRows([]string{"total_cents", "donation_count", "updated_at"}))

	stats, err := repo.GetDonationStats(context.Background(), "org-empty")
	if err != nil {
		t.Fatalf("GetDonationStats() error = %v", err)
	}
	if stats.TotalCents != 0 || stats.DonationCount != 0 {
		t.Errorf("GetDonationStats() = %+v, want zero", stats)
	}
}

func TestEventRepository_RegisterEvent(t *testing.T) {
	tests := []struct {
		name          string
		deliveryCount int64
		processedAt   interface{}
		outcome       interface{}
		wantProcessed bool
	}{
		{name: "first delivery", deliveryCount: 1},
		{name: "redelivery of an unfinished event", deliveryCount: 2},
		{name: "redelivery of a processed event", deliveryCount: 3, processedAt: fixedNow, outcome: "applied", wantProcessed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			repo := NewEventRepository(db)
			repo.now = func() time.Time { return fixedNow }

			mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (event_id) DO UPDATE")).
				WithArgs("evt_1", "payment_intent.succeeded", []byte(`{"id":"evt_1"}`), fixedNow).
				WillReturnRows(sqlmock.NewRows(columns(eventColumns)).AddRow(
					"evt_1", "payment_intent.succeeded", []byte(`{"id":"evt_1"}`), tt.deliveryCount, tt.outcome, fixedNow, tt.processedAt))

			ev, processed, err := repo.RegisterEvent(context.Background(), "evt_1", "payment_intent.succeeded", []byte(`{"id":"evt_1"}`))
			if err != nil {
				t.Fatalf("RegisterEvent() error = %v", err)
			}
			if processed != tt.wantProcessed {
				t.Errorf("alreadyProcessed = %v, want %v", processed, tt.wantProcessed)
			}
			if int64(ev.DeliveryCount) != tt.deliveryCount {
				t.Errorf("DeliveryCount = %d, want %d", ev.DeliveryCount, tt.deliveryCount)
			}
		})
	}
}

func TestEventRepository_MarkProcessed(t *testing.T) {
	db, mock := newMock(t)
	repo := NewEventRepository(db)
	repo.now = func() time.Time { return fixedNow }

	mock.ExpectExec(regexp.QuoteMeta("UPDATE processed_events")).
		WithArgs("evt_1", "applied", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE processed_events")).
		WithArgs("evt_missing", "ignored", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.MarkProcessed(context.Background(), "evt_1", models.EventOutcomeApplied); err != nil {
		t.Errorf("MarkProcessed() error = %v", err)
	}
	if err := repo.MarkProcessed(context.Background(), "evt_missing", models.EventOutcomeIgnored); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("MarkProcessed() error = %v, want ErrNotFound", err)
	}
}

func TestOrganizationRepository_GetBySlug(t *testing.T) {
	db, mock := newMock(t)
	repo := NewOrganizationRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE slug = $1")).
		WithArgs("chess-club").
		WillReturnRows(sqlmock.NewRows([]string{"id", "slug", "name", "connected_account_id"}).
			AddRow("org-1", "chess-club", "Chess Club", "acct_1"))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE slug = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "slug", "name", "connected_account_id"}))

	org, err := repo.GetBySlug(context.Background(), "chess-club")
	if err != nil {
		t.Fatalf("GetBySlug() error = %v", err)
	}
	if org.ConnectedAccountID != "acct_1" {
		t.Errorf("ConnectedAccountID = %q, want acct_1", org.ConnectedAccountID)
	}
	if _, err := repo.GetBySlug(context.Background(), "missing"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("GetBySlug(missing) error = %v, want ErrNotFound", err)
	}
}

func TestOrganizationRepository_SetConnectedAccount(t *testing.T) {
	tests := []struct {
		name    string
		rows    int64
		wantErr error
	}{
		{name: "links an empty organization", rows: 1},
		{name: "refuses to move a linked organization", rows: 0, wantErr: models.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			repo := NewOrganizationRepository(db)
			mock.ExpectExec(regexp.QuoteMeta("UPDATE organizations SET connected_account_id = $2")).
				WithArgs("org-1", "acct_9").
				WillReturnResult(sqlmock.NewResult(0, tt.rows))

			err := repo.SetConnectedAccount(context.Background(), "org-1", "acct_9")
			if tt.wantErr == nil && err != nil {
				t.Errorf("SetConnectedAccount() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("SetConnectedAccount() error = %v, want %v", err, tt.wantErr)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Error(err)
			}
		})
	}
}
