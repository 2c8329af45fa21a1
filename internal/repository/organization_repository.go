package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cicconel11/TeamNetwork-sub008/internal/models"
)

type OrganizationRepository struct {
	db *sql.DB
}

func NewOrganizationRepository(db *sql.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

func (r *OrganizationRepository) GetByID(ctx context.Context, id string) (*models.Organization, error) {
	return r.getOne(ctx, `SELECT id, slug, name, connected_account_id FROM organizations WHERE id = $1`, id)
}

func (r *OrganizationRepository) GetBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	return r.getOne(ctx, `SELECT id, slug, name, connected_account_id FROM organizations WHERE slug = $1`, slug)
}

// SetConnectedAccount links an organization to its gateway account. It only
// fills an empty link so an organization is never moved between accounts.
func (r *OrganizationRepository) SetConnectedAccount(ctx context.Context, id, accountID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE organizations SET connected_account_id = $2
		WHERE id = $1 AND (connected_account_id IS NULL OR connected_account_id = $2)`,
		id, accountID)
	if err != nil {
		return fmt.Errorf("set connected account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set connected account: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("organization %s without a different connected account: %w", id, models.ErrNotFound)
	}
	return nil
}

func (r *OrganizationRepository) getOne(ctx context.Context, query, arg string) (*models.Organization, error) {
	var (
		org     models.Organization
		account sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&org.ID, &org.Slug, &org.Name, &account)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("organization %s: %w", arg, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get organization: %w", err)
	}
	org.ConnectedAccountID = account.String
	return &org, nil
}
