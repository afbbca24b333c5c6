package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/ledgerline/reconcile/internal/invoice/domain"
	"github.com/ledgerline/reconcile/internal/money"
	"github.com/ledgerline/reconcile/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const selectColumns = `id, tenant_id, invoice_number, contact_name, total_cents,
	amount_paid_cents, status, issue_date, due_date, created_at, updated_at`

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, tenantID, id snowflake.ID) (*domain.Invoice, error) {
	return r.findByID(ctx, conn, tenantID, id, "")
}

func (r *repo) FindByIDForUpdate(ctx context.Context, conn *gorm.DB, tenantID, id snowflake.ID) (*domain.Invoice, error) {
	return r.findByID(ctx, conn, tenantID, id, db.RowLock(conn))
}

func (r *repo) findByID(ctx context.Context, conn *gorm.DB, tenantID, id snowflake.ID, lock string) (*domain.Invoice, error) {
	var item domain.Invoice
	err := conn.WithContext(ctx).Raw(
		`SELECT `+selectColumns+`
		 FROM invoices
		 WHERE tenant_id = ? AND id = ?
		 LIMIT 1`+lock,
		tenantID,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindOpen(ctx context.Context, conn *gorm.DB, tenantID snowflake.ID) ([]domain.Invoice, error) {
	var items []domain.Invoice
	err := conn.WithContext(ctx).Raw(
		`SELECT `+selectColumns+`
		 FROM invoices
		 WHERE tenant_id = ?
		   AND status <> ?
		   AND amount_paid_cents < total_cents
		 ORDER BY issue_date ASC, id ASC`,
		tenantID,
		string(domain.StatusVoid),
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ApplyPaid(ctx context.Context, conn *gorm.DB, tenantID, id snowflake.ID, paid money.Cents, status domain.Status, now time.Time) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE invoices
		 SET amount_paid_cents = ?, status = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ?`,
		int64(paid),
		string(status),
		now,
		tenantID,
		id,
	).Error
}
