package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/ledgerline/reconcile/internal/payment/domain"
	"github.com/ledgerline/reconcile/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const selectColumns = `id, tenant_id, transaction_id, invoice_id, amount_cents,
	payment_date, reference, match_type, match_confidence, matched_by,
	is_reversed, reversed_at, reversal_reason, created_at`

func (r *repo) Create(ctx context.Context, conn *gorm.DB, payment *domain.Payment) error {
	return conn.WithContext(ctx).Exec(
		`INSERT INTO payments (
			id, tenant_id, transaction_id, invoice_id, amount_cents,
			payment_date, reference, match_type, match_confidence, matched_by,
			is_reversed, reversed_at, reversal_reason, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID,
		payment.TenantID,
		payment.TransactionID,
		payment.InvoiceID,
		int64(payment.AmountCents),
		payment.PaymentDate,
		payment.Reference,
		string(payment.MatchType),
		payment.MatchConfidence,
		string(payment.MatchedBy),
		payment.IsReversed,
		payment.ReversedAt,
		payment.ReversalReason,
		payment.CreatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, tenantID, id snowflake.ID) (*domain.Payment, error) {
	return r.findByID(ctx, conn, tenantID, id, "")
}

func (r *repo) FindByIDForUpdate(ctx context.Context, conn *gorm.DB, tenantID, id snowflake.ID) (*domain.Payment, error) {
	return r.findByID(ctx, conn, tenantID, id, db.RowLock(conn))
}

func (r *repo) findByID(ctx context.Context, conn *gorm.DB, tenantID, id snowflake.ID, lock string) (*domain.Payment, error) {
	var item domain.Payment
	err := conn.WithContext(ctx).Raw(
		`SELECT `+selectColumns+`
		 FROM payments
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

func (r *repo) FindByInvoiceID(ctx context.Context, conn *gorm.DB, tenantID, invoiceID snowflake.ID) ([]domain.Payment, error) {
	var items []domain.Payment
	err := conn.WithContext(ctx).Raw(
		`SELECT `+selectColumns+`
		 FROM payments
		 WHERE tenant_id = ? AND invoice_id = ?
		 ORDER BY created_at ASC, id ASC`,
		tenantID,
		invoiceID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindByTransactionID(ctx context.Context, conn *gorm.DB, tenantID, transactionID snowflake.ID) ([]domain.Payment, error) {
	var items []domain.Payment
	err := conn.WithContext(ctx).Raw(
		`SELECT `+selectColumns+`
		 FROM payments
		 WHERE tenant_id = ? AND transaction_id = ?
		 ORDER BY created_at ASC, id ASC`,
		tenantID,
		transactionID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) MarkReversed(ctx context.Context, conn *gorm.DB, tenantID, id snowflake.ID, at time.Time, reason string) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE payments
		 SET is_reversed = ?, reversed_at = ?, reversal_reason = ?
		 WHERE tenant_id = ? AND id = ? AND is_reversed = ?`,
		true,
		at,
		reason,
		tenantID,
		id,
		false,
	).Error
}
