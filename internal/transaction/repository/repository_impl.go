package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/ledgerline/reconcile/internal/transaction/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, tenantID, id snowflake.ID) (*domain.Transaction, error) {
	var item domain.Transaction
	err := conn.WithContext(ctx).Raw(
		`SELECT id, tenant_id, transaction_date, amount_cents, is_credit,
			description, payee_name, reference, external_system_id, status, created_at
		 FROM bank_transactions
		 WHERE tenant_id = ? AND id = ?
		 LIMIT 1`,
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

func (r *repo) UpdateStatus(ctx context.Context, conn *gorm.DB, tenantID, id snowflake.ID, status domain.Status) error {
	return conn.WithContext(ctx).Exec(
		`UPDATE bank_transactions
		 SET status = ?
		 WHERE tenant_id = ? AND id = ?`,
		string(status),
		tenantID,
		id,
	).Error
}
