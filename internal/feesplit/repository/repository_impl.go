package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/ledgerline/reconcile/internal/feesplit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Lookup {
	return &repo{}
}

func (r *repo) GetSplitByExternalID(ctx context.Context, conn *gorm.DB, tenantID snowflake.ID, externalID string) (*domain.ExternalFeeSplit, error) {
	var item domain.ExternalFeeSplit
	err := conn.WithContext(ctx).Raw(
		`SELECT id, tenant_id, external_system_id, net_amount_cents,
			fee_amount_cents, status, created_at
		 FROM external_fee_splits
		 WHERE tenant_id = ? AND external_system_id = ?
		 LIMIT 1`,
		tenantID,
		externalID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}
