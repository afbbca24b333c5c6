// Package domain describes gross/net fee splits declared by an
// external ledger system (e.g. a payment gateway feed). The engine
// consumes them read-only to resolve how much of a bank transaction is
// allocatable to invoices.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/ledgerline/reconcile/internal/money"
	"gorm.io/gorm"
)

// Status of an external fee split. Only CONFIRMED and MATCHED splits
// are authoritative for allocation limits.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusMatched   Status = "MATCHED"
)

// ExternalFeeSplit declares the net/fee breakdown for one external
// system transaction.
type ExternalFeeSplit struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	TenantID         snowflake.ID `gorm:"not null;index;uniqueIndex:ux_fee_splits_tenant_external,priority:1"`
	ExternalSystemID string       `gorm:"type:text;not null;uniqueIndex:ux_fee_splits_tenant_external,priority:2"`
	NetAmountCents   money.Cents  `gorm:"not null"`
	FeeAmountCents   money.Cents  `gorm:"not null"`
	Status           Status       `gorm:"type:text;not null;default:'PENDING'"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ExternalFeeSplit) TableName() string { return "external_fee_splits" }

// Authoritative reports whether the split may limit allocation.
func (s ExternalFeeSplit) Authoritative() bool {
	return s.Status == StatusConfirmed || s.Status == StatusMatched
}

// Lookup resolves fee splits by external id. A nil result with nil
// error means no split is known.
type Lookup interface {
	GetSplitByExternalID(ctx context.Context, conn *gorm.DB, tenantID snowflake.ID, externalID string) (*ExternalFeeSplit, error)
}
