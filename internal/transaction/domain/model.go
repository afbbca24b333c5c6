// Package domain contains persistence models for imported bank
// transactions. Rows are created by the import layer and are immutable
// here except for the match status fields owned by the allocation
// engine.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/ledgerline/reconcile/internal/money"
	"gorm.io/gorm"
)

// Status represents the reconciliation state of a bank transaction.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusMatched Status = "MATCHED"
	StatusReview  Status = "REVIEW"
)

// Transaction is a tenant-scoped bank movement. AmountCents is always
// the positive magnitude; direction is carried by IsCredit.
type Transaction struct {
	ID               snowflake.ID `gorm:"primaryKey"`
	TenantID         snowflake.ID `gorm:"not null;index"`
	TransactionDate  time.Time    `gorm:"not null"`
	AmountCents      money.Cents  `gorm:"not null"`
	IsCredit         bool         `gorm:"not null"`
	Description      string       `gorm:"type:text"`
	PayeeName        string       `gorm:"type:text"`
	Reference        string       `gorm:"type:text;index"`
	ExternalSystemID *string      `gorm:"index"`
	Status           Status       `gorm:"type:text;not null;default:'PENDING';index"`
	CreatedAt        time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Transaction) TableName() string { return "bank_transactions" }

var (
	// ErrNotFound is returned for missing and wrong-tenant IDs alike.
	ErrNotFound = errors.New("transaction_not_found")
)

// Repository provides tenant-scoped access to bank transactions. Every
// method takes the gorm handle so calls compose with an enclosing
// transaction.
type Repository interface {
	FindByID(ctx context.Context, conn *gorm.DB, tenantID, id snowflake.ID) (*Transaction, error)
	UpdateStatus(ctx context.Context, conn *gorm.DB, tenantID, id snowflake.ID, status Status) error
}
