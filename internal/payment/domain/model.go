// Package domain contains the append-only payment ledger entries
// linking bank transactions to invoices. Payments are never deleted;
// undo is a reversal flag plus metadata.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/ledgerline/reconcile/internal/money"
	"gorm.io/gorm"
)

// MatchType classifies how a payment amount relates to the invoice
// balance it was applied to.
type MatchType string

const (
	MatchTypeExact       MatchType = "EXACT"
	MatchTypePartial     MatchType = "PARTIAL"
	MatchTypeManual      MatchType = "MANUAL"
	MatchTypeOverpayment MatchType = "OVERPAYMENT"
)

// MatchedBy records the actor that created the allocation.
type MatchedBy string

const (
	MatchedByAuto MatchedBy = "AI_AUTO"
	MatchedByUser MatchedBy = "USER"
)

// Payment links a bank transaction (nullable, for manual receipts) to
// exactly one invoice. AmountCents is the applied amount and is
// immutable after creation; only the reversal fields may change.
type Payment struct {
	ID              snowflake.ID  `gorm:"primaryKey"`
	TenantID        snowflake.ID  `gorm:"not null;index"`
	TransactionID   *snowflake.ID `gorm:"index"`
	InvoiceID       snowflake.ID  `gorm:"not null;index"`
	AmountCents     money.Cents   `gorm:"not null"`
	PaymentDate     time.Time     `gorm:"not null"`
	Reference       string        `gorm:"type:text"`
	MatchType       MatchType     `gorm:"type:text;not null"`
	MatchConfidence *int          `gorm:""`
	MatchedBy       MatchedBy     `gorm:"type:text;not null"`
	IsReversed      bool          `gorm:"not null;default:false"`
	ReversedAt      *time.Time    `gorm:""`
	ReversalReason  string        `gorm:"type:text"`
	CreatedAt       time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }

var (
	// ErrNotFound is returned for missing and wrong-tenant IDs alike.
	ErrNotFound = errors.New("payment_not_found")
	// ErrAlreadyReversed rejects a second reversal of the same payment.
	ErrAlreadyReversed = errors.New("payment_already_reversed")
)

// Repository provides tenant-scoped access to payments.
type Repository interface {
	Create(ctx context.Context, conn *gorm.DB, payment *Payment) error
	FindByID(ctx context.Context, conn *gorm.DB, tenantID, id snowflake.ID) (*Payment, error)
	FindByIDForUpdate(ctx context.Context, conn *gorm.DB, tenantID, id snowflake.ID) (*Payment, error)
	FindByInvoiceID(ctx context.Context, conn *gorm.DB, tenantID, invoiceID snowflake.ID) ([]Payment, error)
	FindByTransactionID(ctx context.Context, conn *gorm.DB, tenantID, transactionID snowflake.ID) ([]Payment, error)
	MarkReversed(ctx context.Context, conn *gorm.DB, tenantID, id snowflake.ID, at time.Time, reason string) error
}
