// Package domain contains persistence models for receivable invoices.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/ledgerline/reconcile/internal/money"
	"gorm.io/gorm"
)

// Status represents invoice lifecycle states.
type Status string

const (
	StatusDraft         Status = "DRAFT"
	StatusSent          Status = "SENT"
	StatusPartiallyPaid Status = "PARTIALLY_PAID"
	StatusPaid          Status = "PAID"
	StatusVoid          Status = "VOID"
)

// Invoice is a tenant-scoped receivable. AmountPaidCents is owned by
// the allocation engine and always equals the sum of applied amounts
// over the invoice's non-reversed payments.
type Invoice struct {
	ID              snowflake.ID `gorm:"primaryKey"`
	TenantID        snowflake.ID `gorm:"not null;index;uniqueIndex:ux_invoices_tenant_number,priority:1"`
	InvoiceNumber   string       `gorm:"type:text;not null;uniqueIndex:ux_invoices_tenant_number,priority:2"`
	ContactName     string       `gorm:"type:text"`
	TotalCents      money.Cents  `gorm:"not null"`
	AmountPaidCents money.Cents  `gorm:"not null;default:0"`
	Status          Status       `gorm:"type:text;not null;default:'DRAFT';index"`
	IssueDate       time.Time    `gorm:"not null"`
	DueDate         time.Time    `gorm:"not null"`
	CreatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// Outstanding returns the unpaid balance.
func (i Invoice) Outstanding() money.Cents {
	return i.TotalCents - i.AmountPaidCents
}

// StatusForPayment derives the paid-state from amounts. The status
// column is a pure function of amount_paid_cents vs total_cents; a
// fully reversed invoice returns to SENT, never DRAFT.
func StatusForPayment(paid, total money.Cents) Status {
	switch {
	case paid == total:
		return StatusPaid
	case paid > 0:
		return StatusPartiallyPaid
	default:
		return StatusSent
	}
}

var (
	// ErrNotFound is returned for missing and wrong-tenant IDs alike.
	ErrNotFound = errors.New("invoice_not_found")
)

// Repository provides tenant-scoped access to invoices.
type Repository interface {
	FindByID(ctx context.Context, conn *gorm.DB, tenantID, id snowflake.ID) (*Invoice, error)
	// FindByIDForUpdate locks the invoice row for the remainder of the
	// enclosing transaction so amount_paid_cents can be re-read safely.
	FindByIDForUpdate(ctx context.Context, conn *gorm.DB, tenantID, id snowflake.ID) (*Invoice, error)
	// FindOpen returns non-void invoices with an outstanding balance.
	FindOpen(ctx context.Context, conn *gorm.DB, tenantID snowflake.ID) ([]Invoice, error)
	// ApplyPaid sets the paid amount and derived status.
	ApplyPaid(ctx context.Context, conn *gorm.DB, tenantID, id snowflake.ID, paid money.Cents, status Status, now time.Time) error
}
