// Package domain contains the double-entry postings that mirror every
// payment allocation. Entries are immutable; a reversal posts the
// mirror entry rather than deleting anything.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/ledgerline/reconcile/internal/money"
	"gorm.io/gorm"
)

// EntryDirection represents debit or credit postings.
type EntryDirection string

const (
	EntryDirectionDebit  EntryDirection = "debit"
	EntryDirectionCredit EntryDirection = "credit"
)

// SourceType identifies the event a ledger entry mirrors.
type SourceType string

const (
	SourceTypePayment         SourceType = "payment"
	SourceTypePaymentReversal SourceType = "payment_reversal"
)

// AccountCode identifies a chart-of-accounts entry used by the engine.
type AccountCode string

const (
	AccountCodeCash               AccountCode = "cash"
	AccountCodeAccountsReceivable AccountCode = "accounts_receivable"
)

// Account defines a chart-of-accounts entry.
type Account struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	TenantID  snowflake.ID `gorm:"not null;index;uniqueIndex:ux_ledger_accounts_tenant_code,priority:1"`
	Code      AccountCode  `gorm:"type:text;not null;uniqueIndex:ux_ledger_accounts_tenant_code,priority:2"`
	Name      string       `gorm:"type:text;not null"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Account) TableName() string { return "ledger_accounts" }

// Entry captures the immutable header for a financial event.
type Entry struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	TenantID   snowflake.ID `gorm:"not null;index;uniqueIndex:ux_ledger_entries_source,priority:1"`
	SourceType SourceType   `gorm:"type:text;not null;uniqueIndex:ux_ledger_entries_source,priority:2"`
	SourceID   snowflake.ID `gorm:"not null;uniqueIndex:ux_ledger_entries_source,priority:3"`
	OccurredAt time.Time    `gorm:"not null"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Entry) TableName() string { return "ledger_entries" }

// EntryLine is a double-entry posting line.
type EntryLine struct {
	ID            snowflake.ID   `gorm:"primaryKey"`
	LedgerEntryID snowflake.ID   `gorm:"not null;index"`
	AccountID     snowflake.ID   `gorm:"not null;index"`
	Direction     EntryDirection `gorm:"type:text;not null"`
	AmountCents   money.Cents    `gorm:"not null"`
	CreatedAt     time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (EntryLine) TableName() string { return "ledger_entry_lines" }

var (
	ErrInvalidTenant   = errors.New("invalid_tenant")
	ErrInvalidAccount  = errors.New("invalid_ledger_account")
	ErrEntryUnbalanced = errors.New("ledger_entry_unbalanced")
)

// ValidateBalanced checks that debits equal credits.
func ValidateBalanced(lines []EntryLine) error {
	var debit, credit money.Cents
	for _, line := range lines {
		switch line.Direction {
		case EntryDirectionDebit:
			debit += line.AmountCents
		case EntryDirectionCredit:
			credit += line.AmountCents
		}
	}
	if debit != credit {
		return ErrEntryUnbalanced
	}
	return nil
}

// Poster writes postings inside the caller's transaction so the mirror
// entry commits (or rolls back) with the payment it describes.
type Poster interface {
	// EnsureAccounts creates the engine's chart accounts for the
	// tenant when missing. Idempotent.
	EnsureAccounts(ctx context.Context, conn *gorm.DB, tenantID snowflake.ID) error
	// PostPayment writes a cash-debit / receivable-credit entry for an
	// applied payment. Reversals post the mirror pair under the
	// payment_reversal source type.
	PostPayment(ctx context.Context, conn *gorm.DB, tenantID, paymentID snowflake.ID, amount money.Cents, occurredAt time.Time, reversal bool) error
}
