// Package domain defines the allocation engine's contracts: applying a
// bank transaction's funds to one or more invoices atomically, and
// reversing a previous application without losing history.
package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/ledgerline/reconcile/internal/money"
	paymentdomain "github.com/ledgerline/reconcile/internal/payment/domain"
)

// AllocationRequest asks for amountCents of the transaction's funds to
// be applied to one invoice.
type AllocationRequest struct {
	InvoiceID   snowflake.ID
	AmountCents money.Cents
}

// AllocatePaymentInput is one atomic allocation call. When UserID is
// set the allocation is attributed to that user; otherwise it is an
// automated match and Confidence should carry the decision confidence.
type AllocatePaymentInput struct {
	TenantID      snowflake.ID
	TransactionID snowflake.ID
	Allocations   []AllocationRequest
	UserID        *string
	Confidence    *int
}

// SyncStatus reports the post-commit external ledger sync attempt.
type SyncStatus string

const (
	SyncStatusOK      SyncStatus = "OK"
	SyncStatusSkipped SyncStatus = "SKIPPED"
	SyncStatusFailed  SyncStatus = "FAILED"
)

// AllocationResult summarizes one committed allocation call.
type AllocationResult struct {
	Payments               []paymentdomain.Payment
	InvoicesUpdated        []snowflake.ID
	UnallocatedAmountCents money.Cents
	SyncStatus             SyncStatus
}

// ReverseAllocationInput undoes one payment.
type ReverseAllocationInput struct {
	TenantID  snowflake.ID
	PaymentID snowflake.ID
	Reason    string
}

var (
	// ErrEmptyAllocations rejects a call with nothing to allocate.
	ErrEmptyAllocations = errors.New("allocations_empty")
	// ErrInvalidAmount rejects zero or negative allocation amounts.
	ErrInvalidAmount = errors.New("allocation_amount_invalid")
	// ErrNotCredit rejects allocating a debit transaction.
	ErrNotCredit = errors.New("transaction_not_credit")
	// ErrExceedsAllocatable rejects allocating more than the
	// transaction's resolved allocatable amount.
	ErrExceedsAllocatable = errors.New("allocation_exceeds_allocatable")
	// ErrConflict surfaces a concurrent mutation; the caller may retry.
	ErrConflict = errors.New("allocation_conflict")
)

// Syncer is the optional external-ledger collaborator, called after
// commit. Failures are reported on the result, never propagated.
type Syncer interface {
	SyncAllocation(ctx context.Context, tenantID snowflake.ID, payments []paymentdomain.Payment) error
}

type Service interface {
	AllocatePayment(ctx context.Context, input AllocatePaymentInput) (*AllocationResult, error)
	// AllocateToMultipleInvoices is AllocatePayment applied to a
	// caller-ordered list (typically FIFO, oldest invoice first) in
	// one atomic transaction.
	AllocateToMultipleInvoices(ctx context.Context, input AllocatePaymentInput) (*AllocationResult, error)
	ReverseAllocation(ctx context.Context, input ReverseAllocationInput) error
}
