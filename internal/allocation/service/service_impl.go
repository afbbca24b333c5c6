package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	allocdomain "github.com/ledgerline/reconcile/internal/allocation/domain"
	auditdomain "github.com/ledgerline/reconcile/internal/audit/domain"
	"github.com/ledgerline/reconcile/internal/clock"
	feesplitdomain "github.com/ledgerline/reconcile/internal/feesplit/domain"
	invoicedomain "github.com/ledgerline/reconcile/internal/invoice/domain"
	ledgerdomain "github.com/ledgerline/reconcile/internal/ledger/domain"
	"github.com/ledgerline/reconcile/internal/money"
	obsmetrics "github.com/ledgerline/reconcile/internal/observability/metrics"
	paymentdomain "github.com/ledgerline/reconcile/internal/payment/domain"
	txdomain "github.com/ledgerline/reconcile/internal/transaction/domain"
	"github.com/ledgerline/reconcile/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	TxRepo      txdomain.Repository
	InvoiceRepo invoicedomain.Repository
	PaymentRepo paymentdomain.Repository
	FeeSplits   feesplitdomain.Lookup
	Ledger      ledgerdomain.Poster
	AuditSvc    auditdomain.Service
	Syncer      allocdomain.Syncer  `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	txRepo      txdomain.Repository
	invoiceRepo invoicedomain.Repository
	paymentRepo paymentdomain.Repository
	feeSplits   feesplitdomain.Lookup
	ledger      ledgerdomain.Poster
	auditSvc    auditdomain.Service
	syncer      allocdomain.Syncer
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p Params) allocdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("allocation.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		txRepo:      p.TxRepo,
		invoiceRepo: p.InvoiceRepo,
		paymentRepo: p.PaymentRepo,
		feeSplits:   p.FeeSplits,
		ledger:      p.Ledger,
		auditSvc:    p.AuditSvc,
		syncer:      p.Syncer,
		obsMetrics:  p.ObsMetrics,
	}
}

func (s *Service) AllocatePayment(ctx context.Context, input allocdomain.AllocatePaymentInput) (*allocdomain.AllocationResult, error) {
	if len(input.Allocations) == 0 {
		return nil, allocdomain.ErrEmptyAllocations
	}
	var requested money.Cents
	for _, alloc := range input.Allocations {
		if alloc.AmountCents <= 0 {
			return nil, allocdomain.ErrInvalidAmount
		}
		requested += alloc.AmountCents
	}

	result := &allocdomain.AllocationResult{}

	err := s.db.WithContext(ctx).Transaction(func(conn *gorm.DB) error {
		txn, err := s.txRepo.FindByID(ctx, conn, input.TenantID, input.TransactionID)
		if err != nil {
			return err
		}
		if txn == nil {
			return txdomain.ErrNotFound
		}
		if !txn.IsCredit {
			return allocdomain.ErrNotCredit
		}

		allocatable, err := s.resolveAllocatable(ctx, conn, txn)
		if err != nil {
			return err
		}
		if requested > allocatable {
			return allocdomain.ErrExceedsAllocatable
		}

		if err := s.ledger.EnsureAccounts(ctx, conn, input.TenantID); err != nil {
			return err
		}

		var totalApplied money.Cents
		for _, alloc := range input.Allocations {
			applied, payment, err := s.applyToInvoice(ctx, conn, txn, input, alloc)
			if err != nil {
				return err
			}
			totalApplied += applied
			if payment != nil {
				result.Payments = append(result.Payments, *payment)
				result.InvoicesUpdated = append(result.InvoicesUpdated, alloc.InvoiceID)
			}
		}

		if len(result.Payments) > 0 {
			if err := s.txRepo.UpdateStatus(ctx, conn, input.TenantID, txn.ID, txdomain.StatusMatched); err != nil {
				return err
			}
		}

		result.UnallocatedAmountCents = allocatable - totalApplied
		return nil
	})
	if err != nil {
		result.Payments = nil
		result.InvoicesUpdated = nil
		if db.IsSerializationErr(err) {
			return nil, allocdomain.ErrConflict
		}
		return nil, err
	}

	for _, payment := range result.Payments {
		s.obsMetrics.RecordAllocation(ctx, string(payment.MatchType))
	}
	result.SyncStatus = s.syncAfterCommit(ctx, input.TenantID, result.Payments)

	return result, nil
}

// AllocateToMultipleInvoices runs the same engine over a caller-ordered
// allocation list; order is preserved so FIFO callers pay the oldest
// invoice first.
func (s *Service) AllocateToMultipleInvoices(ctx context.Context, input allocdomain.AllocatePaymentInput) (*allocdomain.AllocationResult, error) {
	return s.AllocatePayment(ctx, input)
}

func (s *Service) ReverseAllocation(ctx context.Context, input allocdomain.ReverseAllocationInput) error {
	now := s.clock.Now()

	err := s.db.WithContext(ctx).Transaction(func(conn *gorm.DB) error {
		payment, err := s.paymentRepo.FindByIDForUpdate(ctx, conn, input.TenantID, input.PaymentID)
		if err != nil {
			return err
		}
		if payment == nil {
			return paymentdomain.ErrNotFound
		}
		if payment.IsReversed {
			return paymentdomain.ErrAlreadyReversed
		}

		invoice, err := s.invoiceRepo.FindByIDForUpdate(ctx, conn, input.TenantID, payment.InvoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return invoicedomain.ErrNotFound
		}

		newPaid := invoice.AmountPaidCents - payment.AmountCents
		if newPaid < 0 {
			return fmt.Errorf("reversal of payment %s would make invoice %s paid amount negative", payment.ID, invoice.ID)
		}

		if err := s.paymentRepo.MarkReversed(ctx, conn, input.TenantID, payment.ID, now, input.Reason); err != nil {
			return err
		}

		previousStatus := invoice.Status
		status := invoicedomain.StatusForPayment(newPaid, invoice.TotalCents)
		if err := s.invoiceRepo.ApplyPaid(ctx, conn, input.TenantID, invoice.ID, newPaid, status, now); err != nil {
			return err
		}

		if err := s.ledger.PostPayment(ctx, conn, input.TenantID, payment.ID, payment.AmountCents, now, true); err != nil {
			return err
		}

		if payment.TransactionID != nil {
			if err := s.releaseTransactionIfUnmatched(ctx, conn, input.TenantID, *payment.TransactionID); err != nil {
				return err
			}
		}

		s.audit(ctx, conn, input.TenantID, "allocation.reversed", "payment", payment.ID.String(), map[string]any{
			"invoice_id":      invoice.ID.String(),
			"amount_cents":    int64(payment.AmountCents),
			"previous_status": string(previousStatus),
			"new_status":      string(status),
			"reason":          input.Reason,
		})
		return nil
	})
	if err != nil {
		if db.IsSerializationErr(err) {
			return allocdomain.ErrConflict
		}
		return err
	}

	s.obsMetrics.RecordReversal(ctx)
	return nil
}

// resolveAllocatable applies the gross/net rule once per call: a
// CONFIRMED or MATCHED external fee split caps allocation at its net
// amount; otherwise the full transaction amount is allocatable.
func (s *Service) resolveAllocatable(ctx context.Context, conn *gorm.DB, txn *txdomain.Transaction) (money.Cents, error) {
	if txn.ExternalSystemID == nil || *txn.ExternalSystemID == "" {
		return txn.AmountCents, nil
	}

	split, err := s.feeSplits.GetSplitByExternalID(ctx, conn, txn.TenantID, *txn.ExternalSystemID)
	if err != nil {
		return 0, err
	}
	if split == nil || !split.Authoritative() {
		return txn.AmountCents, nil
	}

	s.log.Debug("allocatable capped by fee split",
		zap.String("transaction_id", txn.ID.String()),
		zap.Int64("net_cents", int64(split.NetAmountCents)),
		zap.Int64("fee_cents", int64(split.FeeAmountCents)),
	)
	return split.NetAmountCents, nil
}

// applyToInvoice applies one allocation line. The invoice row is
// locked and re-read here, inside the transaction, so the outstanding
// computation cannot race a concurrent allocation.
func (s *Service) applyToInvoice(ctx context.Context, conn *gorm.DB, txn *txdomain.Transaction, input allocdomain.AllocatePaymentInput, alloc allocdomain.AllocationRequest) (money.Cents, *paymentdomain.Payment, error) {
	invoice, err := s.invoiceRepo.FindByIDForUpdate(ctx, conn, input.TenantID, alloc.InvoiceID)
	if err != nil {
		return 0, nil, err
	}
	if invoice == nil {
		return 0, nil, invoicedomain.ErrNotFound
	}

	outstanding := invoice.Outstanding()
	if outstanding <= 0 {
		// Already settled: nothing attaches to the invoice, the whole
		// requested amount stays unallocated.
		return 0, nil, nil
	}

	applied := alloc.AmountCents
	if applied > outstanding {
		applied = outstanding
	}

	matchedBy := paymentdomain.MatchedByAuto
	var confidence *int
	if input.UserID != nil {
		matchedBy = paymentdomain.MatchedByUser
	} else {
		confidence = input.Confidence
	}
	matchType := resolveMatchType(alloc.AmountCents, outstanding, matchedBy, confidence)

	now := s.clock.Now()
	payment := &paymentdomain.Payment{
		ID:              s.genID.Generate(),
		TenantID:        input.TenantID,
		TransactionID:   &txn.ID,
		InvoiceID:       invoice.ID,
		AmountCents:     applied,
		PaymentDate:     txn.TransactionDate,
		Reference:       txn.Reference,
		MatchType:       matchType,
		MatchConfidence: confidence,
		MatchedBy:       matchedBy,
		CreatedAt:       now,
	}
	if err := s.paymentRepo.Create(ctx, conn, payment); err != nil {
		return 0, nil, err
	}

	newPaid := invoice.AmountPaidCents + applied
	previousStatus := invoice.Status
	status := invoicedomain.StatusForPayment(newPaid, invoice.TotalCents)
	if err := s.invoiceRepo.ApplyPaid(ctx, conn, input.TenantID, invoice.ID, newPaid, status, now); err != nil {
		return 0, nil, err
	}

	if err := s.ledger.PostPayment(ctx, conn, input.TenantID, payment.ID, applied, txn.TransactionDate, false); err != nil {
		return 0, nil, err
	}

	s.audit(ctx, conn, input.TenantID, "allocation.applied", "invoice", invoice.ID.String(), map[string]any{
		"payment_id":      payment.ID.String(),
		"transaction_id":  txn.ID.String(),
		"amount_cents":    int64(applied),
		"match_type":      string(matchType),
		"previous_status": string(previousStatus),
		"new_status":      string(status),
	})

	return applied, payment, nil
}

// resolveMatchType classifies the payment. Overpayment always wins:
// the clipped excess is visible regardless of who allocated. A user
// allocation without an automated confidence is MANUAL; otherwise the
// amount decides between EXACT and PARTIAL.
func resolveMatchType(requested, outstanding money.Cents, matchedBy paymentdomain.MatchedBy, confidence *int) paymentdomain.MatchType {
	switch {
	case requested > outstanding:
		return paymentdomain.MatchTypeOverpayment
	case matchedBy == paymentdomain.MatchedByUser && confidence == nil:
		return paymentdomain.MatchTypeManual
	case requested == outstanding:
		return paymentdomain.MatchTypeExact
	default:
		return paymentdomain.MatchTypePartial
	}
}

func (s *Service) releaseTransactionIfUnmatched(ctx context.Context, conn *gorm.DB, tenantID, transactionID snowflake.ID) error {
	payments, err := s.paymentRepo.FindByTransactionID(ctx, conn, tenantID, transactionID)
	if err != nil {
		return err
	}
	for _, p := range payments {
		if !p.IsReversed {
			return nil
		}
	}
	return s.txRepo.UpdateStatus(ctx, conn, tenantID, transactionID, txdomain.StatusPending)
}

func (s *Service) syncAfterCommit(ctx context.Context, tenantID snowflake.ID, payments []paymentdomain.Payment) allocdomain.SyncStatus {
	if s.syncer == nil || len(payments) == 0 {
		return allocdomain.SyncStatusSkipped
	}
	if err := s.syncer.SyncAllocation(ctx, tenantID, payments); err != nil {
		s.log.Warn("external ledger sync failed, allocation remains committed",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err),
		)
		return allocdomain.SyncStatusFailed
	}
	return allocdomain.SyncStatusOK
}

func (s *Service) audit(ctx context.Context, conn *gorm.DB, tenantID snowflake.ID, action, targetType, targetID string, metadata map[string]any) {
	if err := s.auditSvc.AuditLog(ctx, conn, tenantID, "system", nil, action, targetType, &targetID, metadata); err != nil {
		s.log.Warn("failed to write allocation audit log",
			zap.String("action", action),
			zap.Error(err),
		)
	}
}
