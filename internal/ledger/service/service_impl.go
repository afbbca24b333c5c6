package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/ledgerline/reconcile/internal/ledger/domain"
	"github.com/ledgerline/reconcile/internal/money"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
}

func NewService(p Params) ledgerdomain.Poster {
	return &Service{
		log:   p.Log.Named("ledger.service"),
		genID: p.GenID,
	}
}

func (s *Service) EnsureAccounts(ctx context.Context, conn *gorm.DB, tenantID snowflake.ID) error {
	if tenantID == 0 {
		return ledgerdomain.ErrInvalidTenant
	}

	now := time.Now().UTC()
	accounts := []struct {
		code ledgerdomain.AccountCode
		name string
	}{
		{ledgerdomain.AccountCodeCash, "Cash"},
		{ledgerdomain.AccountCodeAccountsReceivable, "Accounts Receivable"},
	}
	for _, acc := range accounts {
		if err := conn.WithContext(ctx).Exec(
			`INSERT INTO ledger_accounts (id, tenant_id, code, name, created_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (tenant_id, code) DO NOTHING`,
			s.genID.Generate(),
			tenantID,
			string(acc.code),
			acc.name,
			now,
		).Error; err != nil {
			return err
		}
	}
	return nil
}

// PostPayment mirrors an applied payment in the double-entry ledger:
//
//	Debit:  Cash                 (asset increases)
//	Credit: Accounts Receivable  (asset decreases)
//
// A reversal swaps the directions and posts under its own source type,
// so both legs of the payment's history stay visible. The insert is
// idempotent per (tenant, source_type, source_id).
func (s *Service) PostPayment(ctx context.Context, conn *gorm.DB, tenantID, paymentID snowflake.ID, amount money.Cents, occurredAt time.Time, reversal bool) error {
	if tenantID == 0 {
		return ledgerdomain.ErrInvalidTenant
	}

	accounts, err := s.loadAccounts(ctx, conn, tenantID)
	if err != nil {
		return err
	}
	cash, ok := accounts[ledgerdomain.AccountCodeCash]
	if !ok {
		return ledgerdomain.ErrInvalidAccount
	}
	receivable, ok := accounts[ledgerdomain.AccountCodeAccountsReceivable]
	if !ok {
		return ledgerdomain.ErrInvalidAccount
	}

	sourceType := ledgerdomain.SourceTypePayment
	debitAccount, creditAccount := cash.ID, receivable.ID
	if reversal {
		sourceType = ledgerdomain.SourceTypePaymentReversal
		debitAccount, creditAccount = receivable.ID, cash.ID
	}

	lines := []ledgerdomain.EntryLine{
		{AccountID: debitAccount, Direction: ledgerdomain.EntryDirectionDebit, AmountCents: amount},
		{AccountID: creditAccount, Direction: ledgerdomain.EntryDirectionCredit, AmountCents: amount},
	}
	if err := ledgerdomain.ValidateBalanced(lines); err != nil {
		return err
	}

	entryID := s.genID.Generate()
	now := time.Now().UTC()

	result := conn.WithContext(ctx).Exec(
		`INSERT INTO ledger_entries (id, tenant_id, source_type, source_id, occurred_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, source_type, source_id) DO NOTHING`,
		entryID,
		tenantID,
		string(sourceType),
		paymentID,
		occurredAt.UTC(),
		now,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		s.log.Info("ledger entry already exists",
			zap.String("source_type", string(sourceType)),
			zap.String("payment_id", paymentID.String()),
		)
		return nil
	}

	for _, line := range lines {
		if err := conn.WithContext(ctx).Exec(
			`INSERT INTO ledger_entry_lines (id, ledger_entry_id, account_id, direction, amount_cents, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			s.genID.Generate(),
			entryID,
			line.AccountID,
			string(line.Direction),
			int64(line.AmountCents),
			now,
		).Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) loadAccounts(ctx context.Context, conn *gorm.DB, tenantID snowflake.ID) (map[ledgerdomain.AccountCode]ledgerdomain.Account, error) {
	var accounts []ledgerdomain.Account
	if err := conn.WithContext(ctx).Raw(
		`SELECT id, tenant_id, code, name, created_at
		 FROM ledger_accounts
		 WHERE tenant_id = ?`,
		tenantID,
	).Scan(&accounts).Error; err != nil {
		return nil, err
	}

	result := make(map[ledgerdomain.AccountCode]ledgerdomain.Account, len(accounts))
	for _, acc := range accounts {
		result[acc.Code] = acc
	}
	return result, nil
}
