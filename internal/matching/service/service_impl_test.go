package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/ledgerline/reconcile/internal/config"
	invoicedomain "github.com/ledgerline/reconcile/internal/invoice/domain"
	invoicerepo "github.com/ledgerline/reconcile/internal/invoice/repository"
	matchingdomain "github.com/ledgerline/reconcile/internal/matching/domain"
	"github.com/ledgerline/reconcile/internal/money"
	txdomain "github.com/ledgerline/reconcile/internal/transaction/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupMatchingTest(t *testing.T) (matchingdomain.Service, *gorm.DB, *snowflake.Node) {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&invoicedomain.Invoice{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{
		DB:          conn,
		Log:         zap.NewNop(),
		Policy:      config.NewStaticPolicyHolder(config.DefaultReconPolicy()),
		InvoiceRepo: invoicerepo.Provide(),
	})
	return svc, conn, node
}

func seedInvoice(t *testing.T, conn *gorm.DB, inv invoicedomain.Invoice) invoicedomain.Invoice {
	t.Helper()
	if inv.Status == "" {
		inv.Status = invoicedomain.StatusSent
	}
	if inv.IssueDate.IsZero() {
		inv.IssueDate = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	}
	if inv.DueDate.IsZero() {
		inv.DueDate = inv.IssueDate.AddDate(0, 1, 0)
	}
	require.NoError(t, conn.Create(&inv).Error)
	return inv
}

func creditTx(node *snowflake.Node, tenantID snowflake.ID, amount money.Cents, reference, payee string) *txdomain.Transaction {
	return &txdomain.Transaction{
		ID:              node.Generate(),
		TenantID:        tenantID,
		TransactionDate: time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		AmountCents:     amount,
		IsCredit:        true,
		Reference:       reference,
		PayeeName:       payee,
		Status:          txdomain.StatusPending,
	}
}

func TestFindCandidates_ExactReferenceAndAmount(t *testing.T) {
	svc, conn, node := setupMatchingTest(t)
	tenantID := node.Generate()

	inv := seedInvoice(t, conn, invoicedomain.Invoice{
		ID:            node.Generate(),
		TenantID:      tenantID,
		InvoiceNumber: "INV-2024-001",
		ContactName:   "Mokoena Consulting",
		TotalCents:    4000 * money.OneRand,
	})

	tx := creditTx(node, tenantID, 4000*money.OneRand, "INV-2024-001", "")
	candidates, err := svc.FindCandidates(context.Background(), tx, tenantID)
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	assert.Equal(t, inv.ID, candidates[0].Invoice.ID)
	assert.Equal(t, 80, candidates[0].Confidence)
	assert.Contains(t, candidates[0].Reasons, "Exact reference match")
	assert.Contains(t, candidates[0].Reasons, "Exact amount match")
}

func TestFindCandidates_ReferenceNormalization(t *testing.T) {
	svc, conn, node := setupMatchingTest(t)
	tenantID := node.Generate()

	seedInvoice(t, conn, invoicedomain.Invoice{
		ID:            node.Generate(),
		TenantID:      tenantID,
		InvoiceNumber: "INV-2024/001",
		TotalCents:    1000 * money.OneRand,
	})

	// Punctuation and case differences must not defeat the exact tier.
	tx := creditTx(node, tenantID, 1000*money.OneRand, "inv 2024 001", "")
	candidates, err := svc.FindCandidates(context.Background(), tx, tenantID)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Contains(t, candidates[0].Reasons, "Exact reference match")
	assert.Equal(t, 80, candidates[0].Confidence)
}

func TestFindCandidates_ReferenceSuffixTier(t *testing.T) {
	svc, conn, node := setupMatchingTest(t)
	tenantID := node.Generate()

	seedInvoice(t, conn, invoicedomain.Invoice{
		ID:            node.Generate(),
		TenantID:      tenantID,
		InvoiceNumber: "INV-2024-0456",
		TotalCents:    2500 * money.OneRand,
	})

	tx := creditTx(node, tenantID, 2500*money.OneRand, "PAYMENT 0456", "")
	candidates, err := svc.FindCandidates(context.Background(), tx, tenantID)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Contains(t, candidates[0].Reasons, "Reference ends with invoice suffix")
	// 25 suffix + 30 exact amount.
	assert.Equal(t, 55, candidates[0].Confidence)
}

func TestFindCandidates_AmountNearTierUsesLargerOfPercentAndOneRand(t *testing.T) {
	svc, conn, node := setupMatchingTest(t)
	tenantID := node.Generate()

	// Outstanding R50.00: 1% is 50c, so the R1 band applies.
	seedInvoice(t, conn, invoicedomain.Invoice{
		ID:            node.Generate(),
		TenantID:      tenantID,
		InvoiceNumber: "INV-SMALL",
		TotalCents:    50 * money.OneRand,
	})

	tx := creditTx(node, tenantID, 50*money.OneRand+90, "unrelated ref", "")
	candidates, err := svc.FindCandidates(context.Background(), tx, tenantID)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, 20, candidates[0].Confidence)
	assert.Contains(t, candidates[0].Reasons, "Amount within 1% or R1")
}

func TestFindCandidates_BelowFloorExcluded(t *testing.T) {
	svc, conn, node := setupMatchingTest(t)
	tenantID := node.Generate()

	// Only the 10% amount band matches: 10 points, below the floor of 20.
	seedInvoice(t, conn, invoicedomain.Invoice{
		ID:            node.Generate(),
		TenantID:      tenantID,
		InvoiceNumber: "INV-FAR",
		TotalCents:    1000 * money.OneRand,
	})

	tx := creditTx(node, tenantID, 1080*money.OneRand, "nothing shared", "")
	candidates, err := svc.FindCandidates(context.Background(), tx, tenantID)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestFindCandidates_NonCreditReturnsNothing(t *testing.T) {
	svc, conn, node := setupMatchingTest(t)
	tenantID := node.Generate()

	seedInvoice(t, conn, invoicedomain.Invoice{
		ID:            node.Generate(),
		TenantID:      tenantID,
		InvoiceNumber: "INV-1",
		TotalCents:    100 * money.OneRand,
	})

	tx := creditTx(node, tenantID, 100*money.OneRand, "INV-1", "")
	tx.IsCredit = false
	candidates, err := svc.FindCandidates(context.Background(), tx, tenantID)
	require.NoError(t, err)
	assert.Nil(t, candidates)
}

func TestFindCandidates_TenantIsolation(t *testing.T) {
	svc, conn, node := setupMatchingTest(t)
	tenantA := node.Generate()
	tenantB := node.Generate()

	seedInvoice(t, conn, invoicedomain.Invoice{
		ID:            node.Generate(),
		TenantID:      tenantB,
		InvoiceNumber: "INV-OTHER",
		TotalCents:    300 * money.OneRand,
	})

	tx := creditTx(node, tenantA, 300*money.OneRand, "INV-OTHER", "")
	candidates, err := svc.FindCandidates(context.Background(), tx, tenantA)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestFindCandidates_SkipsSettledAndVoidInvoices(t *testing.T) {
	svc, conn, node := setupMatchingTest(t)
	tenantID := node.Generate()

	seedInvoice(t, conn, invoicedomain.Invoice{
		ID:              node.Generate(),
		TenantID:        tenantID,
		InvoiceNumber:   "INV-PAID",
		TotalCents:      200 * money.OneRand,
		AmountPaidCents: 200 * money.OneRand,
		Status:          invoicedomain.StatusPaid,
	})
	seedInvoice(t, conn, invoicedomain.Invoice{
		ID:            node.Generate(),
		TenantID:      tenantID,
		InvoiceNumber: "INV-VOID",
		TotalCents:    200 * money.OneRand,
		Status:        invoicedomain.StatusVoid,
	})

	tx := creditTx(node, tenantID, 200*money.OneRand, "INV-PAID", "")
	candidates, err := svc.FindCandidates(context.Background(), tx, tenantID)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestFindCandidates_PartialPaymentScoresOutstandingBalance(t *testing.T) {
	svc, conn, node := setupMatchingTest(t)
	tenantID := node.Generate()

	// R1,000 invoice with R400 already paid: R600 is the amount to match.
	seedInvoice(t, conn, invoicedomain.Invoice{
		ID:              node.Generate(),
		TenantID:        tenantID,
		InvoiceNumber:   "INV-PART",
		TotalCents:      1000 * money.OneRand,
		AmountPaidCents: 400 * money.OneRand,
		Status:          invoicedomain.StatusPartiallyPaid,
	})

	tx := creditTx(node, tenantID, 600*money.OneRand, "INV-PART", "")
	candidates, err := svc.FindCandidates(context.Background(), tx, tenantID)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Contains(t, candidates[0].Reasons, "Exact amount match")
}

func TestFindCandidates_SortedByConfidenceThenOldest(t *testing.T) {
	svc, conn, node := setupMatchingTest(t)
	tenantID := node.Generate()

	older := seedInvoice(t, conn, invoicedomain.Invoice{
		ID:            node.Generate(),
		TenantID:      tenantID,
		InvoiceNumber: "INV-A",
		TotalCents:    750 * money.OneRand,
		IssueDate:     time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
	})
	newer := seedInvoice(t, conn, invoicedomain.Invoice{
		ID:            node.Generate(),
		TenantID:      tenantID,
		InvoiceNumber: "INV-B",
		TotalCents:    750 * money.OneRand,
		IssueDate:     time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	strongest := seedInvoice(t, conn, invoicedomain.Invoice{
		ID:            node.Generate(),
		TenantID:      tenantID,
		InvoiceNumber: "INV-C",
		TotalCents:    750 * money.OneRand,
		IssueDate:     time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
	})

	tx := creditTx(node, tenantID, 750*money.OneRand, "INV-C", "")
	candidates, err := svc.FindCandidates(context.Background(), tx, tenantID)
	require.NoError(t, err)
	require.Len(t, candidates, 3)

	assert.Equal(t, strongest.ID, candidates[0].Invoice.ID)
	assert.Equal(t, older.ID, candidates[1].Invoice.ID)
	assert.Equal(t, newer.ID, candidates[2].Invoice.ID)
	assert.Equal(t, candidates[1].Confidence, candidates[2].Confidence)
}

func TestScoreInvoice_CapsAtOneHundred(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	tenantID := node.Generate()

	inv := invoicedomain.Invoice{
		ID:            node.Generate(),
		TenantID:      tenantID,
		InvoiceNumber: "INV-100",
		ContactName:   "Naledi Traders",
		TotalCents:    900 * money.OneRand,
	}
	tx := creditTx(node, tenantID, 900*money.OneRand, "INV-100", "Naledi Traders")

	score, reasons := scoreInvoice(tx, inv)
	assert.Equal(t, 100, score)
	assert.Len(t, reasons, 3)
}

func TestScoreName_SimilarNames(t *testing.T) {
	pts, reason := scoreName("ACME Trading Pty Ltd", "ACME Trading")
	assert.Greater(t, pts, 0)
	assert.LessOrEqual(t, pts, scoreNameSimilarityMax)
	assert.Equal(t, "Similar payee name", reason)

	pts, _ = scoreName("Zanele Hardware", "Coastal Fisheries")
	assert.Zero(t, pts)
}

func TestScoreReference_TiersAreExclusive(t *testing.T) {
	pts, _ := scoreReference("INV-88 payment INV-88", "INV-88")
	assert.Equal(t, scoreReferenceContains, pts)

	pts, _ = scoreReference("", "INV-88")
	assert.Zero(t, pts)

	pts, _ = scoreReference("INV-88", "")
	assert.Zero(t, pts)
}
