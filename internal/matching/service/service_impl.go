package service

import (
	"context"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/ledgerline/reconcile/internal/config"
	invoicedomain "github.com/ledgerline/reconcile/internal/invoice/domain"
	matchingdomain "github.com/ledgerline/reconcile/internal/matching/domain"
	"github.com/ledgerline/reconcile/internal/money"
	txdomain "github.com/ledgerline/reconcile/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Score weights. Reference and amount tiers are mutually exclusive
// within their group; only the best matching tier contributes.
const (
	scoreReferenceExact    = 50
	scoreReferenceContains = 35
	scoreReferenceSuffix   = 25

	scoreAmountExact = 30
	scoreAmountNear  = 20 // within 1% or R1, whichever is larger
	scoreAmountClose = 10 // within 10%

	scoreNameExact         = 20
	scoreNameSimilarityMax = 15

	// invoiceSuffixLen is how many trailing normalized characters of
	// the invoice number the suffix tier compares.
	invoiceSuffixLen = 4
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Policy      *config.PolicyHolder
	InvoiceRepo invoicedomain.Repository
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	policy      *config.PolicyHolder
	invoiceRepo invoicedomain.Repository
}

func NewService(p Params) matchingdomain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("matching.service"),
		policy:      p.Policy,
		invoiceRepo: p.InvoiceRepo,
	}
}

func (s *Service) FindCandidates(ctx context.Context, tx *txdomain.Transaction, tenantID snowflake.ID) ([]matchingdomain.MatchCandidate, error) {
	if tx == nil || !tx.IsCredit {
		return nil, nil
	}

	invoices, err := s.invoiceRepo.FindOpen(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}

	floor := s.policy.Current().CandidateFloor
	candidates := make([]matchingdomain.MatchCandidate, 0, len(invoices))
	for _, inv := range invoices {
		score, reasons := scoreInvoice(tx, inv)
		if score < floor {
			continue
		}
		if score > 100 {
			score = 100
		}
		candidates = append(candidates, matchingdomain.MatchCandidate{
			Invoice:    inv,
			Confidence: score,
			Reasons:    reasons,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Confidence != candidates[j].Confidence {
			return candidates[i].Confidence > candidates[j].Confidence
		}
		// FIFO preference downstream: oldest invoice first on ties.
		return candidates[i].Invoice.IssueDate.Before(candidates[j].Invoice.IssueDate)
	})

	s.log.Debug("scored candidates",
		zap.String("transaction_id", tx.ID.String()),
		zap.Int("open_invoices", len(invoices)),
		zap.Int("candidates", len(candidates)),
	)
	return candidates, nil
}

func scoreInvoice(tx *txdomain.Transaction, inv invoicedomain.Invoice) (int, []string) {
	score := 0
	var reasons []string

	if pts, reason := scoreReference(tx.Reference, inv.InvoiceNumber); pts > 0 {
		score += pts
		reasons = append(reasons, reason)
	}
	if pts, reason := scoreAmount(tx, inv); pts > 0 {
		score += pts
		if reason != "" {
			reasons = append(reasons, reason)
		}
	}
	if pts, reason := scoreName(tx.PayeeName, inv.ContactName); pts > 0 {
		score += pts
		reasons = append(reasons, reason)
	}

	return score, reasons
}

func scoreReference(reference, invoiceNumber string) (int, string) {
	ref := normalize(reference)
	num := normalize(invoiceNumber)
	if ref == "" || num == "" {
		return 0, ""
	}

	switch {
	case ref == num:
		return scoreReferenceExact, "Exact reference match"
	case strings.Contains(ref, num):
		return scoreReferenceContains, "Reference contains invoice number"
	case len(num) >= invoiceSuffixLen && strings.HasSuffix(ref, num[len(num)-invoiceSuffixLen:]):
		return scoreReferenceSuffix, "Reference ends with invoice suffix"
	}
	return 0, ""
}

func scoreAmount(tx *txdomain.Transaction, inv invoicedomain.Invoice) (int, string) {
	outstanding := inv.Outstanding()
	if outstanding <= 0 {
		return 0, ""
	}

	amount := tx.AmountCents
	switch {
	case amount == outstanding:
		return scoreAmountExact, "Exact amount match"
	case money.WithinTolerance(amount, outstanding, money.PercentOrOneRand(outstanding, 1)):
		return scoreAmountNear, "Amount within 1% or R1"
	case money.WithinPercent(amount, outstanding, 10):
		return scoreAmountClose, ""
	}
	return 0, ""
}

func scoreName(payee, contact string) (int, string) {
	payee = strings.TrimSpace(payee)
	contact = strings.TrimSpace(contact)
	if payee == "" || contact == "" {
		return 0, ""
	}

	if strings.EqualFold(payee, contact) {
		return scoreNameExact, "Exact name match"
	}

	sim := nameSimilarity(payee, contact)
	if sim < 0.5 {
		return 0, ""
	}
	pts := int(sim*scoreNameSimilarityMax + 0.5)
	if pts == 0 {
		return 0, ""
	}
	return pts, "Similar payee name"
}

// normalize strips non-alphanumerics and lower-cases, so "INV-2024/001"
// and "inv2024001" compare equal.
func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
