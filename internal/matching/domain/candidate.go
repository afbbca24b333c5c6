// Package domain defines the candidate matcher's contract: given one
// credit bank transaction, score the tenant's open invoices and return
// the plausible targets. Scoring is a pure read; absence of candidates
// is a valid outcome, not an error.
package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/ledgerline/reconcile/internal/invoice/domain"
	txdomain "github.com/ledgerline/reconcile/internal/transaction/domain"
)

// MatchCandidate is an ephemeral scored pairing of a transaction with
// one open invoice.
type MatchCandidate struct {
	Invoice    invoicedomain.Invoice
	Confidence int
	Reasons    []string
}

type Service interface {
	// FindCandidates returns candidates for a credit transaction,
	// sorted by confidence descending with ties broken oldest invoice
	// first. Non-credit transactions yield no candidates.
	FindCandidates(ctx context.Context, tx *txdomain.Transaction, tenantID snowflake.ID) ([]MatchCandidate, error)
}
