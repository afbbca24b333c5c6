// Package domain defines the match decision state machine's inputs and
// outputs. A decision is a single synchronous evaluation; nothing here
// persists between calls.
package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	matchingdomain "github.com/ledgerline/reconcile/internal/matching/domain"
	"github.com/ledgerline/reconcile/internal/money"
	txdomain "github.com/ledgerline/reconcile/internal/transaction/domain"
)

// Action is the outcome of a match decision.
type Action string

const (
	ActionAutoApply      Action = "AUTO_APPLY"
	ActionReviewRequired Action = "REVIEW_REQUIRED"
	ActionNoMatch        Action = "NO_MATCH"
)

// Source is the closed set of decision provenances. Callers can switch
// over it exhaustively; new provenances are new constants, not new
// free-form strings.
type Source string

const (
	SourceDeterministic Source = "deterministic"
	SourceSimilarity    Source = "deterministic+similarity"
	SourceAssisted      Source = "assisted"
)

// MatchDecision is the engine's verdict for one transaction.
type MatchDecision struct {
	Action       Action
	InvoiceID    *snowflake.ID
	Confidence   int
	Reasoning    string
	Alternatives []matchingdomain.MatchCandidate
	Source       Source
}

// SimilarityHit is one embedding-similarity result for a reference text.
type SimilarityHit struct {
	InvoiceID  snowflake.ID
	Similarity float64
}

// SimilarityResolver is the optional embedding-similarity collaborator.
// Implementations return an empty slice rather than erroring when the
// backing service is unavailable; the engine treats any error as "no
// boost" regardless.
type SimilarityResolver interface {
	FindSimilarReferences(ctx context.Context, text string, tenantID snowflake.ID) ([]SimilarityHit, error)
}

// SuggestedAllocation is an allocation proposed by the assisted resolver.
type SuggestedAllocation struct {
	InvoiceID   snowflake.ID
	AmountCents money.Cents
}

// Resolution is the assisted resolver's answer to an ambiguous or
// low-confidence candidate set.
type Resolution struct {
	BestMatchInvoiceID   snowflake.ID
	Confidence           int
	Reasoning            string
	SuggestedAllocations []SuggestedAllocation
}

// AssistedResolver is the optional model-based collaborator. Any error
// it returns (or panic it raises) is absorbed by the decision engine.
type AssistedResolver interface {
	ResolveAmbiguity(ctx context.Context, tx *txdomain.Transaction, candidates []matchingdomain.MatchCandidate, tenantID snowflake.ID) (*Resolution, error)
}

type Service interface {
	// MakeMatchDecision never fails: collaborator errors degrade to
	// the deterministic result and an empty candidate set is a valid
	// NO_MATCH.
	MakeMatchDecision(ctx context.Context, tx *txdomain.Transaction, candidates []matchingdomain.MatchCandidate, tenantID snowflake.ID) MatchDecision
}
