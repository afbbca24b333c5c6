package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/ledgerline/reconcile/internal/config"
	decisiondomain "github.com/ledgerline/reconcile/internal/decision/domain"
	logdomain "github.com/ledgerline/reconcile/internal/decisionlog/domain"
	matchingdomain "github.com/ledgerline/reconcile/internal/matching/domain"
	"github.com/ledgerline/reconcile/internal/money"
	obsmetrics "github.com/ledgerline/reconcile/internal/observability/metrics"
	txdomain "github.com/ledgerline/reconcile/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Policy     *config.PolicyHolder
	Decisions  logdomain.Service
	Similarity decisiondomain.SimilarityResolver `optional:"true"`
	Assisted   decisiondomain.AssistedResolver   `optional:"true"`
	ObsMetrics *obsmetrics.Metrics               `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	policy     *config.PolicyHolder
	decisions  logdomain.Service
	similarity decisiondomain.SimilarityResolver
	assisted   decisiondomain.AssistedResolver
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) decisiondomain.Service {
	return &Service{
		log:        p.Log.Named("decision.service"),
		policy:     p.Policy,
		decisions:  p.Decisions,
		similarity: p.Similarity,
		assisted:   p.Assisted,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) MakeMatchDecision(ctx context.Context, tx *txdomain.Transaction, candidates []matchingdomain.MatchCandidate, tenantID snowflake.ID) decisiondomain.MatchDecision {
	policy := s.policy.Current()
	decision := s.evaluate(ctx, tx, candidates, tenantID, policy)

	s.logDecision(ctx, tx, tenantID, decision, len(candidates))
	s.obsMetrics.RecordDecision(ctx, string(decision.Action), string(decision.Source))
	return decision
}

func (s *Service) evaluate(ctx context.Context, tx *txdomain.Transaction, candidates []matchingdomain.MatchCandidate, tenantID snowflake.ID, policy config.ReconPolicy) decisiondomain.MatchDecision {
	threshold := policy.MatchThreshold

	if len(candidates) == 0 {
		return decisiondomain.MatchDecision{
			Action:     decisiondomain.ActionNoMatch,
			Confidence: 0,
			Reasoning:  "No matching invoices found",
			Source:     decisiondomain.SourceDeterministic,
		}
	}

	above := make([]matchingdomain.MatchCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Confidence >= threshold {
			above = append(above, c)
		}
	}

	// Fast path: a single confident candidate never consults the
	// secondary resolvers.
	if len(above) == 1 {
		chosen := above[0]
		id := chosen.Invoice.ID
		return decisiondomain.MatchDecision{
			Action:       decisiondomain.ActionAutoApply,
			InvoiceID:    &id,
			Confidence:   chosen.Confidence,
			Reasoning:    strings.Join(chosen.Reasons, "; "),
			Alternatives: without(candidates, chosen.Invoice.ID),
			Source:       decisiondomain.SourceDeterministic,
		}
	}

	var deterministic decisiondomain.MatchDecision
	ambiguous := len(above) > 1

	if ambiguous {
		oldestFirst(above)
		s.logEscalation(ctx, tx, tenantID, logdomain.CodeAmbiguousCandidates,
			fmt.Sprintf("%d candidates above threshold %d", len(above), threshold), above)
		deterministic = decisiondomain.MatchDecision{
			Action:       decisiondomain.ActionReviewRequired,
			Confidence:   above[0].Confidence,
			Reasoning:    fmt.Sprintf("Ambiguous — %d candidates above threshold %d", len(above), threshold),
			Alternatives: above,
			Source:       decisiondomain.SourceDeterministic,
		}
	} else {
		best := candidates[0]
		for _, c := range candidates[1:] {
			if c.Confidence > best.Confidence {
				best = c
			}
		}
		if boosted, ok := s.trySimilarityBoost(ctx, tx, best, tenantID, policy); ok {
			return boosted
		}
		deterministic = decisiondomain.MatchDecision{
			Action:       decisiondomain.ActionReviewRequired,
			Confidence:   best.Confidence,
			Reasoning:    fmt.Sprintf("Best candidate %s at %d%% is below threshold %d", best.Invoice.InvoiceNumber, best.Confidence, threshold),
			Alternatives: candidates,
			Source:       decisiondomain.SourceDeterministic,
		}
	}

	if s.assisted != nil {
		if resolved, ok := s.tryAssisted(ctx, tx, candidates, tenantID, policy); ok {
			if tx.AmountCents > money.Cents(policy.HighValueCents) {
				s.logEscalation(ctx, tx, tenantID, logdomain.CodeHighValueReview,
					fmt.Sprintf("assisted match above high-value floor %s", money.Cents(policy.HighValueCents).FormatZAR()), candidates)
				resolved.Action = decisiondomain.ActionReviewRequired
				resolved.Reasoning = fmt.Sprintf("High-value transaction %s — assisted match forced to review. %s",
					tx.AmountCents.FormatZAR(), resolved.Reasoning)
			}
			return resolved
		}
	}

	return deterministic
}

// trySimilarityBoost asks the embedding-similarity collaborator about
// the transaction's reference text and, on a sufficiently similar hit
// for the top candidate's invoice, adds up to SimilarityBoostMax
// confidence points before re-testing the threshold. Failures are
// logged and treated as no boost.
func (s *Service) trySimilarityBoost(ctx context.Context, tx *txdomain.Transaction, best matchingdomain.MatchCandidate, tenantID snowflake.ID, policy config.ReconPolicy) (decisiondomain.MatchDecision, bool) {
	if s.similarity == nil {
		return decisiondomain.MatchDecision{}, false
	}

	text := strings.TrimSpace(tx.Reference)
	if text == "" {
		text = tx.Description
	}

	hits, err := s.similarity.FindSimilarReferences(ctx, text, tenantID)
	if err != nil {
		s.log.Warn("similarity lookup failed, continuing without boost",
			zap.String("transaction_id", tx.ID.String()),
			zap.Error(err),
		)
		return decisiondomain.MatchDecision{}, false
	}

	for _, hit := range hits {
		if hit.InvoiceID != best.Invoice.ID || hit.Similarity < policy.SimilarityFloor {
			continue
		}
		boost := int(hit.Similarity*10 + 0.5)
		if boost > policy.SimilarityBoostMax {
			boost = policy.SimilarityBoostMax
		}
		confidence := best.Confidence + boost
		if confidence < policy.MatchThreshold {
			return decisiondomain.MatchDecision{}, false
		}
		if confidence > 100 {
			confidence = 100
		}
		id := best.Invoice.ID
		return decisiondomain.MatchDecision{
			Action:     decisiondomain.ActionAutoApply,
			InvoiceID:  &id,
			Confidence: confidence,
			Reasoning: fmt.Sprintf("%s; reference similarity %.2f added %d points",
				strings.Join(best.Reasons, "; "), hit.Similarity, boost),
			Source: decisiondomain.SourceSimilarity,
		}, true
	}
	return decisiondomain.MatchDecision{}, false
}

// tryAssisted consults the model-based resolver under the configured
// timeout. Only an answer naming one of the deterministic candidates at
// or above the threshold is accepted; anything else (error, timeout,
// panic, unknown invoice, low confidence) falls back to the
// deterministic result.
func (s *Service) tryAssisted(ctx context.Context, tx *txdomain.Transaction, candidates []matchingdomain.MatchCandidate, tenantID snowflake.ID, policy config.ReconPolicy) (decision decisiondomain.MatchDecision, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("assisted resolver panicked",
				zap.String("transaction_id", tx.ID.String()),
				zap.Any("panic", r),
			)
			decision, ok = decisiondomain.MatchDecision{}, false
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, policy.ResolverTimeout)
	defer cancel()

	resolution, err := s.assisted.ResolveAmbiguity(callCtx, tx, candidates, tenantID)
	if err != nil {
		s.log.Warn("assisted resolver failed, falling back to deterministic result",
			zap.String("transaction_id", tx.ID.String()),
			zap.Error(err),
		)
		return decisiondomain.MatchDecision{}, false
	}
	if resolution == nil || resolution.Confidence < policy.MatchThreshold {
		return decisiondomain.MatchDecision{}, false
	}

	for _, c := range candidates {
		if c.Invoice.ID != resolution.BestMatchInvoiceID {
			continue
		}
		id := resolution.BestMatchInvoiceID
		confidence := resolution.Confidence
		if confidence > 100 {
			confidence = 100
		}
		return decisiondomain.MatchDecision{
			Action:       decisiondomain.ActionAutoApply,
			InvoiceID:    &id,
			Confidence:   confidence,
			Reasoning:    resolution.Reasoning,
			Alternatives: without(candidates, id),
			Source:       decisiondomain.SourceAssisted,
		}, true
	}

	s.log.Warn("assisted resolver returned unknown invoice, ignoring",
		zap.String("transaction_id", tx.ID.String()),
		zap.String("invoice_id", resolution.BestMatchInvoiceID.String()),
	)
	return decisiondomain.MatchDecision{}, false
}

func (s *Service) logDecision(ctx context.Context, tx *txdomain.Transaction, tenantID snowflake.ID, decision decisiondomain.MatchDecision, candidateCount int) {
	s.decisions.LogDecision(ctx, logdomain.DecisionRecord{
		TenantID:       tenantID,
		TransactionID:  tx.ID,
		Action:         string(decision.Action),
		Source:         string(decision.Source),
		Confidence:     decision.Confidence,
		InvoiceID:      decision.InvoiceID,
		CandidateCount: candidateCount,
		Reasoning:      decision.Reasoning,
	})
}

func (s *Service) logEscalation(ctx context.Context, tx *txdomain.Transaction, tenantID snowflake.ID, code, detail string, candidates []matchingdomain.MatchCandidate) {
	ids := make([]snowflake.ID, 0, len(candidates))
	labels := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.Invoice.ID)
		labels = append(labels, c.Invoice.InvoiceNumber)
	}
	s.decisions.LogEscalation(ctx, tenantID, tx.ID, code, detail, ids, labels)
	s.obsMetrics.RecordEscalation(ctx, code)
}

func oldestFirst(candidates []matchingdomain.MatchCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Invoice.IssueDate.Before(candidates[j].Invoice.IssueDate)
	})
}

func without(candidates []matchingdomain.MatchCandidate, id snowflake.ID) []matchingdomain.MatchCandidate {
	out := make([]matchingdomain.MatchCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Invoice.ID != id {
			out = append(out, c)
		}
	}
	return out
}
