package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/ledgerline/reconcile/internal/config"
	decisiondomain "github.com/ledgerline/reconcile/internal/decision/domain"
	logdomain "github.com/ledgerline/reconcile/internal/decisionlog/domain"
	matchingdomain "github.com/ledgerline/reconcile/internal/matching/domain"
	invoicedomain "github.com/ledgerline/reconcile/internal/invoice/domain"
	"github.com/ledgerline/reconcile/internal/money"
	txdomain "github.com/ledgerline/reconcile/internal/transaction/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recordingLog captures decision log writes without a database.
type recordingLog struct {
	decisions   []logdomain.DecisionRecord
	escalations []string
}

func (r *recordingLog) LogDecision(ctx context.Context, record logdomain.DecisionRecord) {
	r.decisions = append(r.decisions, record)
}

func (r *recordingLog) LogEscalation(ctx context.Context, tenantID, transactionID snowflake.ID, code, detail string, candidateIDs []snowflake.ID, candidateLabels []string) {
	r.escalations = append(r.escalations, code)
}

type mockSimilarity struct {
	mock.Mock
}

func (m *mockSimilarity) FindSimilarReferences(ctx context.Context, text string, tenantID snowflake.ID) ([]decisiondomain.SimilarityHit, error) {
	args := m.Called(ctx, text, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]decisiondomain.SimilarityHit), args.Error(1)
}

type mockAssisted struct {
	mock.Mock
}

func (m *mockAssisted) ResolveAmbiguity(ctx context.Context, tx *txdomain.Transaction, candidates []matchingdomain.MatchCandidate, tenantID snowflake.ID) (*decisiondomain.Resolution, error) {
	args := m.Called(ctx, tx, candidates, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*decisiondomain.Resolution), args.Error(1)
}

type panickingAssisted struct{}

func (panickingAssisted) ResolveAmbiguity(ctx context.Context, tx *txdomain.Transaction, candidates []matchingdomain.MatchCandidate, tenantID snowflake.ID) (*decisiondomain.Resolution, error) {
	panic("resolver crashed")
}

func newDecisionService(t *testing.T, log *recordingLog, similarity decisiondomain.SimilarityResolver, assisted decisiondomain.AssistedResolver) decisiondomain.Service {
	t.Helper()
	return NewService(Params{
		Log:        zap.NewNop(),
		Policy:     config.NewStaticPolicyHolder(config.DefaultReconPolicy()),
		Decisions:  log,
		Similarity: similarity,
		Assisted:   assisted,
	})
}

func candidate(node *snowflake.Node, number string, confidence int, issued time.Time) matchingdomain.MatchCandidate {
	return matchingdomain.MatchCandidate{
		Invoice: invoicedomain.Invoice{
			ID:            node.Generate(),
			InvoiceNumber: number,
			IssueDate:     issued,
		},
		Confidence: confidence,
		Reasons:    []string{"Exact reference match"},
	}
}

func decisionTx(node *snowflake.Node, amount money.Cents) *txdomain.Transaction {
	return &txdomain.Transaction{
		ID:          node.Generate(),
		AmountCents: amount,
		IsCredit:    true,
		Reference:   "INV-1001",
	}
}

func TestMakeMatchDecision_NoCandidates(t *testing.T) {
	node, _ := snowflake.NewNode(1)
	log := &recordingLog{}
	svc := newDecisionService(t, log, nil, nil)

	decision := svc.MakeMatchDecision(context.Background(), decisionTx(node, 4000*money.OneRand), nil, node.Generate())

	assert.Equal(t, decisiondomain.ActionNoMatch, decision.Action)
	assert.Nil(t, decision.InvoiceID)
	assert.Zero(t, decision.Confidence)
	assert.Equal(t, "No matching invoices found", decision.Reasoning)
	assert.Equal(t, decisiondomain.SourceDeterministic, decision.Source)
	require.Len(t, log.decisions, 1)
	assert.Equal(t, "NO_MATCH", log.decisions[0].Action)
}

func TestMakeMatchDecision_SingleConfidentCandidateAutoApplies(t *testing.T) {
	node, _ := snowflake.NewNode(1)
	log := &recordingLog{}
	assisted := &mockAssisted{}
	svc := newDecisionService(t, log, nil, assisted)

	issued := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	winner := candidate(node, "INV-1001", 80, issued)
	weak := candidate(node, "INV-1002", 30, issued)

	decision := svc.MakeMatchDecision(context.Background(), decisionTx(node, 4000*money.OneRand),
		[]matchingdomain.MatchCandidate{winner, weak}, node.Generate())

	assert.Equal(t, decisiondomain.ActionAutoApply, decision.Action)
	require.NotNil(t, decision.InvoiceID)
	assert.Equal(t, winner.Invoice.ID, *decision.InvoiceID)
	assert.Equal(t, 80, decision.Confidence)
	assert.Equal(t, decisiondomain.SourceDeterministic, decision.Source)
	require.Len(t, decision.Alternatives, 1)
	assert.Equal(t, weak.Invoice.ID, decision.Alternatives[0].Invoice.ID)

	// The confident single winner never consults the resolver.
	assisted.AssertNotCalled(t, "ResolveAmbiguity", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, log.escalations)
}

func TestMakeMatchDecision_AmbiguousCandidatesRequireReview(t *testing.T) {
	node, _ := snowflake.NewNode(1)
	log := &recordingLog{}
	svc := newDecisionService(t, log, nil, nil)

	older := candidate(node, "INV-OLD", 85, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))
	newer := candidate(node, "INV-NEW", 90, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	decision := svc.MakeMatchDecision(context.Background(), decisionTx(node, 4000*money.OneRand),
		[]matchingdomain.MatchCandidate{newer, older}, node.Generate())

	assert.Equal(t, decisiondomain.ActionReviewRequired, decision.Action)
	assert.Nil(t, decision.InvoiceID)
	assert.Contains(t, decision.Reasoning, "Ambiguous")
	require.Len(t, decision.Alternatives, 2)
	// Oldest invoice is presented first for FIFO review.
	assert.Equal(t, older.Invoice.ID, decision.Alternatives[0].Invoice.ID)
	require.Len(t, log.escalations, 1)
	assert.Equal(t, logdomain.CodeAmbiguousCandidates, log.escalations[0])
}

func TestMakeMatchDecision_BelowThresholdRequiresReview(t *testing.T) {
	node, _ := snowflake.NewNode(1)
	log := &recordingLog{}
	svc := newDecisionService(t, log, nil, nil)

	best := candidate(node, "INV-1003", 65, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	decision := svc.MakeMatchDecision(context.Background(), decisionTx(node, 4000*money.OneRand),
		[]matchingdomain.MatchCandidate{best}, node.Generate())

	assert.Equal(t, decisiondomain.ActionReviewRequired, decision.Action)
	assert.Equal(t, 65, decision.Confidence)
	assert.Contains(t, decision.Reasoning, "below threshold")
	assert.Contains(t, decision.Reasoning, "INV-1003")
}

func TestMakeMatchDecision_SimilarityBoostLiftsOverThreshold(t *testing.T) {
	node, _ := snowflake.NewNode(1)
	log := &recordingLog{}
	similarity := &mockSimilarity{}
	svc := newDecisionService(t, log, similarity, nil)

	best := candidate(node, "INV-1004", 72, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	tenantID := node.Generate()

	similarity.On("FindSimilarReferences", mock.Anything, "INV-1001", tenantID).
		Return([]decisiondomain.SimilarityHit{{InvoiceID: best.Invoice.ID, Similarity: 0.9}}, nil)

	decision := svc.MakeMatchDecision(context.Background(), decisionTx(node, 4000*money.OneRand),
		[]matchingdomain.MatchCandidate{best}, tenantID)

	// 72 + round(0.9*10) = 81.
	assert.Equal(t, decisiondomain.ActionAutoApply, decision.Action)
	assert.Equal(t, 81, decision.Confidence)
	assert.Equal(t, decisiondomain.SourceSimilarity, decision.Source)
	require.NotNil(t, decision.InvoiceID)
	assert.Equal(t, best.Invoice.ID, *decision.InvoiceID)
	similarity.AssertExpectations(t)
}

func TestMakeMatchDecision_SimilarityFailureDegradesToReview(t *testing.T) {
	node, _ := snowflake.NewNode(1)
	log := &recordingLog{}
	similarity := &mockSimilarity{}
	svc := newDecisionService(t, log, similarity, nil)

	best := candidate(node, "INV-1005", 75, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	similarity.On("FindSimilarReferences", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("similarity backend down"))

	decision := svc.MakeMatchDecision(context.Background(), decisionTx(node, 4000*money.OneRand),
		[]matchingdomain.MatchCandidate{best}, node.Generate())

	assert.Equal(t, decisiondomain.ActionReviewRequired, decision.Action)
	assert.Equal(t, decisiondomain.SourceDeterministic, decision.Source)
}

func TestMakeMatchDecision_SimilarityBoostInsufficientStaysReview(t *testing.T) {
	node, _ := snowflake.NewNode(1)
	log := &recordingLog{}
	similarity := &mockSimilarity{}
	svc := newDecisionService(t, log, similarity, nil)

	// 60 + max boost 10 cannot reach 80.
	best := candidate(node, "INV-1006", 60, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	similarity.On("FindSimilarReferences", mock.Anything, mock.Anything, mock.Anything).
		Return([]decisiondomain.SimilarityHit{{InvoiceID: best.Invoice.ID, Similarity: 0.99}}, nil)

	decision := svc.MakeMatchDecision(context.Background(), decisionTx(node, 4000*money.OneRand),
		[]matchingdomain.MatchCandidate{best}, node.Generate())

	assert.Equal(t, decisiondomain.ActionReviewRequired, decision.Action)
}

func TestMakeMatchDecision_AssistedResolvesAmbiguity(t *testing.T) {
	node, _ := snowflake.NewNode(1)
	log := &recordingLog{}
	assisted := &mockAssisted{}
	svc := newDecisionService(t, log, nil, assisted)

	first := candidate(node, "INV-2001", 85, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))
	second := candidate(node, "INV-2002", 85, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	assisted.On("ResolveAmbiguity", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&decisiondomain.Resolution{
			BestMatchInvoiceID: second.Invoice.ID,
			Confidence:         88,
			Reasoning:          "Reference date aligns with the newer invoice",
		}, nil)

	decision := svc.MakeMatchDecision(context.Background(), decisionTx(node, 4000*money.OneRand),
		[]matchingdomain.MatchCandidate{first, second}, node.Generate())

	assert.Equal(t, decisiondomain.ActionAutoApply, decision.Action)
	assert.Equal(t, decisiondomain.SourceAssisted, decision.Source)
	require.NotNil(t, decision.InvoiceID)
	assert.Equal(t, second.Invoice.ID, *decision.InvoiceID)
	assert.Equal(t, 88, decision.Confidence)
}

func TestMakeMatchDecision_AssistedErrorFallsBackToDeterministic(t *testing.T) {
	node, _ := snowflake.NewNode(1)
	log := &recordingLog{}
	assisted := &mockAssisted{}
	svc := newDecisionService(t, log, nil, assisted)

	first := candidate(node, "INV-2003", 85, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))
	second := candidate(node, "INV-2004", 85, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	assisted.On("ResolveAmbiguity", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("model unavailable"))

	decision := svc.MakeMatchDecision(context.Background(), decisionTx(node, 4000*money.OneRand),
		[]matchingdomain.MatchCandidate{first, second}, node.Generate())

	assert.Equal(t, decisiondomain.ActionReviewRequired, decision.Action)
	assert.Equal(t, decisiondomain.SourceDeterministic, decision.Source)
	assert.Contains(t, decision.Reasoning, "Ambiguous")
}

func TestMakeMatchDecision_AssistedUnknownInvoiceIgnored(t *testing.T) {
	node, _ := snowflake.NewNode(1)
	log := &recordingLog{}
	assisted := &mockAssisted{}
	svc := newDecisionService(t, log, nil, assisted)

	first := candidate(node, "INV-2005", 85, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))
	second := candidate(node, "INV-2006", 85, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	assisted.On("ResolveAmbiguity", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&decisiondomain.Resolution{
			BestMatchInvoiceID: node.Generate(), // not among the candidates
			Confidence:         95,
		}, nil)

	decision := svc.MakeMatchDecision(context.Background(), decisionTx(node, 4000*money.OneRand),
		[]matchingdomain.MatchCandidate{first, second}, node.Generate())

	assert.Equal(t, decisiondomain.ActionReviewRequired, decision.Action)
	assert.Equal(t, decisiondomain.SourceDeterministic, decision.Source)
}

func TestMakeMatchDecision_AssistedPanicFallsBackToDeterministic(t *testing.T) {
	node, _ := snowflake.NewNode(1)
	log := &recordingLog{}
	svc := newDecisionService(t, log, nil, panickingAssisted{})

	first := candidate(node, "INV-2007", 85, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))
	second := candidate(node, "INV-2008", 85, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

	decision := svc.MakeMatchDecision(context.Background(), decisionTx(node, 4000*money.OneRand),
		[]matchingdomain.MatchCandidate{first, second}, node.Generate())

	assert.Equal(t, decisiondomain.ActionReviewRequired, decision.Action)
	assert.Equal(t, decisiondomain.SourceDeterministic, decision.Source)
}

func TestMakeMatchDecision_AssistedLowConfidenceRejected(t *testing.T) {
	node, _ := snowflake.NewNode(1)
	log := &recordingLog{}
	assisted := &mockAssisted{}
	svc := newDecisionService(t, log, nil, assisted)

	first := candidate(node, "INV-2009", 85, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))
	second := candidate(node, "INV-2010", 85, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	assisted.On("ResolveAmbiguity", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&decisiondomain.Resolution{
			BestMatchInvoiceID: first.Invoice.ID,
			Confidence:         70,
		}, nil)

	decision := svc.MakeMatchDecision(context.Background(), decisionTx(node, 4000*money.OneRand),
		[]matchingdomain.MatchCandidate{first, second}, node.Generate())

	assert.Equal(t, decisiondomain.ActionReviewRequired, decision.Action)
}

func TestMakeMatchDecision_ThresholdMonotonicity(t *testing.T) {
	node, _ := snowflake.NewNode(1)
	sole := candidate(node, "INV-4001", 85, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	tx := decisionTx(node, 4000*money.OneRand)
	tenantID := node.Generate()

	decide := func(threshold int) decisiondomain.Action {
		policy := config.DefaultReconPolicy()
		policy.MatchThreshold = threshold
		svc := NewService(Params{
			Log:       zap.NewNop(),
			Policy:    config.NewStaticPolicyHolder(policy),
			Decisions: &recordingLog{},
		})
		return svc.MakeMatchDecision(context.Background(), tx, []matchingdomain.MatchCandidate{sole}, tenantID).Action
	}

	// Raising the threshold can only move a decision toward review.
	assert.Equal(t, decisiondomain.ActionAutoApply, decide(80))
	assert.Equal(t, decisiondomain.ActionAutoApply, decide(85))
	assert.Equal(t, decisiondomain.ActionReviewRequired, decide(86))
	assert.Equal(t, decisiondomain.ActionReviewRequired, decide(95))
}

func TestMakeMatchDecision_HighValueAssistedMatchForcedToReview(t *testing.T) {
	node, _ := snowflake.NewNode(1)
	log := &recordingLog{}
	assisted := &mockAssisted{}
	svc := newDecisionService(t, log, nil, assisted)

	first := candidate(node, "INV-3001", 85, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))
	second := candidate(node, "INV-3002", 85, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	assisted.On("ResolveAmbiguity", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(&decisiondomain.Resolution{
			BestMatchInvoiceID: first.Invoice.ID,
			Confidence:         90,
			Reasoning:          "Clear winner",
		}, nil)

	// R150,000 is above the R100,000 high-value floor.
	decision := svc.MakeMatchDecision(context.Background(), decisionTx(node, 150_000*money.OneRand),
		[]matchingdomain.MatchCandidate{first, second}, node.Generate())

	assert.Equal(t, decisiondomain.ActionReviewRequired, decision.Action)
	assert.Equal(t, decisiondomain.SourceAssisted, decision.Source)
	assert.Contains(t, decision.Reasoning, "High-value transaction")
	assert.Contains(t, log.escalations, logdomain.CodeHighValueReview)
}
