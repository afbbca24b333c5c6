package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/ledgerline/reconcile/internal/decisionlog/domain"
	"github.com/ledgerline/reconcile/internal/tenantctx"
	"github.com/oklog/ulid/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewService(p Params) domain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("decisionlog.service"),
	}
}

func (s *Service) LogDecision(ctx context.Context, record domain.DecisionRecord) {
	if record.ID == "" {
		record.ID = ulid.Make().String()
	}
	if record.TenantID == 0 {
		if id, ok := tenantctx.TenantIDFromContext(ctx); ok {
			record.TenantID = id
		}
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		s.log.Warn("failed to write decision record",
			zap.String("transaction_id", record.TransactionID.String()),
			zap.String("action", record.Action),
			zap.Error(err),
		)
	}
}

func (s *Service) LogEscalation(ctx context.Context, tenantID, transactionID snowflake.ID, code, detail string, candidateIDs []snowflake.ID, candidateLabels []string) {
	if tenantID == 0 {
		if id, ok := tenantctx.TenantIDFromContext(ctx); ok {
			tenantID = id
		}
	}
	ids := make([]string, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		ids = append(ids, id.String())
	}
	idsJSON, _ := json.Marshal(ids)
	labelsJSON, _ := json.Marshal(candidateLabels)

	record := domain.EscalationRecord{
		ID:              ulid.Make().String(),
		TenantID:        tenantID,
		TransactionID:   transactionID,
		Code:            code,
		Detail:          detail,
		CandidateIDs:    datatypes.JSON(idsJSON),
		CandidateLabels: datatypes.JSON(labelsJSON),
		CreatedAt:       time.Now().UTC(),
	}

	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		s.log.Warn("failed to write escalation record",
			zap.String("transaction_id", transactionID.String()),
			zap.String("code", code),
			zap.Error(err),
		)
	}
}
