// Package domain defines the append-only record of every match
// decision and escalation the engine produces. Records are evidence,
// not state: nothing reads them back on the hot path, and a failed
// write never fails the decision it describes.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// DecisionRecord is one logged match decision. IDs are ULIDs so the
// log is lexicographically ordered by creation time.
type DecisionRecord struct {
	ID             string        `gorm:"primaryKey;type:text"`
	TenantID       snowflake.ID  `gorm:"not null;index"`
	TransactionID  snowflake.ID  `gorm:"not null;index"`
	Action         string        `gorm:"type:text;not null"`
	Source         string        `gorm:"type:text;not null"`
	Confidence     int           `gorm:"not null"`
	InvoiceID      *snowflake.ID `gorm:""`
	CandidateCount int           `gorm:"not null"`
	Reasoning      string        `gorm:"type:text"`
	CreatedAt      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (DecisionRecord) TableName() string { return "match_decisions" }

// EscalationRecord is one logged escalation attempt (e.g. an ambiguity
// handed to the assisted resolver).
type EscalationRecord struct {
	ID              string         `gorm:"primaryKey;type:text"`
	TenantID        snowflake.ID   `gorm:"not null;index"`
	TransactionID   snowflake.ID   `gorm:"not null;index"`
	Code            string         `gorm:"type:text;not null"`
	Detail          string         `gorm:"type:text"`
	CandidateIDs    datatypes.JSON `gorm:"type:jsonb"`
	CandidateLabels datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt       time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (EscalationRecord) TableName() string { return "match_escalations" }

// Escalation reason codes.
const (
	CodeAmbiguousCandidates = "AMBIGUOUS_CANDIDATES"
	CodeBelowThreshold      = "BELOW_THRESHOLD"
	CodeHighValueReview     = "HIGH_VALUE_REVIEW"
)

// Service is the write-only decision log.
type Service interface {
	LogDecision(ctx context.Context, record DecisionRecord)
	LogEscalation(ctx context.Context, tenantID, transactionID snowflake.ID, code, detail string, candidateIDs []snowflake.ID, candidateLabels []string)
}
