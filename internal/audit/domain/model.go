// Package domain defines the audit trail written by the allocation
// engine. Writes are best-effort; a failed audit insert never aborts
// the operation it describes.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditLog is one recorded action against a target entity.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey"`
	TenantID   snowflake.ID      `gorm:"not null;index"`
	ActorType  string            `gorm:"type:text;not null"`
	ActorID    *string           `gorm:""`
	Action     string            `gorm:"type:text;not null;index"`
	TargetType string            `gorm:"type:text;not null"`
	TargetID   *string           `gorm:""`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }

var (
	ErrInvalidAction = errors.New("invalid_audit_action")
)

type Service interface {
	// AuditLog writes one entry on the given handle, so entries
	// created inside a database transaction roll back with it.
	AuditLog(ctx context.Context, conn *gorm.DB, tenantID snowflake.ID, actorType string, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error
}
