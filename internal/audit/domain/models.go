// Package domain defines the invoice history audit trail.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// AuditLog is one recorded domain event. Rows are append-only.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey"`
	StoreID    snowflake.ID      `gorm:"index"`
	Action     string            `gorm:"type:text;not null"`
	TargetType string            `gorm:"type:text;not null"`
	TargetID   *string           `gorm:"type:text;index"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }

// Service records domain events. Failures are the caller's to tolerate:
// history is administrative plumbing and must never block issuance.
type Service interface {
	AuditLog(ctx context.Context, storeID snowflake.ID, action string, targetType string, targetID *string, metadata map[string]any) error
}

var (
	ErrInvalidAction = errors.New("invalid_action")
)
