package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/orderstack/fulfill/internal/audit/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setup(t *testing.T) (*Service, *gorm.DB, *snowflake.Node) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&auditdomain.AuditLog{}))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return &Service{db: db, log: zap.NewNop(), genID: node}, db, node
}

func TestAuditLog(t *testing.T) {
	svc, db, node := setup(t)
	storeID := node.Generate()

	targetID := "inv-1"
	err := svc.AuditLog(context.Background(), storeID, "invoice.issued", "invoice", &targetID, map[string]any{
		"order_number":    "ORD-1",
		"document_number": "EMA2026000000042",
		"":                "dropped",
	})
	require.NoError(t, err)

	var entries []auditdomain.AuditLog
	require.NoError(t, db.Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, "invoice.issued", entries[0].Action)
	assert.Equal(t, "invoice", entries[0].TargetType)
	require.NotNil(t, entries[0].TargetID)
	assert.Equal(t, "inv-1", *entries[0].TargetID)
	assert.Equal(t, "EMA2026000000042", entries[0].Metadata["document_number"])
	assert.NotContains(t, entries[0].Metadata, "")
}

func TestAuditLog_InvalidAction(t *testing.T) {
	svc, db, _ := setup(t)

	err := svc.AuditLog(context.Background(), 0, "   ", "invoice", nil, nil)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)

	var n int64
	require.NoError(t, db.Model(&auditdomain.AuditLog{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestAuditLog_BlankTargetType(t *testing.T) {
	svc, db, node := setup(t)

	require.NoError(t, svc.AuditLog(context.Background(), node.Generate(), "invoice.issued", "", nil, nil))

	var entry auditdomain.AuditLog
	require.NoError(t, db.First(&entry).Error)
	assert.Equal(t, "unknown", entry.TargetType)
}
