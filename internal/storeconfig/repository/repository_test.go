package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	storeconfigdomain "github.com/orderstack/fulfill/internal/storeconfig/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setup(t *testing.T) (*Repository, *gorm.DB, *snowflake.Node) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&storeconfigdomain.StoreFiscalConfig{}))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return &Repository{db: db, log: zap.NewNop()}, db, node
}

func TestGetByStoreID(t *testing.T) {
	repo, db, node := setup(t)
	storeID := node.Generate()

	cfg := storeconfigdomain.StoreFiscalConfig{
		ID:                 node.Generate(),
		StoreID:            storeID,
		InvoiceSerial:      "EMA",
		ReceiptSerial:      "EPA",
		InvoicePartyCode:   "120.01",
		ReceiptPartyCode:   "120.02",
		InvoiceAccountCode: "600.01",
		ReceiptAccountCode: "600.02",
		NextCardCode:       7,
	}
	require.NoError(t, db.Create(&cfg).Error)

	got, err := repo.GetByStoreID(context.Background(), storeID)
	require.NoError(t, err)
	assert.Equal(t, "EMA", got.InvoiceSerial)
	assert.Equal(t, int64(7), got.NextCardCode)

	_, err = repo.GetByStoreID(context.Background(), node.Generate())
	assert.ErrorIs(t, err, storeconfigdomain.ErrConfigNotFound)
}

func TestIncrementNextCardCode(t *testing.T) {
	repo, db, node := setup(t)
	storeID := node.Generate()

	cfg := storeconfigdomain.StoreFiscalConfig{
		ID:                 node.Generate(),
		StoreID:            storeID,
		InvoiceSerial:      "EMA",
		ReceiptSerial:      "EPA",
		InvoicePartyCode:   "120.01",
		ReceiptPartyCode:   "120.02",
		InvoiceAccountCode: "600.01",
		ReceiptAccountCode: "600.02",
		NextCardCode:       1,
	}
	require.NoError(t, db.Create(&cfg).Error)

	require.NoError(t, repo.IncrementNextCardCode(context.Background(), storeID))
	require.NoError(t, repo.IncrementNextCardCode(context.Background(), storeID))

	got, err := repo.GetByStoreID(context.Background(), storeID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.NextCardCode)
}
