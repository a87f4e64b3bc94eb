package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	orderdomain "github.com/orderstack/fulfill/internal/order/domain"
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
	require.NoError(t, db.AutoMigrate(&orderdomain.Order{}, &orderdomain.OrderLine{}))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return &Repository{db: db, log: zap.NewNop()}, db, node
}

func seedOrder(t *testing.T, db *gorm.DB, node *snowflake.Node) *orderdomain.Order {
	t.Helper()
	id := node.Generate()
	order := orderdomain.Order{
		ID:           id,
		OrderNumber:  "ORD-" + id.String(),
		StoreID:      node.Generate(),
		Marketplace:  "emag",
		Status:       orderdomain.StatusShipped,
		CustomerName: "Acme Trading Ltd",
		GrossTotal:   100,
		Lines: []orderdomain.OrderLine{
			{ID: node.Generate(), OrderID: id, SKU: "SKU-1", Name: "Widget", Quantity: 2, UnitPrice: 50},
		},
	}
	require.NoError(t, db.Create(&order).Error)
	return &order
}

func TestGetOrder(t *testing.T) {
	repo, db, node := setup(t)
	seeded := seedOrder(t, db, node)

	got, err := repo.GetOrder(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, seeded.OrderNumber, got.OrderNumber)
	require.Len(t, got.Lines, 1)
	assert.Equal(t, "SKU-1", got.Lines[0].SKU)

	_, err = repo.GetOrder(context.Background(), node.Generate())
	assert.ErrorIs(t, err, orderdomain.ErrOrderNotFound)
}

func TestGetOrderByNumber(t *testing.T) {
	repo, db, node := setup(t)
	seeded := seedOrder(t, db, node)

	got, err := repo.GetOrderByNumber(context.Background(), seeded.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, seeded.ID, got.ID)

	_, err = repo.GetOrderByNumber(context.Background(), "ORD-missing")
	assert.ErrorIs(t, err, orderdomain.ErrOrderNotFound)
}

func TestUpdateOrderStatus(t *testing.T) {
	repo, db, node := setup(t)
	seeded := seedOrder(t, db, node)

	require.NoError(t, repo.UpdateOrderStatus(context.Background(), seeded.ID, orderdomain.StatusInvoiced))

	got, err := repo.GetOrder(context.Background(), seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, orderdomain.StatusInvoiced, got.Status)
}
