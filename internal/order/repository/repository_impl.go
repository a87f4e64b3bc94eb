package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/orderstack/fulfill/internal/order/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

type Repository struct {
	db  *gorm.DB
	log *zap.Logger
}

func New(p Params) orderdomain.Source {
	return &Repository{
		db:  p.DB,
		log: p.Log.Named("order.repository"),
	}
}

func (r *Repository) GetOrder(ctx context.Context, id snowflake.ID) (*orderdomain.Order, error) {
	var order orderdomain.Order
	err := r.db.WithContext(ctx).
		Preload("Lines").
		First(&order, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, orderdomain.ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *Repository) GetOrderByNumber(ctx context.Context, number string) (*orderdomain.Order, error) {
	var order orderdomain.Order
	err := r.db.WithContext(ctx).
		Preload("Lines").
		First(&order, "order_number = ?", number).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, orderdomain.ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *Repository) UpdateOrderStatus(ctx context.Context, id snowflake.ID, status string) error {
	return r.db.WithContext(ctx).
		Model(&orderdomain.Order{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     status,
			"updated_at": time.Now().UTC(),
		}).Error
}
