package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	storeconfigdomain "github.com/orderstack/fulfill/internal/storeconfig/domain"
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

func New(p Params) storeconfigdomain.Repository {
	return &Repository{
		db:  p.DB,
		log: p.Log.Named("storeconfig.repository"),
	}
}

func (r *Repository) GetByStoreID(ctx context.Context, storeID snowflake.ID) (*storeconfigdomain.StoreFiscalConfig, error) {
	var cfg storeconfigdomain.StoreFiscalConfig
	err := r.db.WithContext(ctx).First(&cfg, "store_id = ?", storeID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storeconfigdomain.ErrConfigNotFound
		}
		return nil, err
	}
	return &cfg, nil
}

func (r *Repository) IncrementNextCardCode(ctx context.Context, storeID snowflake.ID) error {
	return r.db.WithContext(ctx).
		Model(&storeconfigdomain.StoreFiscalConfig{}).
		Where("store_id = ?", storeID).
		Updates(map[string]any{
			"next_card_code": gorm.Expr("next_card_code + 1"),
			"updated_at":     time.Now().UTC(),
		}).Error
}
