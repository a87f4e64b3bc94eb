package guard

import (
	"github.com/orderstack/fulfill/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

func NewRedisClient(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
}

var Module = fx.Module("guard",
	fx.Provide(NewRedisClient),
	fx.Provide(NewIssueGuard),
)
