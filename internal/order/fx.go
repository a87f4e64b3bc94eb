package order

import (
	"github.com/orderstack/fulfill/internal/order/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("order",
	fx.Provide(repository.New),
)
