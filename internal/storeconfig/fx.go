package storeconfig

import (
	"github.com/orderstack/fulfill/internal/storeconfig/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("storeconfig",
	fx.Provide(repository.New),
)
