package invoice

import (
	"github.com/orderstack/fulfill/internal/audit"
	"github.com/orderstack/fulfill/internal/invoice/profile"
	"github.com/orderstack/fulfill/internal/invoice/sequence"
	"github.com/orderstack/fulfill/internal/invoice/service"
	"github.com/orderstack/fulfill/internal/order"
	"github.com/orderstack/fulfill/internal/providers/fiscal"
	"github.com/orderstack/fulfill/internal/storeconfig"
	"go.uber.org/fx"
)

var Module = fx.Module("invoice.service",
	audit.Module,
	order.Module,
	storeconfig.Module,
	fiscal.Module,
	fx.Provide(sequence.NewAllocator),
	fx.Provide(sequence.NewBulkCounter),
	fx.Provide(profile.NewResolver),
	fx.Provide(service.NewService),
)
