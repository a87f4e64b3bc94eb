package fiscal

import (
	"go.uber.org/fx"
)

var Module = fx.Module("providers.fiscal",
	fx.Provide(NewClient),
)
