package sharding

import (
	"github.com/trackchain/trackway/internal/sharding/service"
	"go.uber.org/fx"
)

var Module = fx.Module("sharding.service",
	fx.Provide(service.NewService),
)
