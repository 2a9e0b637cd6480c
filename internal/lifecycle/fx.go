package lifecycle

import (
	"github.com/trackchain/trackway/internal/lifecycle/repository"
	"github.com/trackchain/trackway/internal/lifecycle/service"
	"go.uber.org/fx"
)

var Module = fx.Module("lifecycle",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
