package batch

import (
	"github.com/trackchain/trackway/internal/batch/repository"
	"github.com/trackchain/trackway/internal/batch/service"
	"go.uber.org/fx"
)

var Module = fx.Module("batch",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
