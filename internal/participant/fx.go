package participant

import (
	"github.com/trackchain/trackway/internal/participant/repository"
	"github.com/trackchain/trackway/internal/participant/service"
	"go.uber.org/fx"
)

var Module = fx.Module("participant.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
