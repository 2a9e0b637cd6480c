package audit

import (
	"github.com/trackchain/trackway/internal/audit/repository"
	"github.com/trackchain/trackway/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
