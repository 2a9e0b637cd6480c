package shard

import (
	"github.com/trackchain/trackway/internal/shard/repository"
	"github.com/trackchain/trackway/internal/shard/service"
	"go.uber.org/fx"
)

var Module = fx.Module("shard.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
