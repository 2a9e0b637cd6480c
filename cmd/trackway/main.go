package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/trackchain/trackway/internal/audit"
	"github.com/trackchain/trackway/internal/authorization"
	"github.com/trackchain/trackway/internal/batch"
	"github.com/trackchain/trackway/internal/clock"
	"github.com/trackchain/trackway/internal/config"
	"github.com/trackchain/trackway/internal/ledger"
	"github.com/trackchain/trackway/internal/lifecycle"
	"github.com/trackchain/trackway/internal/migration"
	"github.com/trackchain/trackway/internal/observability"
	"github.com/trackchain/trackway/internal/operations"
	"github.com/trackchain/trackway/internal/participant"
	"github.com/trackchain/trackway/internal/scheduler"
	"github.com/trackchain/trackway/internal/server"
	"github.com/trackchain/trackway/internal/shard"
	"github.com/trackchain/trackway/internal/sharding"
	"github.com/trackchain/trackway/pkg/db"
	"github.com/trackchain/trackway/pkg/log"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		log.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Domain modules
		authorization.Module,
		audit.Module,
		ledger.Module,
		shard.Module,
		sharding.Module,
		participant.Module,
		lifecycle.Module,
		batch.Module,
		operations.Module,

		// Background work and transport
		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
