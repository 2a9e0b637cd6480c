// Package testutil wires the in-memory stack the service tests run on.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/trackchain/trackway/internal/audit/domain"
	batchdomain "github.com/trackchain/trackway/internal/batch/domain"
	"github.com/trackchain/trackway/internal/clock"
	ledgerdomain "github.com/trackchain/trackway/internal/ledger/domain"
	ledgerservice "github.com/trackchain/trackway/internal/ledger/service"
	lifecycledomain "github.com/trackchain/trackway/internal/lifecycle/domain"
	participantdomain "github.com/trackchain/trackway/internal/participant/domain"
	sharddomain "github.com/trackchain/trackway/internal/shard/domain"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NewDB opens a per-test in-memory sqlite database with the full schema.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		TranslateError: true,
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&ledgerdomain.Commit{},
		&sharddomain.Shard{},
		&sharddomain.Metrics{},
		&participantdomain.Participant{},
		&lifecycledomain.Product{},
		&lifecycledomain.OwnershipHistory{},
		&lifecycledomain.LocationHistory{},
		&lifecycledomain.QualityCheck{},
		&lifecycledomain.TemperatureLog{},
		&batchdomain.Batch{},
		&auditdomain.AuditLog{},
	))
	return db
}

// NewNode returns a deterministic snowflake node for test IDs.
func NewNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return node
}

// NewClock returns a fake clock pinned to a fixed instant.
func NewClock() *clock.FakeClock {
	return clock.NewFakeClock(time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC))
}

// StartLedger builds and starts a single-writer ledger on the database,
// stopping it when the test finishes.
func StartLedger(t *testing.T, db *gorm.DB, node *snowflake.Node, clk clock.Clock) *ledgerservice.Service {
	t.Helper()

	ledger := ledgerservice.NewService(ledgerservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
	})
	require.NoError(t, ledger.Start(context.Background()))
	t.Cleanup(func() {
		_ = ledger.Stop(context.Background())
	})
	return ledger
}
