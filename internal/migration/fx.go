package migration

import (
	auditdomain "github.com/trackchain/trackway/internal/audit/domain"
	batchdomain "github.com/trackchain/trackway/internal/batch/domain"
	ledgerdomain "github.com/trackchain/trackway/internal/ledger/domain"
	lifecycledomain "github.com/trackchain/trackway/internal/lifecycle/domain"
	participantdomain "github.com/trackchain/trackway/internal/participant/domain"
	sharddomain "github.com/trackchain/trackway/internal/shard/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB) error {
		if conn.Dialector.Name() == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}

		// The versioned SQL targets postgres; other dialects get the
		// schema straight from the models.
		return conn.AutoMigrate(
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
		)
	}),
)
