package migration

import (
	"github.com/bwmarrin/snowflake"
	"github.com/farmerpower/platform/internal/config"
	"github.com/farmerpower/platform/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, genID *snowflake.Node) error {
		if err := Apply(conn, cfg.DBType); err != nil {
			return err
		}
		return seed.EnsureReferenceData(conn, genID)
	}),
)
