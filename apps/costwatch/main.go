package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/farmerpower/platform/internal/clock"
	"github.com/farmerpower/platform/internal/cloudmetrics"
	"github.com/farmerpower/platform/internal/config"
	"github.com/farmerpower/platform/internal/costs"
	"github.com/farmerpower/platform/internal/costwatch"
	"github.com/farmerpower/platform/internal/migration"
	"github.com/farmerpower/platform/internal/observability"
	"github.com/farmerpower/platform/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Cost accounting and the worker that keeps it fresh
		costs.Module,
		costwatch.Module,
		cloudmetrics.Module,
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
