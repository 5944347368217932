package config

import "go.uber.org/fx"

// Module provides the environment-backed configuration and the
// hot-reloadable rate card.
var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewRateCardHolder),
)
