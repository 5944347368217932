// Package reference reads the seeded lookup tables. The loader validates
// region country codes against it instead of trusting snapshot input.
package reference

import "go.uber.org/fx"

var Module = fx.Module("reference.repository",
	fx.Provide(NewRepository),
)
