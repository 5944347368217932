package costs

import (
	"github.com/farmerpower/platform/internal/costs/repository"
	"github.com/farmerpower/platform/internal/costs/service"
	"go.uber.org/fx"
)

var Module = fx.Module("costs.service",
	fx.Provide(repository.ProvideRollup),
	fx.Provide(service.NewService),
)
