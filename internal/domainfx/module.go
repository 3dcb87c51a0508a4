package domainfx

import (
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(NewCron),
	fx.Provide(OfferResources),
	fx.Provide(OfferRequirementProvider),
	fx.Provide(PlanExecutor),
	fx.Provide(RestoreManager),
	fx.Invoke(RunRestoreManager),
)
