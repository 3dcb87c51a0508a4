package domainfx

import (
	"context"

	"github.com/pkg/errors"
	"github.com/robfig/cron"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/yurykabanov/restorer/pkg/domain"
	"github.com/yurykabanov/restorer/pkg/offer"
	"github.com/yurykabanov/restorer/pkg/plan"
	"github.com/yurykabanov/restorer/pkg/runtime"
)

const (
	ConfigPlanSchedule        = "plan.schedule"
	ConfigClusterSyncSchedule = "cluster.sync_schedule"
	ConfigOffer               = "offer"
)

func NewCron() *cron.Cron {
	return cron.New()
}

func OfferResources(v *viper.Viper) (offer.Resources, error) {
	var resources offer.Resources

	err := v.UnmarshalKey(ConfigOffer, &resources)
	if err != nil {
		return resources, errors.Wrap(err, "Unable to unmarshal offer resources")
	}

	return resources, nil
}

func OfferRequirementProvider(resources offer.Resources) domain.OfferRequirementProvider {
	return offer.NewProvider(resources)
}

func PlanExecutor(
	logger *logrus.Logger,
	launcher *runtime.Launcher,
	c *cron.Cron,
	v *viper.Viper,
) (*plan.Executor, domain.PlanExecutor) {
	executor := plan.NewExecutor(logger, launcher, c, v.GetString(ConfigPlanSchedule))

	return executor, executor
}

func RestoreManager(
	logger *logrus.Logger,
	store domain.TaskStore,
	provider domain.OfferRequirementProvider,
	executor domain.PlanExecutor,
	repo domain.RestoreRepository,
) *domain.RestoreManager {
	return domain.NewRestoreManager(logger, store, provider, executor, repo)
}

// RunRestoreManager brings the cluster view up to date, resumes a restore
// interrupted by a restart and then starts ticking.
func RunRestoreManager(
	lc fx.Lifecycle,
	logger *logrus.Logger,
	v *viper.Viper,
	c *cron.Cron,
	sync *runtime.DaemonSync,
	manager *domain.RestoreManager,
	executor *plan.Executor,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := sync.Sync(ctx); err != nil {
				logger.WithError(err).Warn("Unable to synchronize daemons")
			}

			if err := manager.Resume(ctx); err != nil {
				return err
			}

			schedule := v.GetString(ConfigClusterSyncSchedule)
			err := c.AddFunc(schedule, func() {
				if err := sync.Sync(context.Background()); err != nil {
					logger.WithError(err).Warn("Unable to synchronize daemons")
				}
			})
			if err != nil {
				return errors.Wrapf(err, "Invalid daemon sync schedule '%s'", schedule)
			}

			return executor.Run()
		},
		OnStop: func(ctx context.Context) error {
			executor.Stop()
			return nil
		},
	})
}
