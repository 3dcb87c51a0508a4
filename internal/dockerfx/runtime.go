package dockerfx

import (
	"context"

	docker "github.com/docker/docker/client"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/yurykabanov/restorer/pkg/mount"
	"github.com/yurykabanov/restorer/pkg/runtime"
)

const (
	ConfigRestoreImage            = "restore.image"
	ConfigRestoreCommand          = "restore.command"
	ConfigRestoreLaunchTimeout    = "restore.launch_timeout"
	ConfigRestoreTimeout          = "restore.timeout"
	ConfigRestoreScratchDirectory = "restore.scratch_directory"

	ConfigClusterNodes     = "cluster.nodes"
	ConfigClusterNodeLabel = "cluster.node_label"
)

type MountManagerConfig struct {
	BaseDirectory string
}

func MountManagerConfigProvider(v *viper.Viper) *MountManagerConfig {
	return &MountManagerConfig{
		BaseDirectory: v.GetString(ConfigRestoreScratchDirectory),
	}
}

func MountManager(config *MountManagerConfig) runtime.MountManager {
	return mount.New(config.BaseDirectory)
}

func LauncherConfigProvider(v *viper.Viper) runtime.LauncherConfig {
	return runtime.LauncherConfig{
		Image:         v.GetString(ConfigRestoreImage),
		Command:       v.GetStringSlice(ConfigRestoreCommand),
		LaunchTimeout: v.GetDuration(ConfigRestoreLaunchTimeout),
		Timeout:       v.GetDuration(ConfigRestoreTimeout),
	}
}

func Launcher(
	logger *logrus.Logger,
	config runtime.LauncherConfig,
	repo runtime.TaskRepository,
	client *docker.Client,
	mountManager runtime.MountManager,
) *runtime.Launcher {
	return runtime.NewLauncher(logger, config, repo, client, mountManager)
}

// RecoverLauncher picks up restore containers left by a previous run before
// any new claim reaches the launcher.
func RecoverLauncher(lc fx.Lifecycle, launcher *runtime.Launcher) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return launcher.Recover(ctx)
		},
		OnStop: func(ctx context.Context) error {
			launcher.Stop()
			return nil
		},
	})
}

func DaemonSyncConfigProvider(v *viper.Viper) runtime.DaemonSyncConfig {
	return runtime.DaemonSyncConfig{
		NodeLabel: v.GetString(ConfigClusterNodeLabel),
		Nodes:     v.GetStringSlice(ConfigClusterNodes),
	}
}

func DaemonSync(
	logger *logrus.Logger,
	config runtime.DaemonSyncConfig,
	repo runtime.DaemonRepository,
	client *docker.Client,
) *runtime.DaemonSync {
	return runtime.NewDaemonSync(logger, config, repo, client)
}
