package dockerfx

import (
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(DockerConnectionConfigProvider),
	fx.Provide(DockerClient),
	fx.Invoke(CloseDockerClient),

	fx.Provide(MountManagerConfigProvider),
	fx.Provide(MountManager),
	fx.Provide(LauncherConfigProvider),
	fx.Provide(Launcher),
	fx.Provide(DaemonSyncConfigProvider),
	fx.Provide(DaemonSync),
	fx.Invoke(RecoverLauncher),
)
