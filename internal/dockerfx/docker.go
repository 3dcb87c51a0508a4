package dockerfx

import (
	"context"
	"time"

	docker "github.com/docker/docker/client"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.uber.org/fx"
)

const (
	ConfigDockerHost    = "docker.host"
	ConfigDockerVersion = "docker.version"

	pingTimeout = 10 * time.Second
)

type DockerConnectionConfig struct {
	Host    string
	Version string
}

func DockerConnectionConfigProvider(v *viper.Viper) (*DockerConnectionConfig, error) {
	config := &DockerConnectionConfig{
		Host:    v.GetString(ConfigDockerHost),
		Version: v.GetString(ConfigDockerVersion),
	}

	if config.Host == "" {
		return nil, errors.New("docker host is not configured")
	}

	return config, nil
}

// DockerClient connects to the daemon that runs both node daemons and
// restore containers.
func DockerClient(config *DockerConnectionConfig, baseLogger *logrus.Logger) (*docker.Client, error) {
	logger := baseLogger.WithFields(logrus.Fields{"host": config.Host, "version": config.Version})
	logger.Debug("Connecting to docker")

	client, err := docker.NewClient(config.Host, config.Version, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to create docker client")
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	ping, err := client.Ping(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "Unable to ping docker")
	}

	logger.WithField("api_version", ping.APIVersion).Info("Connected to docker")

	return client, nil
}

func CloseDockerClient(lc fx.Lifecycle, client *docker.Client) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
}
