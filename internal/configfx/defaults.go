package configfx

import (
	"time"

	"github.com/spf13/viper"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.timeout.read", 10*time.Second)
	v.SetDefault("server.timeout.write", 10*time.Second)
	v.SetDefault("server.log.requests", true)

	v.SetDefault("db.dsn", "./db/restorer.db?_busy_timeout=5000")
	v.SetDefault("db.migrations", "file://migrations/")

	v.SetDefault("docker.host", "unix:///var/run/docker.sock")
	v.SetDefault("docker.version", "1.25")

	v.SetDefault("plan.schedule", "@every 5s")

	v.SetDefault("cluster.node_label", "restorer.node")
	v.SetDefault("cluster.sync_schedule", "@every 30s")

	v.SetDefault("restore.scratch_directory", "/tmp/restorer")
	v.SetDefault("restore.launch_timeout", 5*time.Minute)
	v.SetDefault("restore.timeout", 12*time.Hour)

	v.SetDefault("offer.cpus", 1.0)
	v.SetDefault("offer.mem_mb", 1024.0)
	v.SetDefault("offer.disk_mb", 0.0)
}
