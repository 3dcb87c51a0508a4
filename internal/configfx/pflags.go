package configfx

import (
	"os"

	"github.com/spf13/pflag"
)

func PFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)

	// Config file flag
	fs.StringP("config", "c", "", "Config file")

	fs.String("log.level", "", "Log level (debug, info, warn, error)")
	fs.String("server.address", "", "Address of the control API")
	fs.String("db.dsn", "", "Sqlite3 database DSN")
	fs.String("restore.image", "", "Docker image running restore tasks")

	return fs
}

func commandLine() []string {
	if len(os.Args) < 2 {
		return nil
	}
	return os.Args[1:]
}
