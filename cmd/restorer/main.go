package main

import (
	"time"

	"go.uber.org/fx"

	"github.com/yurykabanov/restorer/internal/configfx"
	"github.com/yurykabanov/restorer/internal/dockerfx"
	"github.com/yurykabanov/restorer/internal/domainfx"
	"github.com/yurykabanov/restorer/internal/httpfx"
	"github.com/yurykabanov/restorer/internal/loggerfx"
	"github.com/yurykabanov/restorer/internal/sqlfx"
)

func main() {
	logger := loggerfx.Logger()

	app := fx.New(
		fx.StartTimeout(30*time.Second),
		fx.StopTimeout(15*time.Second),

		fx.Logger(logger),

		loggerfx.Module,
		configfx.Module,
		sqlfx.Module,
		dockerfx.Module,
		domainfx.Module,
		httpfx.Module,
	)

	app.Run()
}
