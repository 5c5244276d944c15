package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/faturolabs/faturo/internal/config"
	"github.com/faturolabs/faturo/internal/migration"
	"github.com/faturolabs/faturo/internal/observability"
	"github.com/faturolabs/faturo/internal/order"
	"github.com/faturolabs/faturo/internal/ratelimit"
	"github.com/faturolabs/faturo/internal/scheduler"
	"github.com/faturolabs/faturo/internal/server"
	"github.com/faturolabs/faturo/internal/usage"
	"github.com/faturolabs/faturo/internal/webhook"
	"github.com/faturolabs/faturo/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,

		// Domains
		usage.Module,
		webhook.Module,
		order.Module,
		ratelimit.Module,
		scheduler.Module,
		migration.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
