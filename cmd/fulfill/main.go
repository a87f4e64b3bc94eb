package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/orderstack/fulfill/internal/clock"
	"github.com/orderstack/fulfill/internal/config"
	"github.com/orderstack/fulfill/internal/guard"
	"github.com/orderstack/fulfill/internal/invoice"
	"github.com/orderstack/fulfill/internal/logger"
	"github.com/orderstack/fulfill/internal/migration"
	"github.com/orderstack/fulfill/internal/server"
	"github.com/orderstack/fulfill/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		guard.Module,
		invoice.Module,
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
