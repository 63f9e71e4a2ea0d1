package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/zenbill/zenbill/internal/cache"
	"github.com/zenbill/zenbill/internal/clock"
	"github.com/zenbill/zenbill/internal/config"
	"github.com/zenbill/zenbill/internal/customer"
	"github.com/zenbill/zenbill/internal/invoice"
	"github.com/zenbill/zenbill/internal/loyalty"
	"github.com/zenbill/zenbill/internal/migration"
	"github.com/zenbill/zenbill/internal/observability"
	"github.com/zenbill/zenbill/internal/product"
	"github.com/zenbill/zenbill/internal/server"
	"github.com/zenbill/zenbill/pkg/db"
	"github.com/zenbill/zenbill/pkg/log"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		fx.Provide(config.NewLoyaltyConfigHolder),
		log.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		cache.Module,

		// Functional domains
		customer.Module,
		product.Module,
		loyalty.Module,
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
