package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/wealthdesk/internal/account"
	"github.com/smallbiznis/wealthdesk/internal/audit"
	"github.com/smallbiznis/wealthdesk/internal/beneficiary"
	"github.com/smallbiznis/wealthdesk/internal/billingperiod"
	"github.com/smallbiznis/wealthdesk/internal/cache"
	"github.com/smallbiznis/wealthdesk/internal/client"
	"github.com/smallbiznis/wealthdesk/internal/clock"
	"github.com/smallbiznis/wealthdesk/internal/config"
	"github.com/smallbiznis/wealthdesk/internal/household"
	"github.com/smallbiznis/wealthdesk/internal/importjob"
	"github.com/smallbiznis/wealthdesk/internal/liability"
	"github.com/smallbiznis/wealthdesk/internal/migration"
	"github.com/smallbiznis/wealthdesk/internal/observability"
	"github.com/smallbiznis/wealthdesk/internal/organization"
	"github.com/smallbiznis/wealthdesk/internal/server"
	"github.com/smallbiznis/wealthdesk/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		cache.Module,

		// Record domains
		organization.Module,
		household.Module,
		client.Module,
		account.Module,
		liability.Module,
		beneficiary.Module,
		billingperiod.Module,

		// Import pipeline and undo engine
		audit.Module,
		importjob.Module,

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
