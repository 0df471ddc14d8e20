package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/millroll/internal/clock"
	"github.com/smallbiznis/millroll/internal/config"
	"github.com/smallbiznis/millroll/internal/erp"
	"github.com/smallbiznis/millroll/internal/floormetrics"
	"github.com/smallbiznis/millroll/internal/inputroll"
	"github.com/smallbiznis/millroll/internal/job"
	"github.com/smallbiznis/millroll/internal/machine"
	"github.com/smallbiznis/millroll/internal/migration"
	"github.com/smallbiznis/millroll/internal/observability"
	"github.com/smallbiznis/millroll/internal/outputroll"
	"github.com/smallbiznis/millroll/internal/posting"
	"github.com/smallbiznis/millroll/internal/provenance"
	"github.com/smallbiznis/millroll/internal/scheduler"
	"github.com/smallbiznis/millroll/internal/seed"
	"github.com/smallbiznis/millroll/internal/sequence"
	"github.com/smallbiznis/millroll/internal/server"
	"github.com/smallbiznis/millroll/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		seed.Module,
		clock.Module,
		erp.Module,

		// Production floor
		posting.Module,
		machine.Module,
		inputroll.Module,
		job.Module,
		provenance.Module,
		sequence.Module,
		outputroll.Module,

		scheduler.Module,
		floormetrics.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
