package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/ledgerline/reconcile/internal/allocation"
	"github.com/ledgerline/reconcile/internal/audit"
	"github.com/ledgerline/reconcile/internal/clock"
	"github.com/ledgerline/reconcile/internal/config"
	"github.com/ledgerline/reconcile/internal/decision"
	"github.com/ledgerline/reconcile/internal/decisionlog"
	"github.com/ledgerline/reconcile/internal/ledger"
	"github.com/ledgerline/reconcile/internal/logger"
	"github.com/ledgerline/reconcile/internal/matching"
	"github.com/ledgerline/reconcile/internal/migration"
	"github.com/ledgerline/reconcile/internal/observability"
	"github.com/ledgerline/reconcile/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Reconciliation domains
		audit.Module,
		ledger.Module,
		decisionlog.Module,
		matching.Module,
		decision.Module,
		allocation.Module,
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
