package decisionlog

import (
	"github.com/ledgerline/reconcile/internal/decisionlog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("decisionlog.service",
	fx.Provide(service.NewService),
)
