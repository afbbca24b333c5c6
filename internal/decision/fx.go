package decision

import (
	"github.com/ledgerline/reconcile/internal/decision/service"
	"go.uber.org/fx"
)

var Module = fx.Module("decision.service",
	fx.Provide(service.NewService),
)
