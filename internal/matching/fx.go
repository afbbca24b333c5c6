package matching

import (
	invoicerepo "github.com/ledgerline/reconcile/internal/invoice/repository"
	"github.com/ledgerline/reconcile/internal/matching/service"
	"go.uber.org/fx"
)

var Module = fx.Module("matching.service",
	fx.Provide(invoicerepo.Provide),
	fx.Provide(service.NewService),
)
