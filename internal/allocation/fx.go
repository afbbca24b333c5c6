package allocation

import (
	"github.com/ledgerline/reconcile/internal/allocation/service"
	feesplitrepo "github.com/ledgerline/reconcile/internal/feesplit/repository"
	paymentrepo "github.com/ledgerline/reconcile/internal/payment/repository"
	transactionrepo "github.com/ledgerline/reconcile/internal/transaction/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("allocation.service",
	fx.Provide(
		transactionrepo.Provide,
		paymentrepo.Provide,
		feesplitrepo.Provide,
		service.NewService,
	),
)
