package payment

import (
	"github.com/assurline/assurline/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(service.NewCheckoutService),
)
