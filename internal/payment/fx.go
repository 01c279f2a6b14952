package payment

import (
	"github.com/smallbiznis/petlog/internal/config"
	"github.com/smallbiznis/petlog/internal/payment/gateway"
	"github.com/smallbiznis/petlog/internal/payment/gateway/payos"
	"github.com/smallbiznis/petlog/internal/payment/gateway/stripe"
	"github.com/smallbiznis/petlog/internal/payment/ordercode"
	"github.com/smallbiznis/petlog/internal/payment/repository"
	"github.com/smallbiznis/petlog/internal/payment/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(ordercode.New),
	fx.Provide(func(cfg config.Config, log *zap.Logger) (*gateway.Registry, error) {
		return gateway.NewRegistry(cfg.Payment, log.Named("payment"),
			payos.NewFactory(),
			stripe.NewFactory(),
		)
	}),
	fx.Provide(service.New),
)
