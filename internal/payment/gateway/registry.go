package gateway

import (
	"errors"
	"strings"

	"github.com/smallbiznis/petlog/internal/config"
	paymentdomain "github.com/smallbiznis/petlog/internal/payment/domain"
	"go.uber.org/zap"
)

// Registry holds the gateways that were configured at startup.
type Registry struct {
	defaultProvider string
	gateways        map[string]paymentdomain.Gateway
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}

// NewRegistry builds every factory against cfg. Factories without credentials
// are skipped so a deployment only needs to configure the gateways it uses.
func NewRegistry(cfg config.PaymentConfig, log *zap.Logger, factories ...paymentdomain.GatewayFactory) (*Registry, error) {
	if log == nil {
		log = zap.NewNop()
	}
	registry := &Registry{
		defaultProvider: normalize(cfg.Provider),
		gateways:        map[string]paymentdomain.Gateway{},
	}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		provider := normalize(factory.Provider())
		if provider == "" {
			continue
		}
		gw, err := factory.New(cfg, log.Named("gateway."+provider))
		if errors.Is(err, paymentdomain.ErrGatewayNotConfigured) {
			log.Info("payment gateway not configured", zap.String("provider", provider))
			continue
		}
		if err != nil {
			return nil, err
		}
		registry.gateways[provider] = gw
	}
	return registry, nil
}

func (r *Registry) Get(provider string) (paymentdomain.Gateway, error) {
	if r == nil {
		return nil, paymentdomain.ErrProviderNotFound
	}
	gw, ok := r.gateways[normalize(provider)]
	if !ok {
		return nil, paymentdomain.ErrProviderNotFound
	}
	return gw, nil
}

// Default returns the gateway new checkouts are created with.
func (r *Registry) Default() (paymentdomain.Gateway, error) {
	if r == nil {
		return nil, paymentdomain.ErrGatewayNotConfigured
	}
	gw, ok := r.gateways[r.defaultProvider]
	if !ok {
		return nil, paymentdomain.ErrGatewayNotConfigured
	}
	return gw, nil
}

func (r *Registry) Providers() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.gateways))
	for name := range r.gateways {
		out = append(out, name)
	}
	return out
}
