package webhook

import (
	"github.com/faturolabs/faturo/internal/config"
	"github.com/faturolabs/faturo/internal/ratelimit"
	"github.com/faturolabs/faturo/internal/webhook/asaas"
	"github.com/faturolabs/faturo/internal/webhook/domain"
	"github.com/faturolabs/faturo/internal/webhook/repository"
	"github.com/faturolabs/faturo/internal/webhook/service"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(cfg config.Config) domain.Adapter {
		return asaas.NewAdapter(cfg.AsaasWebhookToken)
	}),
	// A nil limiter (rate limiting disabled) grants every lock.
	fx.Provide(func(limiter *ratelimit.IngestLimiter) domain.EventLocker {
		return limiter
	}),
	fx.Provide(service.NewService),
)
