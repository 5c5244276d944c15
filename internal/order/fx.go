package order

import (
	"github.com/faturolabs/faturo/internal/order/repository"
	"github.com/faturolabs/faturo/internal/order/service"
	"go.uber.org/fx"
)

var Module = fx.Module("order.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
