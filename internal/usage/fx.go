package usage

import (
	"github.com/faturolabs/faturo/internal/usage/repository"
	"github.com/faturolabs/faturo/internal/usage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("usage.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
