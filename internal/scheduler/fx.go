package scheduler

import (
	"context"

	"github.com/faturolabs/faturo/internal/clock"
	"go.uber.org/fx"
)

var Module = fx.Module("scheduler",
	fx.Provide(clock.New),
	fx.Provide(New),
	fx.Invoke(Run),
)

func Run(lc fx.Lifecycle, sched *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go sched.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
