// Package scheduler runs the usage period rollover in the background.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/faturolabs/faturo/internal/clock"
	usagedomain "github.com/faturolabs/faturo/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler misconfigured")

type Params struct {
	fx.In

	Log      *zap.Logger
	UsageSvc usagedomain.Service
	Clock    clock.Clock
	Config   Config `optional:"true"`
}

type Scheduler struct {
	log      *zap.Logger
	cfg      Config
	clock    clock.Clock
	usageSvc usagedomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.UsageSvc == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:      p.Log.Named("scheduler"),
		cfg:      p.Config.withDefaults(),
		clock:    p.Clock,
		usageSvc: p.UsageSvc,
	}, nil
}

// RunForever ticks until the context is canceled. Rollover is idempotent, so
// overlapping instances across replicas are safe, just wasteful.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

func (s *Scheduler) RunOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()

	start := s.clock.Now()
	rolled, err := s.usageSvc.Rollover(ctx)
	if err != nil {
		s.log.Error("usage rollover failed",
			zap.Int("rolled", rolled),
			zap.Error(err),
		)
		return
	}
	if rolled > 0 {
		s.log.Info("usage rollover complete",
			zap.Int("rolled", rolled),
			zap.Duration("took", s.clock.Now().Sub(start)),
		)
	}
}
