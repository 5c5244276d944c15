package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/faturolabs/faturo/internal/config"
	obsmetrics "github.com/faturolabs/faturo/internal/observability/metrics"
	usagedomain "github.com/faturolabs/faturo/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       usagedomain.Repository
	Cfg        config.Config
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       usagedomain.Repository
	periodDays int
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) usagedomain.Service {
	days := p.Cfg.BillingPeriodDays
	if days <= 0 {
		days = usagedomain.DefaultPeriodDays
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("usage.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		periodDays: days,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Current(ctx context.Context, tenantID snowflake.ID) (*usagedomain.UsageRecord, error) {
	if tenantID == 0 {
		return nil, usagedomain.ErrInvalidTenant
	}
	rec, err := s.repo.FindOpen(ctx, s.db, tenantID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, usagedomain.ErrNotFound
	}
	return rec, nil
}

func (s *Service) Increment(ctx context.Context, tenantID snowflake.ID, delta int64) (*usagedomain.UsageRecord, error) {
	if tenantID == 0 {
		return nil, usagedomain.ErrInvalidTenant
	}
	if delta < 0 {
		return nil, usagedomain.ErrInvalidDelta
	}

	var updated *usagedomain.UsageRecord
	err := s.db.Transaction(func(tx *gorm.DB) error {
		rec, err := s.ApplyEventTx(ctx, tx, usagedomain.Event{
			Type:       usagedomain.EventUsageIncrement,
			TenantID:   tenantID,
			Delta:      delta,
			OccurredAt: time.Now().UTC(),
		})
		if err != nil {
			return err
		}
		updated = rec
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordUsageIncrement(ctx, tenantID.String(), delta)
	}
	return updated, nil
}

// ApplyEventTx serializes concurrent mutations per tenant through the row
// lock taken by FindOpenForUpdate; the caller's transaction carries the
// single write.
func (s *Service) ApplyEventTx(ctx context.Context, tx *gorm.DB, ev usagedomain.Event) (*usagedomain.UsageRecord, error) {
	if ev.TenantID == 0 {
		return nil, usagedomain.ErrInvalidTenant
	}
	if ev.PeriodDays == 0 {
		ev.PeriodDays = s.periodDays
	}

	rec, err := s.repo.FindOpenForUpdate(ctx, tx, ev.TenantID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, usagedomain.ErrNotFound
	}

	now := time.Now().UTC()
	next, err := usagedomain.Apply(*rec, ev, now)
	if err != nil {
		return nil, err
	}

	next.UpdatedAt = now
	if err := s.repo.Update(ctx, tx, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

func (s *Service) Rollover(ctx context.Context) (int, error) {
	expired, err := s.repo.ListExpired(ctx, s.db, 100)
	if err != nil {
		return 0, err
	}

	rolled := 0
	for _, rec := range expired {
		err := s.db.Transaction(func(tx *gorm.DB) error {
			archived, err := s.repo.Archive(ctx, tx, rec.ID)
			if err != nil {
				return err
			}
			if !archived {
				// Another worker got there first.
				return nil
			}

			now := time.Now().UTC()
			next := usagedomain.UsageRecord{
				ID:            s.genID.Generate(),
				TenantID:      rec.TenantID,
				PeriodStart:   rec.PeriodEnd,
				PeriodEnd:     rec.PeriodEnd.Add(time.Duration(s.periodDays) * 24 * time.Hour),
				ConsumedUnits: 0,
				LimitUnits:    rec.LimitUnits,
				Status:        nextPeriodStatus(rec.Status),
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := s.repo.Insert(ctx, tx, &next); err != nil {
				return err
			}
			rolled++
			return nil
		})
		if err != nil {
			return rolled, err
		}
	}

	if rolled > 0 {
		s.log.Info("usage periods rolled over", zap.Int("count", rolled))
	}
	return rolled, nil
}

// Suspension survives rollover; an over-limit tenant starts the new period
// clean.
func nextPeriodStatus(status usagedomain.UsageStatus) usagedomain.UsageStatus {
	if status == usagedomain.UsageStatusSuspended {
		return usagedomain.UsageStatusSuspended
	}
	return usagedomain.UsageStatusActive
}
