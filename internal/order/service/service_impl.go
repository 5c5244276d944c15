package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	obsmetrics "github.com/faturolabs/faturo/internal/observability/metrics"
	orderdomain "github.com/faturolabs/faturo/internal/order/domain"
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
	Repo       orderdomain.Repository
	UsageSvc   usagedomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       orderdomain.Repository
	usageSvc   usagedomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) orderdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("order.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		usageSvc:   p.UsageSvc,
		obsMetrics: p.ObsMetrics,
	}
}

// Create inserts the order and folds its units into the tenant's open usage
// record in one transaction. Standing is re-checked under the usage row lock
// so two concurrent orders cannot both slip under the quota.
func (s *Service) Create(ctx context.Context, tenantID snowflake.ID, req orderdomain.CreateOrderRequest) (*orderdomain.Order, error) {
	if tenantID == 0 {
		return nil, usagedomain.ErrInvalidTenant
	}
	if req.Units <= 0 || req.Description == "" {
		return nil, orderdomain.ErrInvalidOrder
	}

	now := time.Now().UTC()
	order := &orderdomain.Order{
		ID:          s.genID.Generate(),
		TenantID:    tenantID,
		Description: req.Description,
		Units:       req.Units,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		rec, err := s.usageSvc.ApplyEventTx(ctx, tx, usagedomain.Event{
			Type:       usagedomain.EventUsageIncrement,
			TenantID:   tenantID,
			Delta:      req.Units,
			OccurredAt: now,
		})
		if err != nil {
			return err
		}

		// Standing is judged on the pre-order state under the row lock; the
		// rollback undoes the increment when the tenant was not in standing.
		// An order is allowed to be the one that crosses the quota.
		if rec.Status == usagedomain.UsageStatusSuspended {
			return orderdomain.ErrTenantSuspended
		}
		if rec.ConsumedUnits-req.Units > rec.LimitUnits {
			return orderdomain.ErrQuotaExceeded
		}

		return s.repo.Insert(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}

	if s.obsMetrics != nil {
		s.obsMetrics.RecordOrderCreated(ctx, tenantID.String())
	}
	s.log.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.String("tenant_id", tenantID.String()),
		zap.Int64("units", req.Units),
	)
	return order, nil
}

func (s *Service) Get(ctx context.Context, tenantID, orderID snowflake.ID) (*orderdomain.Order, error) {
	if tenantID == 0 {
		return nil, usagedomain.ErrInvalidTenant
	}
	order, err := s.repo.FindByID(ctx, s.db, tenantID, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, orderdomain.ErrNotFound
	}
	return order, nil
}

func (s *Service) List(ctx context.Context, tenantID snowflake.ID, limit int) ([]orderdomain.Order, error) {
	if tenantID == 0 {
		return nil, usagedomain.ErrInvalidTenant
	}
	return s.repo.List(ctx, s.db, tenantID, limit)
}
