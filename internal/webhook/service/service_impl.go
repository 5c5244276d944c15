package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/faturolabs/faturo/internal/config"
	obsmetrics "github.com/faturolabs/faturo/internal/observability/metrics"
	usagedomain "github.com/faturolabs/faturo/internal/usage/domain"
	webhookdomain "github.com/faturolabs/faturo/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const defaultStoreTimeout = 5 * time.Second

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       webhookdomain.Repository
	Adapter    webhookdomain.Adapter
	UsageSvc   usagedomain.Service
	Cfg        config.Config
	Locker     webhookdomain.EventLocker `optional:"true"`
	ObsMetrics *obsmetrics.Metrics       `optional:"true"`
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	repo         webhookdomain.Repository
	adapter      webhookdomain.Adapter
	usageSvc     usagedomain.Service
	storeTimeout time.Duration
	locker       webhookdomain.EventLocker
	obsMetrics   *obsmetrics.Metrics
}

func NewService(p Params) webhookdomain.Service {
	timeout := p.Cfg.StoreTimeout
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("webhook.service"),
		genID:        p.GenID,
		repo:         p.Repo,
		adapter:      p.Adapter,
		usageSvc:     p.UsageSvc,
		storeTimeout: timeout,
		locker:       p.Locker,
		obsMetrics:   p.ObsMetrics,
	}
}

// HandleIncoming runs one webhook delivery through the ingestion pipeline:
// authenticity check, structural validation, idempotency gate, dispatch, and
// reconciliation. The PENDING intent record is inserted before any effect so
// a crash mid-processing leaves an auditable, resumable trace.
func (s *Service) HandleIncoming(ctx context.Context, payload []byte, headers http.Header) error {
	// Authenticity first: no parsing, no persistence on a bad token.
	if err := s.adapter.Verify(ctx, payload, headers); err != nil {
		return err
	}

	event, err := s.adapter.Parse(ctx, payload)
	if err != nil {
		return err
	}

	// Concurrency lock per provider event: racing deliveries are shed
	// before they touch the store. Losing the lock backend must not drop
	// payment notifications; the uniqueness constraint still dedupes.
	if s.locker != nil {
		token, acquired, err := s.locker.TryLockEvent(ctx, event.Provider, event.ProviderEventID)
		switch {
		case err != nil:
			s.log.Warn("event lock unavailable",
				zap.String("provider_event_id", event.ProviderEventID),
				zap.Error(err),
			)
		case !acquired:
			return webhookdomain.ErrEventInFlight
		case token != "":
			releaseCtx := context.WithoutCancel(ctx)
			defer func() {
				if err := s.locker.ReleaseEvent(releaseCtx, event.Provider, event.ProviderEventID, token); err != nil {
					s.log.Warn("event lock release failed",
						zap.String("provider_event_id", event.ProviderEventID),
						zap.Error(err),
					)
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()

	record := &webhookdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		EventType:       event.ProviderEventType,
		TenantID:        event.TenantID,
		Payload:         datatypes.JSON(event.RawPayload),
		Status:          webhookdomain.EventStatusPending,
		ReceivedAt:      time.Now().UTC(),
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, record)
	if err != nil {
		return err
	}
	if !inserted {
		// The uniqueness constraint is the lock: a rejected insert means an
		// earlier delivery already holds or finished this event.
		stored, err := s.repo.FindEvent(ctx, s.db, event.Provider, event.ProviderEventID)
		if err != nil {
			return err
		}
		if stored == nil {
			return webhookdomain.ErrEventInFlight
		}

		switch stored.Status {
		case webhookdomain.EventStatusProcessed, webhookdomain.EventStatusRejected:
			return webhookdomain.ErrEventAlreadyProcessed
		case webhookdomain.EventStatusPending:
			return webhookdomain.ErrEventInFlight
		case webhookdomain.EventStatusFailed:
			reclaimed, err := s.repo.Reclaim(ctx, s.db, stored.ID)
			if err != nil {
				return err
			}
			if !reclaimed {
				return webhookdomain.ErrEventInFlight
			}
			record = stored
		default:
			return webhookdomain.ErrEventInFlight
		}
	}

	return s.process(ctx, record, event)
}

func (s *Service) process(ctx context.Context, record *webhookdomain.EventRecord, event *webhookdomain.InboundEvent) error {
	now := time.Now().UTC()

	// Unknown event types are accepted and skipped so new provider events
	// never turn into retry storms.
	if event.Type == "" {
		note := "skipped: unrecognized event type " + event.ProviderEventType
		if err := s.repo.MarkStatus(ctx, s.db, record.ID, webhookdomain.EventStatusProcessed, note, now); err != nil {
			return err
		}
		s.recordOutcome(ctx, event, "skipped")
		s.log.Info("webhook event skipped",
			zap.String("provider", event.Provider),
			zap.String("event_type", event.ProviderEventType),
		)
		return nil
	}

	if event.TenantID == 0 {
		if err := s.repo.MarkStatus(ctx, s.db, record.ID, webhookdomain.EventStatusRejected, "missing or invalid tenant reference", now); err != nil {
			return err
		}
		s.recordOutcome(ctx, event, "rejected")
		return webhookdomain.ErrUnknownTenant
	}

	// Reconciliation and the PROCESSED transition commit together; a retry
	// after a partial failure can never re-apply the usage mutation.
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.usageSvc.ApplyEventTx(ctx, tx, usagedomain.Event{
			Type:       event.Type,
			TenantID:   event.TenantID,
			OccurredAt: event.OccurredAt,
		}); err != nil {
			return err
		}
		return s.repo.MarkStatus(ctx, tx, record.ID, webhookdomain.EventStatusProcessed, "", now)
	})
	if err != nil {
		return s.fail(ctx, record, event, err)
	}

	s.recordOutcome(ctx, event, "processed")
	s.log.Info("webhook event processed",
		zap.String("provider", event.Provider),
		zap.String("event_type", event.ProviderEventType),
		zap.String("canonical_type", string(event.Type)),
		zap.String("tenant_id", event.TenantID.String()),
	)
	return nil
}

func (s *Service) fail(ctx context.Context, record *webhookdomain.EventRecord, event *webhookdomain.InboundEvent, cause error) error {
	now := time.Now().UTC()

	// A tenant without an open usage record cannot be fixed by redelivery.
	if errors.Is(cause, usagedomain.ErrNotFound) || errors.Is(cause, usagedomain.ErrInvalidTenant) {
		if err := s.repo.MarkStatus(ctx, s.db, record.ID, webhookdomain.EventStatusRejected, cause.Error(), now); err != nil {
			return err
		}
		s.recordOutcome(ctx, event, "rejected")
		return webhookdomain.ErrUnknownTenant
	}

	// The original context may already be dead; the FAILED marker must
	// still land so the next delivery can reclaim the record.
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout)
	defer cancel()
	if err := s.repo.MarkStatus(markCtx, s.db, record.ID, webhookdomain.EventStatusFailed, cause.Error(), now); err != nil {
		s.log.Error("failed to mark webhook event as failed",
			zap.String("provider_event_id", record.ProviderEventID),
			zap.Error(err),
		)
	}
	s.recordOutcome(ctx, event, "failed")
	return fmt.Errorf("%w: %v", webhookdomain.ErrReconciliationFailed, cause)
}

func (s *Service) recordOutcome(ctx context.Context, event *webhookdomain.InboundEvent, outcome string) {
	if s.obsMetrics == nil {
		return
	}
	s.obsMetrics.RecordWebhookEvent(ctx, event.ProviderEventType, outcome)
}
