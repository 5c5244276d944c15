package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/faturolabs/faturo/internal/webhook/domain"
	pkgdb "github.com/faturolabs/faturo/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO webhook_events (
			id, provider, provider_event_id, event_type, tenant_id,
			payload, status, note, received_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.Provider,
		event.ProviderEventID,
		event.EventType,
		event.TenantID,
		event.Payload,
		event.Status,
		event.Note,
		event.ReceivedAt,
		event.ProcessedAt,
	)
	if res.Error != nil {
		// The unique index on (provider, provider_event_id) is the
		// idempotency lock; duplicates work the same on every dialect.
		if pkgdb.IsDuplicateKeyErr(res.Error) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindEvent(ctx context.Context, db *gorm.DB, provider, providerEventID string) (*domain.EventRecord, error) {
	var item domain.EventRecord
	err := db.WithContext(ctx).Raw(
		`SELECT id, provider, provider_event_id, event_type, tenant_id,
			payload, status, note, received_at, processed_at
		 FROM webhook_events
		 WHERE provider = ? AND provider_event_id = ?
		 LIMIT 1`,
		provider,
		providerEventID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) MarkStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.EventStatus, note string, processedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_events
		 SET status = ?, note = ?, processed_at = ?
		 WHERE id = ?`,
		status,
		note,
		processedAt,
		id,
	).Error
}

func (r *repo) Reclaim(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE webhook_events
		 SET status = ?, note = '', processed_at = NULL
		 WHERE id = ? AND status = ?`,
		domain.EventStatusPending,
		id,
		domain.EventStatusFailed,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
