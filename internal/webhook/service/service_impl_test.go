package service_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/faturolabs/faturo/internal/config"
	usagedomain "github.com/faturolabs/faturo/internal/usage/domain"
	usagerepo "github.com/faturolabs/faturo/internal/usage/repository"
	usageservice "github.com/faturolabs/faturo/internal/usage/service"
	"github.com/faturolabs/faturo/internal/webhook/asaas"
	webhookdomain "github.com/faturolabs/faturo/internal/webhook/domain"
	webhookrepo "github.com/faturolabs/faturo/internal/webhook/repository"
	webhookservice "github.com/faturolabs/faturo/internal/webhook/service"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testToken = "tok_webhook_test"

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE webhook_events (
			id BIGINT PRIMARY KEY,
			provider TEXT NOT NULL,
			provider_event_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			tenant_id BIGINT,
			payload TEXT NOT NULL,
			status TEXT NOT NULL,
			note TEXT,
			received_at TIMESTAMP NOT NULL,
			processed_at TIMESTAMP
		)`,
		`CREATE UNIQUE INDEX ux_webhook_events_provider_event ON webhook_events(provider, provider_event_id)`,
		`CREATE TABLE tenant_usage (
			id BIGINT PRIMARY KEY,
			tenant_id BIGINT NOT NULL,
			period_start TIMESTAMP NOT NULL,
			period_end TIMESTAMP NOT NULL,
			consumed_units BIGINT NOT NULL DEFAULT 0,
			limit_units BIGINT NOT NULL,
			status TEXT NOT NULL,
			archived_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func newWebhookService(t *testing.T, db *gorm.DB, node *snowflake.Node) (webhookdomain.Service, usagedomain.Service) {
	t.Helper()
	return newLockedWebhookService(t, db, node, nil)
}

func newLockedWebhookService(t *testing.T, db *gorm.DB, node *snowflake.Node, locker webhookdomain.EventLocker) (webhookdomain.Service, usagedomain.Service) {
	t.Helper()

	cfg := config.Config{
		BillingPeriodDays: 30,
		StoreTimeout:      5 * time.Second,
		AsaasWebhookToken: testToken,
	}
	usageSvc := usageservice.NewService(usageservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  usagerepo.Provide(),
		Cfg:   cfg,
	})
	webhookSvc := webhookservice.NewService(webhookservice.Params{
		DB:       db,
		Log:      zap.NewNop(),
		GenID:    node,
		Repo:     webhookrepo.Provide(),
		Adapter:  asaas.NewAdapter(testToken),
		UsageSvc: usageSvc,
		Cfg:      cfg,
		Locker:   locker,
	})
	return webhookSvc, usageSvc
}

// memoryEventLocker mirrors the redis SetNX lock for tests: one holder per
// key, released only with the matching token.
type memoryEventLocker struct {
	mu   sync.Mutex
	held map[string]string
	seq  int
}

func newMemoryEventLocker() *memoryEventLocker {
	return &memoryEventLocker{held: map[string]string{}}
}

func (l *memoryEventLocker) TryLockEvent(_ context.Context, provider, providerEventID string) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := provider + "/" + providerEventID
	if _, taken := l.held[key]; taken {
		return "", false, nil
	}
	l.seq++
	token := fmt.Sprintf("lock-%d", l.seq)
	l.held[key] = token
	return token, true, nil
}

func (l *memoryEventLocker) ReleaseEvent(_ context.Context, provider, providerEventID, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := provider + "/" + providerEventID
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

func seedUsage(t *testing.T, db *gorm.DB, node *snowflake.Node, tenantID snowflake.ID, consumed, limit int64, status usagedomain.UsageStatus, periodEnd time.Time) {
	t.Helper()

	now := time.Now().UTC()
	rec := usagedomain.UsageRecord{
		ID:            node.Generate(),
		TenantID:      tenantID,
		PeriodStart:   periodEnd.Add(-30 * 24 * time.Hour),
		PeriodEnd:     periodEnd,
		ConsumedUnits: consumed,
		LimitUnits:    limit,
		Status:        status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := usagerepo.Provide().Insert(context.Background(), db, &rec); err != nil {
		t.Fatalf("seed usage: %v", err)
	}
}

func paymentPayload(eventID, event string, tenantID snowflake.ID) []byte {
	return []byte(fmt.Sprintf(
		`{"id":"%s","event":"%s","dateCreated":"2026-08-28 09:00:00","payment":{"id":"pay_1","value":49.9,"externalReference":"%s"}}`,
		eventID, event, tenantID.String(),
	))
}

func subscriptionPayload(eventID, event string, tenantID snowflake.ID) []byte {
	return []byte(fmt.Sprintf(
		`{"id":"%s","event":"%s","subscription":{"id":"sub_1","externalReference":"%s"}}`,
		eventID, event, tenantID.String(),
	))
}

func authHeaders(token string) http.Header {
	h := http.Header{}
	h.Set(asaas.AccessTokenHeader, token)
	return h
}

func countEvents(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	if err := db.Raw(`SELECT COUNT(*) FROM webhook_events`).Scan(&count).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	return count
}

func findEvent(t *testing.T, db *gorm.DB, providerEventID string) *webhookdomain.EventRecord {
	t.Helper()
	rec, err := webhookrepo.Provide().FindEvent(context.Background(), db, asaas.ProviderName, providerEventID)
	if err != nil {
		t.Fatalf("find event: %v", err)
	}
	return rec
}

func TestRejectedTokenLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node, err := snowflake.NewNode(20)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	svc, _ := newWebhookService(t, db, node)

	tenantID := node.Generate()
	seedUsage(t, db, node, tenantID, 0, 100, usagedomain.UsageStatusActive, time.Now().UTC().Add(10*24*time.Hour))

	err = svc.HandleIncoming(ctx, paymentPayload("evt_1", "PAYMENT_CONFIRMED", tenantID), authHeaders("tok_wrong"))
	if !errors.Is(err, webhookdomain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if n := countEvents(t, db); n != 0 {
		t.Fatalf("expected no stored events, got %d", n)
	}
}

func TestMalformedPayloadNotPersisted(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node, err := snowflake.NewNode(21)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	svc, _ := newWebhookService(t, db, node)

	err = svc.HandleIncoming(ctx, []byte(`{"event":"PAYMENT_CONFIRMED"`), authHeaders(testToken))
	if !errors.Is(err, webhookdomain.ErrMalformedPayload) {
		t.Fatalf("expected malformed payload, got %v", err)
	}
	if n := countEvents(t, db); n != 0 {
		t.Fatalf("expected no stored events, got %d", n)
	}
}

func TestPaymentConfirmedAppliedExactlyOnce(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node, err := snowflake.NewNode(22)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	svc, usageSvc := newWebhookService(t, db, node)

	tenantID := node.Generate()
	periodEnd := time.Now().UTC().Add(10 * 24 * time.Hour)
	seedUsage(t, db, node, tenantID, 10, 100, usagedomain.UsageStatusActive, periodEnd)

	payload := paymentPayload("evt_dup", "PAYMENT_CONFIRMED", tenantID)
	if err := svc.HandleIncoming(ctx, payload, authHeaders(testToken)); err != nil {
		t.Fatalf("first delivery: %v", err)
	}

	stored := findEvent(t, db, "evt_dup")
	if stored == nil || stored.Status != webhookdomain.EventStatusProcessed {
		t.Fatalf("expected PROCESSED event record, got %+v", stored)
	}

	afterFirst, err := usageSvc.Current(ctx, tenantID)
	if err != nil {
		t.Fatalf("current usage: %v", err)
	}
	wantEnd := periodEnd.Add(30 * 24 * time.Hour)
	if diff := afterFirst.PeriodEnd.Sub(wantEnd); diff < -time.Second || diff > time.Second {
		t.Fatalf("expected period end near %v, got %v", wantEnd, afterFirst.PeriodEnd)
	}
	if afterFirst.ConsumedUnits != 10 {
		t.Fatalf("mid-period payment must not reset consumption, got %d", afterFirst.ConsumedUnits)
	}

	// Redelivery of the same provider event is acknowledged but not re-applied.
	err = svc.HandleIncoming(ctx, payload, authHeaders(testToken))
	if !errors.Is(err, webhookdomain.ErrEventAlreadyProcessed) {
		t.Fatalf("expected already processed, got %v", err)
	}

	afterSecond, err := usageSvc.Current(ctx, tenantID)
	if err != nil {
		t.Fatalf("current usage: %v", err)
	}
	if !afterSecond.PeriodEnd.Equal(afterFirst.PeriodEnd) {
		t.Fatalf("duplicate delivery mutated usage: %v vs %v", afterSecond.PeriodEnd, afterFirst.PeriodEnd)
	}
	if n := countEvents(t, db); n != 1 {
		t.Fatalf("expected a single stored event, got %d", n)
	}
}

func TestPaymentConfirmedResetsLapsedPeriod(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node, err := snowflake.NewNode(23)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	svc, usageSvc := newWebhookService(t, db, node)

	tenantID := node.Generate()
	seedUsage(t, db, node, tenantID, 120, 100, usagedomain.UsageStatusOverLimit, time.Now().UTC().Add(-time.Hour))

	if err := svc.HandleIncoming(ctx, paymentPayload("evt_reset", "PAYMENT_CONFIRMED", tenantID), authHeaders(testToken)); err != nil {
		t.Fatalf("delivery: %v", err)
	}

	rec, err := usageSvc.Current(ctx, tenantID)
	if err != nil {
		t.Fatalf("current usage: %v", err)
	}
	if rec.ConsumedUnits != 0 {
		t.Fatalf("expected consumption reset, got %d", rec.ConsumedUnits)
	}
	if rec.Status != usagedomain.UsageStatusActive {
		t.Fatalf("expected ACTIVE after payment, got %s", rec.Status)
	}
	if !rec.PeriodEnd.After(time.Now().UTC().Add(29 * 24 * time.Hour)) {
		t.Fatalf("expected a fresh period, got end %v", rec.PeriodEnd)
	}
}

func TestUnrecognizedEventTypeSkipped(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node, err := snowflake.NewNode(24)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	svc, usageSvc := newWebhookService(t, db, node)

	tenantID := node.Generate()
	seedUsage(t, db, node, tenantID, 10, 100, usagedomain.UsageStatusActive, time.Now().UTC().Add(10*24*time.Hour))

	if err := svc.HandleIncoming(ctx, paymentPayload("evt_skip", "PAYMENT_ANTICIPATED", tenantID), authHeaders(testToken)); err != nil {
		t.Fatalf("expected unrecognized type to be accepted, got %v", err)
	}

	stored := findEvent(t, db, "evt_skip")
	if stored == nil || stored.Status != webhookdomain.EventStatusProcessed {
		t.Fatalf("expected PROCESSED record, got %+v", stored)
	}
	if stored.Note == "" {
		t.Fatalf("expected skip note on the record")
	}

	rec, err := usageSvc.Current(ctx, tenantID)
	if err != nil {
		t.Fatalf("current usage: %v", err)
	}
	if rec.ConsumedUnits != 10 || rec.Status != usagedomain.UsageStatusActive {
		t.Fatalf("skipped event mutated usage: %+v", rec)
	}
}

func TestUnknownTenantReferenceRejected(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node, err := snowflake.NewNode(25)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	svc, _ := newWebhookService(t, db, node)

	payload := []byte(`{"id":"evt_noref","event":"PAYMENT_CONFIRMED","payment":{"id":"pay_1","externalReference":"garbage"}}`)
	err = svc.HandleIncoming(ctx, payload, authHeaders(testToken))
	if !errors.Is(err, webhookdomain.ErrUnknownTenant) {
		t.Fatalf("expected unknown tenant, got %v", err)
	}

	stored := findEvent(t, db, "evt_noref")
	if stored == nil || stored.Status != webhookdomain.EventStatusRejected {
		t.Fatalf("expected REJECTED record, got %+v", stored)
	}
}

func TestTenantWithoutOpenPeriodRejected(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node, err := snowflake.NewNode(26)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	svc, _ := newWebhookService(t, db, node)

	tenantID := node.Generate()
	err = svc.HandleIncoming(ctx, paymentPayload("evt_norec", "PAYMENT_CONFIRMED", tenantID), authHeaders(testToken))
	if !errors.Is(err, webhookdomain.ErrUnknownTenant) {
		t.Fatalf("expected unknown tenant, got %v", err)
	}

	stored := findEvent(t, db, "evt_norec")
	if stored == nil || stored.Status != webhookdomain.EventStatusRejected {
		t.Fatalf("expected REJECTED record, got %+v", stored)
	}
}

func TestSubscriptionCanceledSuspendsUntilPayment(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node, err := snowflake.NewNode(27)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	svc, usageSvc := newWebhookService(t, db, node)

	tenantID := node.Generate()
	seedUsage(t, db, node, tenantID, 10, 100, usagedomain.UsageStatusActive, time.Now().UTC().Add(10*24*time.Hour))

	if err := svc.HandleIncoming(ctx, subscriptionPayload("evt_cancel", "SUBSCRIPTION_DELETED", tenantID), authHeaders(testToken)); err != nil {
		t.Fatalf("cancel delivery: %v", err)
	}
	rec, err := usageSvc.Current(ctx, tenantID)
	if err != nil {
		t.Fatalf("current usage: %v", err)
	}
	if rec.Status != usagedomain.UsageStatusSuspended {
		t.Fatalf("expected SUSPENDED, got %s", rec.Status)
	}

	// A failed payment must not lift the suspension.
	if err := svc.HandleIncoming(ctx, paymentPayload("evt_overdue", "PAYMENT_OVERDUE", tenantID), authHeaders(testToken)); err != nil {
		t.Fatalf("overdue delivery: %v", err)
	}
	rec, err = usageSvc.Current(ctx, tenantID)
	if err != nil {
		t.Fatalf("current usage: %v", err)
	}
	if rec.Status != usagedomain.UsageStatusSuspended {
		t.Fatalf("suspension must be sticky, got %s", rec.Status)
	}

	if err := svc.HandleIncoming(ctx, paymentPayload("evt_revive", "PAYMENT_CONFIRMED", tenantID), authHeaders(testToken)); err != nil {
		t.Fatalf("revive delivery: %v", err)
	}
	rec, err = usageSvc.Current(ctx, tenantID)
	if err != nil {
		t.Fatalf("current usage: %v", err)
	}
	if rec.Status != usagedomain.UsageStatusActive {
		t.Fatalf("expected ACTIVE after confirmed payment, got %s", rec.Status)
	}
}

func TestFailedEventReclaimedOnRedelivery(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node, err := snowflake.NewNode(28)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	svc, usageSvc := newWebhookService(t, db, node)

	tenantID := node.Generate()
	seedUsage(t, db, node, tenantID, 10, 100, usagedomain.UsageStatusActive, time.Now().UTC().Add(10*24*time.Hour))

	payload := paymentPayload("evt_retry", "PAYMENT_CONFIRMED", tenantID)
	failed := &webhookdomain.EventRecord{
		ID:              node.Generate(),
		Provider:        asaas.ProviderName,
		ProviderEventID: "evt_retry",
		EventType:       "PAYMENT_CONFIRMED",
		TenantID:        tenantID,
		Payload:         datatypes.JSON(payload),
		Status:          webhookdomain.EventStatusFailed,
		Note:            "store timeout",
		ReceivedAt:      time.Now().UTC(),
	}
	if inserted, err := webhookrepo.Provide().InsertEvent(ctx, db, failed); err != nil || !inserted {
		t.Fatalf("seed failed event: inserted=%v err=%v", inserted, err)
	}

	if err := svc.HandleIncoming(ctx, payload, authHeaders(testToken)); err != nil {
		t.Fatalf("redelivery of failed event: %v", err)
	}

	stored := findEvent(t, db, "evt_retry")
	if stored == nil || stored.Status != webhookdomain.EventStatusProcessed {
		t.Fatalf("expected reclaimed event to finish PROCESSED, got %+v", stored)
	}
	rec, err := usageSvc.Current(ctx, tenantID)
	if err != nil {
		t.Fatalf("current usage: %v", err)
	}
	if rec.Status != usagedomain.UsageStatusActive {
		t.Fatalf("expected ACTIVE, got %s", rec.Status)
	}
}

func TestPendingEventInFlight(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node, err := snowflake.NewNode(29)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	svc, _ := newWebhookService(t, db, node)

	tenantID := node.Generate()
	payload := paymentPayload("evt_pending", "PAYMENT_CONFIRMED", tenantID)
	pending := &webhookdomain.EventRecord{
		ID:              node.Generate(),
		Provider:        asaas.ProviderName,
		ProviderEventID: "evt_pending",
		EventType:       "PAYMENT_CONFIRMED",
		TenantID:        tenantID,
		Payload:         datatypes.JSON(payload),
		Status:          webhookdomain.EventStatusPending,
		ReceivedAt:      time.Now().UTC(),
	}
	if inserted, err := webhookrepo.Provide().InsertEvent(ctx, db, pending); err != nil || !inserted {
		t.Fatalf("seed pending event: inserted=%v err=%v", inserted, err)
	}

	err = svc.HandleIncoming(ctx, payload, authHeaders(testToken))
	if !errors.Is(err, webhookdomain.ErrEventInFlight) {
		t.Fatalf("expected in-flight, got %v", err)
	}
}

func TestDuplicateInsertReportsExistingKey(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node, err := snowflake.NewNode(30)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	repo := webhookrepo.Provide()

	first := &webhookdomain.EventRecord{
		ID:              node.Generate(),
		Provider:        asaas.ProviderName,
		ProviderEventID: "evt_unique",
		EventType:       "PAYMENT_CONFIRMED",
		Payload:         datatypes.JSON(`{}`),
		Status:          webhookdomain.EventStatusPending,
		ReceivedAt:      time.Now().UTC(),
	}
	if inserted, err := repo.InsertEvent(ctx, db, first); err != nil || !inserted {
		t.Fatalf("first insert: inserted=%v err=%v", inserted, err)
	}

	second := &webhookdomain.EventRecord{
		ID:              node.Generate(),
		Provider:        asaas.ProviderName,
		ProviderEventID: "evt_unique",
		EventType:       "PAYMENT_CONFIRMED",
		Payload:         datatypes.JSON(`{}`),
		Status:          webhookdomain.EventStatusPending,
		ReceivedAt:      time.Now().UTC(),
	}
	inserted, err := repo.InsertEvent(ctx, db, second)
	if err != nil {
		t.Fatalf("duplicate insert must not error: %v", err)
	}
	if inserted {
		t.Fatalf("duplicate insert must report the existing key")
	}
	if n := countEvents(t, db); n != 1 {
		t.Fatalf("expected a single stored event, got %d", n)
	}
}

func TestHeldEventLockShedsDelivery(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node, err := snowflake.NewNode(31)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	locker := newMemoryEventLocker()
	svc, _ := newLockedWebhookService(t, db, node, locker)

	tenantID := node.Generate()
	seedUsage(t, db, node, tenantID, 0, 100, usagedomain.UsageStatusActive, time.Now().UTC().Add(10*24*time.Hour))

	if _, acquired, err := locker.TryLockEvent(ctx, asaas.ProviderName, "evt_locked"); err != nil || !acquired {
		t.Fatalf("pre-acquire lock: acquired=%v err=%v", acquired, err)
	}

	err = svc.HandleIncoming(ctx, paymentPayload("evt_locked", "PAYMENT_CONFIRMED", tenantID), authHeaders(testToken))
	if !errors.Is(err, webhookdomain.ErrEventInFlight) {
		t.Fatalf("expected in-flight while lock is held, got %v", err)
	}
	if n := countEvents(t, db); n != 0 {
		t.Fatalf("shed delivery must not reach the store, got %d events", n)
	}
}

func TestConcurrentDeliveriesApplyOnce(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	node, err := snowflake.NewNode(32)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	svc, usageSvc := newLockedWebhookService(t, db, node, newMemoryEventLocker())

	tenantID := node.Generate()
	periodEnd := time.Now().UTC().Add(10 * 24 * time.Hour)
	seedUsage(t, db, node, tenantID, 10, 100, usagedomain.UsageStatusActive, periodEnd)

	payload := paymentPayload("evt_race", "PAYMENT_CONFIRMED", tenantID)

	var wg sync.WaitGroup
	start := make(chan struct{})
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i] = svc.HandleIncoming(ctx, payload, authHeaders(testToken))
		}(i)
	}
	close(start)
	wg.Wait()

	var applied int
	for _, res := range results {
		switch {
		case res == nil:
			applied++
		case errors.Is(res, webhookdomain.ErrEventInFlight),
			errors.Is(res, webhookdomain.ErrEventAlreadyProcessed):
		default:
			t.Fatalf("unexpected delivery result: %v", res)
		}
	}
	if applied != 1 {
		t.Fatalf("expected exactly one applied delivery, got %d", applied)
	}

	if n := countEvents(t, db); n != 1 {
		t.Fatalf("expected a single stored event, got %d", n)
	}
	stored := findEvent(t, db, "evt_race")
	if stored == nil || stored.Status != webhookdomain.EventStatusProcessed {
		t.Fatalf("expected PROCESSED event record, got %+v", stored)
	}

	rec, err := usageSvc.Current(ctx, tenantID)
	if err != nil {
		t.Fatalf("current usage: %v", err)
	}
	wantEnd := periodEnd.Add(30 * 24 * time.Hour)
	if diff := rec.PeriodEnd.Sub(wantEnd); diff < -time.Second || diff > time.Second {
		t.Fatalf("period must extend exactly once: want near %v, got %v", wantEnd, rec.PeriodEnd)
	}
	if rec.ConsumedUnits != 10 {
		t.Fatalf("consumption must be untouched, got %d", rec.ConsumedUnits)
	}
}
