package scheduler_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/faturolabs/faturo/internal/clock"
	"github.com/faturolabs/faturo/internal/scheduler"
	usagedomain "github.com/faturolabs/faturo/internal/usage/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type stubUsageService struct {
	rolled  int
	calls   int
	rollErr error
}

func (s *stubUsageService) Current(ctx context.Context, tenantID snowflake.ID) (*usagedomain.UsageRecord, error) {
	return nil, usagedomain.ErrNotFound
}

func (s *stubUsageService) Increment(ctx context.Context, tenantID snowflake.ID, delta int64) (*usagedomain.UsageRecord, error) {
	return nil, usagedomain.ErrNotFound
}

func (s *stubUsageService) ApplyEventTx(ctx context.Context, tx *gorm.DB, ev usagedomain.Event) (*usagedomain.UsageRecord, error) {
	return nil, usagedomain.ErrNotFound
}

func (s *stubUsageService) Rollover(ctx context.Context) (int, error) {
	s.calls++
	return s.rolled, s.rollErr
}

func TestRunOnceInvokesRollover(t *testing.T) {
	stub := &stubUsageService{rolled: 3}
	sched, err := scheduler.New(scheduler.Params{
		Log:      zap.NewNop(),
		UsageSvc: stub,
		Clock:    clock.NewFakeClock(time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	sched.RunOnce(context.Background())
	sched.RunOnce(context.Background())
	if stub.calls != 2 {
		t.Fatalf("expected 2 rollover calls, got %d", stub.calls)
	}
}

func TestRunOnceSwallowsRolloverError(t *testing.T) {
	stub := &stubUsageService{rollErr: errors.New("db down")}
	sched, err := scheduler.New(scheduler.Params{
		Log:      zap.NewNop(),
		UsageSvc: stub,
		Clock:    clock.NewFakeClock(time.Now()),
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	// Must not panic; the next tick retries.
	sched.RunOnce(context.Background())
	if stub.calls != 1 {
		t.Fatalf("expected 1 call, got %d", stub.calls)
	}
}

func TestNewRejectsMissingDeps(t *testing.T) {
	if _, err := scheduler.New(scheduler.Params{Log: zap.NewNop()}); !errors.Is(err, scheduler.ErrInvalidConfig) {
		t.Fatalf("expected invalid config, got %v", err)
	}
}
