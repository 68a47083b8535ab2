package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
	"github.com/SscSPs/fx_ledger/internal/metrics"
	"github.com/SscSPs/fx_ledger/internal/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockDetection struct{ mock.Mock }

func (m *mockDetection) RunDetection(ctx context.Context, now time.Time) ([]domain.AuditEvent, error) {
	args := m.Called(ctx, now)
	events, _ := args.Get(0).([]domain.AuditEvent)
	return events, args.Error(1)
}

type mockRetention struct{ mock.Mock }

func (m *mockRetention) PurgeOlderThan(ctx context.Context, retention time.Duration, keep domain.Severity) (int64, error) {
	args := m.Called(ctx, retention, keep)
	return args.Get(0).(int64), args.Error(1)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestJobs_PurgeKeepsHighSeverity(t *testing.T) {
	retention := &mockRetention{}
	retention.On("PurgeOlderThan", mock.Anything, 90*24*time.Hour, domain.SeverityHigh).Return(int64(3), nil).Once()
	jobs := NewJobs(&mockDetection{}, retention, metrics.NewCronJobMetrics(nil), discardLogger(), Config{AuditRetention: 90 * 24 * time.Hour})

	require.NoError(t, jobs.PurgeAudit())
	retention.AssertExpectations(t)
}

func TestJobs_DetectionRunsAtClockTime(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	detection := &mockDetection{}
	detection.On("RunDetection", mock.MatchedBy(func(ctx context.Context) bool {
		_, hasDeadline := ctx.Deadline()
		return hasDeadline && middleware.GetLoggerFromCtx(ctx) != slog.Default()
	}), now).Return([]domain.AuditEvent{{EventID: "e1"}}, nil).Once()

	jobs := NewJobs(detection, &mockRetention{}, nil, discardLogger(), Config{})
	jobs.clock = func() time.Time { return now }

	require.NoError(t, jobs.RunDetection())
	detection.AssertExpectations(t)
}

func TestJobs_FailureIsWrapped(t *testing.T) {
	detection := &mockDetection{}
	detection.On("RunDetection", mock.Anything, mock.Anything).Return(nil, errors.New("store down"))
	jobs := NewJobs(detection, &mockRetention{}, nil, discardLogger(), Config{})

	err := jobs.RunDetection()
	require.Error(t, err)
	assert.Contains(t, err.Error(), JobDetection)
}

func TestScheduler_RejectsBadSchedule(t *testing.T) {
	jobs := NewJobs(&mockDetection{}, &mockRetention{}, nil, discardLogger(), Config{DetectionSchedule: "every now and then"})
	s := NewScheduler(jobs, discardLogger())
	assert.Error(t, s.Start())
}

func TestScheduler_StartsWithDescriptors(t *testing.T) {
	jobs := NewJobs(&mockDetection{}, &mockRetention{}, nil, discardLogger(), Config{
		DetectionSchedule: "@every 5m",
		PurgeSchedule:     "@daily",
	})
	s := NewScheduler(jobs, discardLogger())
	require.NoError(t, s.Start())
	assert.Len(t, s.cron.Entries(), 2)
	<-s.Stop().Done()
}
