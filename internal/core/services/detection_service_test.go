package services_test

import (
	"testing"
	"time"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
	"github.com/SscSPs/fx_ledger/internal/core/services"
	"github.com/SscSPs/fx_ledger/internal/dto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetection_FailedLoginsFromOneIP(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < services.DefaultFailedLoginThreshold+1; i++ {
		require.NoError(t, f.svc.Audit.RecordLogin(f.ctx, nil, "198.51.100.9", "curl/8", false, "bad password"))
	}
	for i := 0; i < services.DefaultFailedLoginThreshold; i++ {
		require.NoError(t, f.svc.Audit.RecordLogin(f.ctx, nil, "198.51.100.10", "curl/8", false, "bad password"))
	}

	emitted, err := f.svc.Detection.RunDetection(f.ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, emitted, 1)
	assert.Equal(t, domain.EventSuspiciousActivity, emitted[0].Kind)
	assert.Equal(t, domain.RuleMultipleFailedLogins, emitted[0].Action)
	assert.Equal(t, "ip", emitted[0].ResourceKind)
	assert.NotContains(t, emitted[0].ResourceID, "198.51.100.9")
	assert.Equal(t, domain.SeverityHigh, emitted[0].Severity)

	again, err := f.svc.Detection.RunDetection(f.ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, again, "a flagged source is not re-flagged inside the window")
}

func TestDetection_UnusualFinancialActivity(t *testing.T) {
	f := newFixture(t, func(s *services.Settings) {
		s.FinancialThreshold = 3
	})
	f.seedAccount("A", "t1", "cust1", domain.USD, "1000")
	f.seedAccount("B", "t1", "cust2", domain.USD, "0")

	for i := 0; i < 3; i++ {
		_, err := f.svc.Ledger.Transfer(f.ctx, f.admin1, dto.TransferRequest{FromAccountID: "A", ToAccountID: "B", Amount: dec("1")})
		require.NoError(t, err)
	}
	emitted, err := f.svc.Detection.RunDetection(f.ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, emitted, "reaching the threshold is not enough")

	_, err = f.svc.Ledger.Transfer(f.ctx, f.admin1, dto.TransferRequest{FromAccountID: "A", ToAccountID: "B", Amount: dec("1")})
	require.NoError(t, err)
	emitted, err = f.svc.Detection.RunDetection(f.ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, emitted, 1)
	assert.Equal(t, domain.RuleUnusualFinancialActivity, emitted[0].Action)
	assert.Equal(t, f.admin1.UserID, emitted[0].ResourceID)
	require.NotNil(t, emitted[0].TenantID)
	assert.Equal(t, "t1", *emitted[0].TenantID)
}

func TestDetection_IgnoresEventsOutsideWindow(t *testing.T) {
	f := newFixture(t, func(s *services.Settings) {
		s.FailedLoginThreshold = 1
	})
	require.NoError(t, f.svc.Audit.RecordLogin(f.ctx, nil, "198.51.100.9", "curl/8", false, "bad password"))
	require.NoError(t, f.svc.Audit.RecordLogin(f.ctx, nil, "198.51.100.9", "curl/8", false, "bad password"))

	emitted, err := f.svc.Detection.RunDetection(f.ctx, time.Now().Add(3*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, emitted)
}
