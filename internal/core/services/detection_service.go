package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
	portsrepo "github.com/SscSPs/fx_ledger/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/fx_ledger/internal/core/ports/services"
	"github.com/SscSPs/fx_ledger/internal/utils/fieldcrypt"
	"github.com/SscSPs/fx_ledger/internal/utils/pagination"
)

// Detection defaults.
const (
	DefaultFailedLoginThreshold = 5
	DefaultFinancialThreshold   = 10
	DefaultDetectionWindow      = time.Hour
)

type detectionService struct {
	BaseService
	events           portsrepo.AuditReader
	audit            portssvc.AuditWriterSvc
	cipher           *fieldcrypt.Cipher
	loginThreshold   int
	financeThreshold int
	window           time.Duration
}

// DetectionOption configures the detection rules.
type DetectionOption func(*detectionService)

// WithDetectionThresholds overrides the per-window counts that trigger an alert.
func WithDetectionThresholds(failedLogins, financialOps int) DetectionOption {
	return func(s *detectionService) {
		s.loginThreshold = failedLogins
		s.financeThreshold = financialOps
	}
}

// WithDetectionWindow overrides the sliding window length.
func WithDetectionWindow(window time.Duration) DetectionOption {
	return func(s *detectionService) {
		s.window = window
	}
}

// NewDetectionService creates the periodic suspicious-activity rules.
func NewDetectionService(events portsrepo.AuditReader, audit portssvc.AuditWriterSvc, cipher *fieldcrypt.Cipher, options ...DetectionOption) portssvc.DetectionSvc {
	svc := &detectionService{
		events:           events,
		audit:            audit,
		cipher:           cipher,
		loginThreshold:   DefaultFailedLoginThreshold,
		financeThreshold: DefaultFinancialThreshold,
		window:           DefaultDetectionWindow,
	}
	for _, option := range options {
		option(svc)
	}
	return svc
}

var _ portssvc.DetectionSvc = (*detectionService)(nil)

// ipFingerprint keeps raw addresses out of resource ids.
func ipFingerprint(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:8])
}

func (s *detectionService) RunDetection(ctx context.Context, now time.Time) ([]domain.AuditEvent, error) {
	now = now.UTC()
	from := now.Add(-s.window)
	to := now.Add(time.Microsecond)

	window, err := s.load(ctx, domain.AuditFilter{From: &from, To: &to})
	if err != nil {
		return nil, err
	}

	alreadyFlagged := make(map[string]bool)
	failedByIP := make(map[string][]domain.AuditEvent)
	financialByActor := make(map[string][]domain.AuditEvent)
	for _, e := range window {
		switch {
		case e.Kind == domain.EventSuspiciousActivity:
			alreadyFlagged[e.Action+"|"+e.ResourceID] = true
		case e.Kind == domain.EventLoginFailed:
			ip, err := s.cipher.Decrypt(fieldRequestIP, e.RequestIP)
			if err != nil || ip == "" {
				continue
			}
			failedByIP[ip] = append(failedByIP[ip], e)
		case e.Kind.IsFinancial():
			if e.ActorID == nil || *e.ActorID == domain.SystemActorID {
				continue
			}
			financialByActor[*e.ActorID] = append(financialByActor[*e.ActorID], e)
		}
	}

	var emitted []domain.AuditEvent
	for ip, events := range failedByIP {
		if len(events) <= s.loginThreshold {
			continue
		}
		fp := ipFingerprint(ip)
		if alreadyFlagged[domain.RuleMultipleFailedLogins+"|"+fp] {
			continue
		}
		event, err := s.flag(ctx, domain.RuleMultipleFailedLogins, "ip", fp, events[len(events)-1].TenantID, ip, map[string]any{
			"count":     len(events),
			"threshold": s.loginThreshold,
			"window":    s.window.String(),
		})
		if err != nil {
			return emitted, err
		}
		emitted = append(emitted, *event)
	}
	for actorID, events := range financialByActor {
		if len(events) <= s.financeThreshold {
			continue
		}
		if alreadyFlagged[domain.RuleUnusualFinancialActivity+"|"+actorID] {
			continue
		}
		event, err := s.flag(ctx, domain.RuleUnusualFinancialActivity, "user", actorID, events[len(events)-1].TenantID, "", map[string]any{
			"count":     len(events),
			"threshold": s.financeThreshold,
			"window":    s.window.String(),
		})
		if err != nil {
			return emitted, err
		}
		emitted = append(emitted, *event)
	}

	if len(emitted) > 0 {
		s.GetLogger(ctx).Warn("Detection rules fired",
			slog.Int("emitted", len(emitted)),
			slog.Time("window_start", from))
	}
	return emitted, nil
}

func (s *detectionService) load(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEvent, error) {
	filter.Limit = pagination.MaxLimit
	var all []domain.AuditEvent
	for {
		events, next, err := s.events.QueryEvents(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to load detection window: %w", err)
		}
		all = append(all, events...)
		if next == nil {
			return all, nil
		}
		filter.NextToken = next
	}
}

func (s *detectionService) flag(ctx context.Context, rule, resourceKind, resourceID string, tenantID *string, ip string, details map[string]any) (*domain.AuditEvent, error) {
	system := domain.SystemActor()
	return s.audit.Append(ctx, portssvc.AuditRecord{
		Kind:         domain.EventSuspiciousActivity,
		Severity:     domain.SeverityHigh,
		Actor:        &system,
		TenantID:     tenantID,
		Action:       rule,
		ResourceKind: resourceKind,
		ResourceID:   resourceID,
		Details:      details,
		RequestIP:    ip,
	})
}
