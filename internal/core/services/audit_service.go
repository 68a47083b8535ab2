package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/SscSPs/fx_ledger/internal/apperrors"
	"github.com/SscSPs/fx_ledger/internal/core/domain"
	portsrepo "github.com/SscSPs/fx_ledger/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/fx_ledger/internal/core/ports/services"
	"github.com/SscSPs/fx_ledger/internal/dto"
	"github.com/SscSPs/fx_ledger/internal/utils/fieldcrypt"
	"github.com/SscSPs/fx_ledger/internal/utils/pagination"
	"github.com/google/uuid"
)

const (
	fieldRequestIP = "audit.request_ip"
	fieldUserAgent = "audit.user_agent"
)

// auditService is the append-only, checksummed event log.
type auditService struct {
	BaseService
	store    portsrepo.UnitOfWorkStore
	hmacKey  []byte
	cipher   *fieldcrypt.Cipher
	sink     portssvc.AlertSink
	observer portssvc.Observer
	gate     *authorizationService
}

// AuditOption configures the audit service.
type AuditOption func(*auditService)

// WithAlertSink sets the delivery hook for high and critical events.
func WithAlertSink(sink portssvc.AlertSink) AuditOption {
	return func(s *auditService) {
		s.sink = sink
	}
}

// WithAuditObserver reports appended events and alert failures.
func WithAuditObserver(o portssvc.Observer) AuditOption {
	return func(s *auditService) {
		s.observer = o
	}
}

// WithAuditClock overrides the time source.
func WithAuditClock(clock func() time.Time) AuditOption {
	return func(s *auditService) {
		s.Clock = clock
	}
}

// NewAuditService creates the audit log. The HMAC key must differ from the key
// behind cipher.
func NewAuditService(store portsrepo.UnitOfWorkStore, hmacKey []byte, cipher *fieldcrypt.Cipher, options ...AuditOption) (portssvc.AuditSvcFacade, error) {
	if len(hmacKey) < 16 {
		return nil, errors.New("audit HMAC key must be at least 16 bytes")
	}
	if cipher == nil {
		return nil, errors.New("audit field cipher is required")
	}
	svc := &auditService{
		store:    store,
		hmacKey:  append([]byte(nil), hmacKey...),
		cipher:   cipher,
		observer: portssvc.NopObserver{},
	}
	for _, option := range options {
		option(svc)
	}
	svc.gate = &authorizationService{
		BaseService:    svc.BaseService,
		accessResolver: newAccessResolver(store.Tenants()),
		audit:          svc,
	}
	return svc, nil
}

var _ portssvc.AuditSvcFacade = (*auditService)(nil)

// build turns a record into a sealed event: encrypted request metadata, canonical details, checksum.
func (s *auditService) build(rec portssvc.AuditRecord) (domain.AuditEvent, error) {
	if rec.Severity < domain.SeverityLow || rec.Severity > domain.SeverityCritical {
		return domain.AuditEvent{}, fmt.Errorf("invalid audit severity %d", rec.Severity)
	}
	details, err := canonicalDetails(rec.Details)
	if err != nil {
		return domain.AuditEvent{}, err
	}

	ip, agent := rec.RequestIP, rec.UserAgent
	var actorID *string
	if rec.Actor != nil {
		actorID = strPtr(rec.Actor.UserID)
		if ip == "" {
			ip = rec.Actor.IP
		}
		if agent == "" {
			agent = rec.Actor.UserAgent
		}
	}
	encIP, err := s.cipher.Encrypt(fieldRequestIP, ip)
	if err != nil {
		return domain.AuditEvent{}, err
	}
	encAgent, err := s.cipher.Encrypt(fieldUserAgent, agent)
	if err != nil {
		return domain.AuditEvent{}, err
	}

	event := domain.AuditEvent{
		EventID:      uuid.NewString(),
		Timestamp:    s.now(),
		Kind:         rec.Kind,
		Severity:     rec.Severity,
		ActorID:      actorID,
		TenantID:     rec.TenantID,
		Action:       rec.Action,
		ResourceKind: rec.ResourceKind,
		ResourceID:   rec.ResourceID,
		Details:      details,
		RequestIP:    encIP,
		UserAgent:    encAgent,
	}
	event.Checksum, err = s.checksum(event)
	if err != nil {
		return domain.AuditEvent{}, err
	}
	return event, nil
}

// canonicalDetails marshals details with sorted keys so the checksum survives
// stores that re-serialize JSON.
func canonicalDetails(details any) (json.RawMessage, error) {
	if details == nil {
		return json.RawMessage(`{}`), nil
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal audit details: %w", err)
	}
	return canonicalJSON(raw)
}

func canonicalJSON(raw json.RawMessage) (json.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage(`{}`), nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to decode audit details: %w", err)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode audit details: %w", err)
	}
	return out, nil
}

// checksum is HMAC-SHA256 over every field except the checksum itself.
func (s *auditService) checksum(e domain.AuditEvent) (string, error) {
	details, err := canonicalJSON(e.Details)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, s.hmacKey)
	write := func(field string) {
		mac.Write([]byte(strconv.Itoa(len(field))))
		mac.Write([]byte{':'})
		mac.Write([]byte(field))
	}
	optional := func(p *string) {
		if p == nil {
			mac.Write([]byte{'-'})
			return
		}
		mac.Write([]byte{'+'})
		write(*p)
	}
	write(e.EventID)
	write(e.Timestamp.UTC().Truncate(time.Microsecond).Format(time.RFC3339Nano))
	write(string(e.Kind))
	write(e.Severity.String())
	optional(e.ActorID)
	optional(e.TenantID)
	write(e.Action)
	write(e.ResourceKind)
	write(e.ResourceID)
	write(string(details))
	write(e.RequestIP)
	write(e.UserAgent)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

func (s *auditService) verifyEvent(e domain.AuditEvent) bool {
	expected, err := s.checksum(e)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(e.Checksum))
}

func (s *auditService) Append(ctx context.Context, rec portssvc.AuditRecord) (*domain.AuditEvent, error) {
	event, err := s.build(rec)
	if err != nil {
		return nil, err
	}
	if err := s.store.Audit().AppendEvent(ctx, event); err != nil {
		s.LogError(ctx, err, "Failed to append audit event", slog.String("kind", string(rec.Kind)))
		return nil, fmt.Errorf("failed to append audit event: %w", err)
	}
	s.observer.ObserveAuditEvent(event.Severity.String())
	s.alert(ctx, event)
	return &event, nil
}

func (s *auditService) AppendInTx(ctx context.Context, tx portsrepo.Store, rec portssvc.AuditRecord) (*domain.AuditEvent, error) {
	event, err := s.build(rec)
	if err != nil {
		return nil, err
	}
	if err := tx.Audit().AppendEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to append audit event: %w", err)
	}
	s.observer.ObserveAuditEvent(event.Severity.String())
	onCommit(ctx, func(ctx context.Context) { s.alert(ctx, event) })
	return &event, nil
}

// alert delivers high and critical events. A failed delivery is recorded as its
// own critical event, which is never re-alerted.
func (s *auditService) alert(ctx context.Context, event domain.AuditEvent) {
	if s.sink == nil || !event.Severity.RequiresAlert() || event.Kind == domain.EventAlertDeliveryFailed {
		return
	}
	err := s.sink.Deliver(ctx, event)
	if err == nil {
		return
	}
	s.observer.ObserveAlertFailure()
	s.LogError(ctx, err, "Alert delivery failed", slog.String("event_id", event.EventID), slog.String("kind", string(event.Kind)))

	failure, buildErr := s.build(portssvc.AuditRecord{
		Kind:         domain.EventAlertDeliveryFailed,
		Severity:     domain.SeverityCritical,
		TenantID:     event.TenantID,
		Action:       "alert.deliver",
		ResourceKind: "audit_event",
		ResourceID:   event.EventID,
		Details:      map[string]any{"kind": string(event.Kind), "error": err.Error()},
	})
	if buildErr != nil {
		s.LogError(ctx, buildErr, "Failed to build alert failure event")
		return
	}
	failure.ActorID = event.ActorID
	if failure.Checksum, buildErr = s.checksum(failure); buildErr != nil {
		s.LogError(ctx, buildErr, "Failed to seal alert failure event")
		return
	}
	if appendErr := s.store.Audit().AppendEvent(context.WithoutCancel(ctx), failure); appendErr != nil {
		s.LogError(ctx, appendErr, "Failed to record alert failure", slog.String("event_id", event.EventID))
		return
	}
	s.observer.ObserveAuditEvent(failure.Severity.String())
}

func (s *auditService) RecordLogin(ctx context.Context, userID *string, ip, userAgent string, success bool, reason string) error {
	kind, severity := domain.EventLoginFailed, domain.SeverityMedium
	if success {
		kind, severity = domain.EventLoginSucceeded, domain.SeverityLow
	}
	rec := portssvc.AuditRecord{
		Kind:         kind,
		Severity:     severity,
		Action:       "auth.login",
		ResourceKind: "user",
		ResourceID:   derefOr(userID, ""),
		Details:      map[string]any{"reason": reason},
		RequestIP:    ip,
		UserAgent:    userAgent,
	}
	if userID != nil {
		rec.Actor = &domain.Actor{UserID: *userID}
		if u, err := s.store.Users().FindUserByID(ctx, *userID); err == nil && u.TenantID != nil {
			rec.TenantID = u.TenantID
		}
	}
	_, err := s.Append(ctx, rec)
	return err
}

// decrypted returns a copy of e with request metadata in clear text.
func (s *auditService) decrypted(e domain.AuditEvent) domain.AuditEvent {
	if ip, err := s.cipher.Decrypt(fieldRequestIP, e.RequestIP); err == nil {
		e.RequestIP = ip
	}
	if agent, err := s.cipher.Decrypt(fieldUserAgent, e.UserAgent); err == nil {
		e.UserAgent = agent
	}
	return e
}

func (s *auditService) Query(ctx context.Context, actor domain.Actor, params dto.AuditQueryParams) ([]dto.AuditEventResponse, *string, error) {
	if err := dto.Validate(params); err != nil {
		return nil, nil, err
	}
	filter := domain.AuditFilter{
		TenantID:  params.TenantID,
		ActorID:   params.ActorID,
		Kinds:     params.Kinds,
		From:      params.From,
		To:        params.To,
		Limit:     pagination.NormalizeLimit(params.Limit),
		NextToken: params.NextToken,
	}
	if params.MinSeverity != "" {
		filter.MinSeverity, _ = domain.ParseSeverity(params.MinSeverity)
	}
	if filter.TenantID == nil && !actor.IsSuper() {
		filter.TenantID = strPtr(actor.TenantID)
	}
	var tenants []string
	if filter.TenantID != nil {
		tenants = append(tenants, *filter.TenantID)
	}
	if err := s.gate.Authorize(ctx, actor, domain.OpReadAudit, tenants...); err != nil {
		return nil, nil, err
	}

	events, next, err := s.store.Audit().QueryEvents(ctx, filter)
	if err != nil {
		s.LogError(ctx, err, "Failed to query audit events")
		return nil, nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	out := make([]dto.AuditEventResponse, len(events))
	for i, e := range events {
		out[i] = dto.AuditEventResponse{AuditEvent: s.decrypted(e), Verified: s.verifyEvent(e)}
	}
	return out, next, nil
}

func (s *auditService) Verify(ctx context.Context, actor domain.Actor, eventID string) (bool, error) {
	event, err := s.store.Audit().FindEventByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if actor.IsSuper() {
				return false, apperrors.Newf(apperrors.NotFound, "audit event %s not found", eventID)
			}
			return false, s.gate.Deny(ctx, actor, domain.OpReadAudit, "audit_event", eventID, "unknown event")
		}
		return false, fmt.Errorf("failed to load audit event: %w", err)
	}
	var tenants []string
	if event.TenantID != nil {
		tenants = append(tenants, *event.TenantID)
	} else if !actor.IsSuper() {
		return false, s.gate.Deny(ctx, actor, domain.OpReadAudit, "audit_event", eventID, "platform event")
	}
	if err := s.gate.Authorize(ctx, actor, domain.OpReadAudit, tenants...); err != nil {
		return false, err
	}

	if s.verifyEvent(*event) {
		return true, nil
	}
	s.integrityFailure(ctx, actor, event.TenantID, []string{event.EventID})
	return false, nil
}

func (s *auditService) VerifyRange(ctx context.Context, actor domain.Actor, req dto.VerifyAuditRangeRequest) (*domain.AuditVerification, error) {
	if err := dto.Validate(req); err != nil {
		return nil, err
	}
	if err := s.gate.Authorize(ctx, actor, domain.OpReadAudit, req.TenantID); err != nil {
		return nil, err
	}

	result := &domain.AuditVerification{TenantID: req.TenantID, From: req.From, To: req.To, Failed: []string{}}
	filter := domain.AuditFilter{TenantID: strPtr(req.TenantID), From: &req.From, To: &req.To, Limit: pagination.MaxLimit}
	for {
		events, next, err := s.store.Audit().QueryEvents(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to query audit events: %w", err)
		}
		for _, e := range events {
			result.Checked++
			if !s.verifyEvent(e) {
				result.Failed = append(result.Failed, e.EventID)
			}
		}
		if next == nil {
			break
		}
		filter.NextToken = next
	}
	result.Passed = len(result.Failed) == 0
	if !result.Passed {
		s.integrityFailure(ctx, actor, strPtr(req.TenantID), result.Failed)
	}
	s.LogInfo(ctx, "Audit range verified",
		slog.String("tenant_id", req.TenantID),
		slog.Int("checked", result.Checked),
		slog.Int("failed", len(result.Failed)))
	return result, nil
}

func (s *auditService) integrityFailure(ctx context.Context, actor domain.Actor, tenantID *string, failed []string) {
	_, err := s.Append(context.WithoutCancel(ctx), portssvc.AuditRecord{
		Kind:         domain.EventAuditIntegrityFailure,
		Severity:     domain.SeverityCritical,
		Actor:        &actor,
		TenantID:     tenantID,
		Action:       "audit.verify",
		ResourceKind: "audit_event",
		ResourceID:   failed[0],
		Details:      map[string]any{"failed": failed, "count": len(failed)},
	})
	if err != nil {
		s.LogError(ctx, err, "Failed to record audit integrity failure")
	}
}

func (s *auditService) PurgeOlderThan(ctx context.Context, retention time.Duration, keepSeverityAtLeast domain.Severity) (int64, error) {
	if retention <= 0 {
		return 0, apperrors.New(apperrors.InvalidRequest, "retention must be positive")
	}
	// High and critical events are never discarded.
	if keepSeverityAtLeast > domain.SeverityHigh || keepSeverityAtLeast < domain.SeverityLow {
		keepSeverityAtLeast = domain.SeverityHigh
	}
	cutoff := s.now().Add(-retention)
	purged, err := s.store.Audit().PurgeEvents(ctx, cutoff, keepSeverityAtLeast)
	if err != nil {
		s.LogError(ctx, err, "Failed to purge audit events")
		return 0, fmt.Errorf("failed to purge audit events: %w", err)
	}

	system := domain.SystemActor()
	_, appendErr := s.Append(ctx, portssvc.AuditRecord{
		Kind:         domain.EventAuditPurged,
		Severity:     domain.SeverityMedium,
		Actor:        &system,
		Action:       "audit.purge",
		ResourceKind: "audit_log",
		Details: map[string]any{
			"cutoff":              cutoff.Format(time.RFC3339),
			"purged":              purged,
			"keepSeverityAtLeast": keepSeverityAtLeast.String(),
		},
	})
	if appendErr != nil {
		s.LogError(ctx, appendErr, "Failed to record audit purge")
	}
	s.LogInfo(ctx, "Audit events purged", slog.Int64("purged", purged), slog.Time("cutoff", cutoff))
	return purged, nil
}
