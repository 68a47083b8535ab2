package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/SscSPs/fx_ledger/internal/apperrors"
	"github.com/SscSPs/fx_ledger/internal/core/domain"
	portsrepo "github.com/SscSPs/fx_ledger/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/fx_ledger/internal/core/ports/services"
)

// Unit of work defaults.
const (
	DefaultMaxRetries = 3
	DefaultRetryBase  = 100 * time.Millisecond
	DefaultUoWTimeout = 30 * time.Second
)

// uowRunner runs a TxFunc under a deadline and retries it on write conflicts
// with exponential backoff: base*2, base*4, base*8...
type uowRunner struct {
	BaseService
	store      portsrepo.UnitOfWorkStore
	observer   portssvc.Observer
	maxRetries int
	baseDelay  time.Duration
	timeout    time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

func newUoWRunner(store portsrepo.UnitOfWorkStore) *uowRunner {
	return &uowRunner{
		store:      store,
		observer:   portssvc.NopObserver{},
		maxRetries: DefaultMaxRetries,
		baseDelay:  DefaultRetryBase,
		timeout:    DefaultUoWTimeout,
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// backoff returns the delay before retry number attempt (1-based).
func (r *uowRunner) backoff(attempt int) time.Duration {
	return r.baseDelay << attempt
}

func isDeadline(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

type commitHooksKey struct{}

// commitHooks collects work that must only happen once a unit of work has committed.
type commitHooks struct {
	mu  sync.Mutex
	fns []func(context.Context)
}

func (h *commitHooks) add(fn func(context.Context)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fns = append(h.fns, fn)
}

func (h *commitHooks) fire(ctx context.Context) {
	h.mu.Lock()
	fns := h.fns
	h.fns = nil
	h.mu.Unlock()
	for _, fn := range fns {
		fn(ctx)
	}
}

// onCommit defers fn until the enclosing unit of work commits. A rolled back
// unit drops it. Outside a unit of work fn runs at once.
func onCommit(ctx context.Context, fn func(context.Context)) {
	if hooks, ok := ctx.Value(commitHooksKey{}).(*commitHooks); ok {
		hooks.add(fn)
		return
	}
	fn(ctx)
}

// withinTx runs fn in one unit of work and fires its commit hooks only after a
// successful commit. Nested calls share the outermost unit's hooks.
func withinTx(ctx context.Context, store portsrepo.UnitOfWorkStore, fn portsrepo.TxFunc) error {
	if _, nested := ctx.Value(commitHooksKey{}).(*commitHooks); nested {
		return store.WithinTx(ctx, fn)
	}
	hooks := &commitHooks{}
	if err := store.WithinTx(context.WithValue(ctx, commitHooksKey{}, hooks), fn); err != nil {
		return err
	}
	hooks.fire(context.WithoutCancel(ctx))
	return nil
}

// run executes fn in a fresh unit of work per attempt. Deadline expiry is never
// retried. Errors come back classified into the taxonomy.
func (r *uowRunner) run(ctx context.Context, operation string, fn portsrepo.TxFunc) error {
	started := time.Now()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	outcome := "error"
	defer func() {
		r.observer.ObserveUoW(operation, outcome, time.Since(started))
	}()

	for attempt := 0; ; attempt++ {
		err := withinTx(ctx, r.store, fn)
		switch {
		case err == nil:
			outcome = "committed"
			return nil
		case isDeadline(ctx, err):
			outcome = "timeout"
			return apperrors.Wrap(apperrors.TransactionTimeout, err, fmt.Sprintf("%s exceeded %s", operation, r.timeout))
		case errors.Is(err, apperrors.ErrWriteConflict):
			if attempt >= r.maxRetries {
				outcome = "retry_exhausted"
				return apperrors.Wrap(apperrors.TransactionRetryExhausted, err, fmt.Sprintf("%s failed after %d retries", operation, attempt))
			}
			delay := r.backoff(attempt + 1)
			r.observer.ObserveRetry(operation)
			r.LogWarn(ctx, err, "Write conflict, retrying unit of work",
				slog.String("operation", operation),
				slog.Int("attempt", attempt+1),
				slog.Duration("delay", delay))
			if err := r.sleep(ctx, delay); err != nil {
				outcome = "timeout"
				return apperrors.Wrap(apperrors.TransactionTimeout, err, fmt.Sprintf("%s exceeded %s while backing off", operation, r.timeout))
			}
		case errors.Is(err, apperrors.ErrVersionMismatch):
			outcome = "conflict"
			return apperrors.Wrap(apperrors.VersionConflict, err, operation+" lost a concurrent update")
		default:
			outcome = "rejected"
			return err
		}
	}
}

// auditFailure appends a failed unit of work to the audit log. Critical kinds
// raise the severity. Denials are skipped as the gate has already audited them.
func auditFailure(ctx context.Context, base BaseService, audit portssvc.AuditWriterSvc, actor domain.Actor, op domain.Operation, tenantID, resourceKind, resourceID string, cause error) {
	kind := apperrors.KindOf(cause)
	if kind == apperrors.PermissionDenied {
		return
	}
	severity := domain.SeverityHigh
	if apperrors.MetadataFor(kind).Critical {
		severity = domain.SeverityCritical
	}
	var tenant *string
	if tenantID != "" {
		tenant = strPtr(tenantID)
	}
	base.LogWarn(ctx, cause, "Unit of work failed",
		slog.String("operation", op.Name),
		slog.String("kind", string(kind)))
	_, err := audit.Append(context.WithoutCancel(ctx), portssvc.AuditRecord{
		Kind:         domain.EventKind(kind),
		Severity:     severity,
		Actor:        &actor,
		TenantID:     tenant,
		Action:       op.Name,
		ResourceKind: resourceKind,
		ResourceID:   resourceID,
		Details:      map[string]any{"error": cause.Error()},
	})
	if err != nil {
		base.LogError(ctx, err, "Failed to audit unit of work failure", slog.String("operation", op.Name))
	}
}
