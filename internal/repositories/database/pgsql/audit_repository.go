package pgsql

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
	portsrepo "github.com/SscSPs/fx_ledger/internal/core/ports/repositories"
	"github.com/jackc/pgx/v5"
)

type PgxAuditRepository struct {
	BaseRepository
}

var _ portsrepo.AuditRepositoryFacade = (*PgxAuditRepository)(nil)

const eventColumns = `event_id, ts, kind, severity, actor_id, tenant_id, action, resource_kind,
	resource_id, details, request_ip, user_agent, checksum`

func scanEvent(row pgx.Row) (domain.AuditEvent, error) {
	var (
		e        domain.AuditEvent
		severity int16
		details  string
	)
	err := row.Scan(
		&e.EventID, &e.Timestamp, &e.Kind, &severity, &e.ActorID, &e.TenantID, &e.Action, &e.ResourceKind,
		&e.ResourceID, &details, &e.RequestIP, &e.UserAgent, &e.Checksum,
	)
	e.Severity = domain.Severity(severity)
	e.Details = json.RawMessage(details)
	e.Timestamp = utc(e.Timestamp)
	return e, err
}

// FindEventByID retrieves one event.
func (r *PgxAuditRepository) FindEventByID(ctx context.Context, eventID string) (*domain.AuditEvent, error) {
	e, err := scanEvent(r.q.QueryRow(ctx, `SELECT `+eventColumns+` FROM audit_events WHERE event_id = $1`, eventID))
	if err != nil {
		return nil, mapError(err, "failed to find audit event %s", eventID)
	}
	return &e, nil
}

// QueryEvents returns a keyset page ordered by timestamp then id.
func (r *PgxAuditRepository) QueryEvents(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEvent, *string, error) {
	w := newWhere()
	if filter.TenantID != nil {
		w.add("tenant_id = %s", *filter.TenantID)
	}
	if filter.ActorID != nil {
		w.add("actor_id = %s", *filter.ActorID)
	}
	if len(filter.Kinds) > 0 {
		kinds := make([]string, 0, len(filter.Kinds))
		for _, k := range filter.Kinds {
			kinds = append(kinds, string(k))
		}
		w.add("kind = ANY(%s)", kinds)
	}
	if filter.MinSeverity > 0 {
		w.add("severity >= %s", int16(filter.MinSeverity))
	}
	if filter.From != nil {
		w.add("ts >= %s", *filter.From)
	}
	if filter.To != nil {
		w.add("ts < %s", *filter.To)
	}
	limit, err := w.page(domain.Page{Limit: filter.Limit, NextToken: filter.NextToken}, "ts", "event_id")
	if err != nil {
		return nil, nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM audit_events %s ORDER BY ts, event_id LIMIT %d`, eventColumns, w.clause(), limit+1)
	rows, err := r.q.Query(ctx, query, w.args...)
	if err != nil {
		return nil, nil, mapError(err, "failed to query audit events")
	}
	defer rows.Close()
	var events []domain.AuditEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, nil, mapError(err, "failed to scan audit event")
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, mapError(err, "failed to iterate audit events")
	}
	events, token := trimPage(events, limit, func(e domain.AuditEvent) keyset {
		return keyset{at: e.Timestamp, id: e.EventID}
	})
	return events, token, nil
}

// AppendEvent inserts an event; the table has no update path.
func (r *PgxAuditRepository) AppendEvent(ctx context.Context, e domain.AuditEvent) error {
	details := string(e.Details)
	if details == "" {
		details = "{}"
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO audit_events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.EventID, e.Timestamp, string(e.Kind), int16(e.Severity), e.ActorID, e.TenantID, e.Action, e.ResourceKind,
		e.ResourceID, details, e.RequestIP, e.UserAgent, e.Checksum,
	)
	return mapError(err, "failed to append audit event %s", e.EventID)
}

// PurgeEvents deletes events older than olderThan whose severity is below keepSeverityAtLeast.
func (r *PgxAuditRepository) PurgeEvents(ctx context.Context, olderThan time.Time, keepSeverityAtLeast domain.Severity) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM audit_events WHERE ts < $1 AND severity < $2`, olderThan, int16(keepSeverityAtLeast))
	if err != nil {
		return 0, mapError(err, "failed to purge audit events")
	}
	return tag.RowsAffected(), nil
}
