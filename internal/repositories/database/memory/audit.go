package memory

import (
	"context"
	"sort"
	"time"

	"github.com/SscSPs/fx_ledger/internal/apperrors"
	"github.com/SscSPs/fx_ledger/internal/core/domain"
)

func (s *scope) allEvents() []domain.AuditEvent {
	s.db.mu.RLock()
	out := append([]domain.AuditEvent(nil), s.db.events...)
	s.db.mu.RUnlock()
	if s.tx != nil {
		out = append(out, s.tx.events...)
	}
	return out
}

func (s *scope) FindEventByID(_ context.Context, eventID string) (*domain.AuditEvent, error) {
	for _, e := range s.allEvents() {
		if e.EventID == eventID {
			return &e, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (s *scope) QueryEvents(_ context.Context, filter domain.AuditFilter) ([]domain.AuditEvent, *string, error) {
	kinds := make(map[domain.EventKind]bool, len(filter.Kinds))
	for _, k := range filter.Kinds {
		kinds[k] = true
	}
	var matched []domain.AuditEvent
	for _, e := range s.allEvents() {
		if filter.TenantID != nil && (e.TenantID == nil || *e.TenantID != *filter.TenantID) {
			continue
		}
		if filter.ActorID != nil && (e.ActorID == nil || *e.ActorID != *filter.ActorID) {
			continue
		}
		if len(kinds) > 0 && !kinds[e.Kind] {
			continue
		}
		if e.Severity < filter.MinSeverity {
			continue
		}
		if filter.From != nil && e.Timestamp.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !e.Timestamp.Before(*filter.To) {
			continue
		}
		matched = append(matched, e)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].Timestamp.Before(matched[j].Timestamp)
		}
		return matched[i].EventID < matched[j].EventID
	})
	return paginate(matched, domain.Page{Limit: filter.Limit, NextToken: filter.NextToken}, func(e domain.AuditEvent) keyset {
		return keyset{at: e.Timestamp, id: e.EventID}
	})
}

func (s *scope) AppendEvent(_ context.Context, event domain.AuditEvent) error {
	return s.mutate(func(st *txState) error {
		st.events = append(st.events, event)
		return nil
	})
}

func (s *scope) PurgeEvents(_ context.Context, olderThan time.Time, keepSeverityAtLeast domain.Severity) (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	kept := s.db.events[:0]
	var purged int64
	for _, e := range s.db.events {
		if e.Timestamp.Before(olderThan) && e.Severity < keepSeverityAtLeast {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	s.db.events = kept
	return purged, nil
}
