package memory

import (
	"fmt"
	"time"

	"github.com/SscSPs/fx_ledger/internal/apperrors"
	"github.com/SscSPs/fx_ledger/internal/core/domain"
	"github.com/SscSPs/fx_ledger/internal/utils/pagination"
)

type keyset struct {
	at time.Time
	id string
}

func (k keyset) after(other keyset) bool {
	if !k.at.Equal(other.at) {
		return k.at.After(other.at)
	}
	return k.id > other.id
}

// paginate slices an already ordered list by keyset cursor.
func paginate[T any](items []T, page domain.Page, key func(T) keyset) ([]T, *string, error) {
	start := 0
	if page.NextToken != nil && *page.NextToken != "" {
		at, id, err := pagination.DecodeToken(*page.NextToken)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
		}
		cursor := keyset{at: at, id: id}
		start = len(items)
		for i, item := range items {
			if key(item).after(cursor) {
				start = i
				break
			}
		}
	}
	limit := pagination.NormalizeLimit(page.Limit)
	end := start + limit
	if end >= len(items) {
		return items[start:], nil, nil
	}
	last := key(items[end-1])
	token := pagination.EncodeToken(last.at, last.id)
	return items[start:end], &token, nil
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
