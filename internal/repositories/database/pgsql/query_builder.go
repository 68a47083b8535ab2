package pgsql

import (
	"fmt"
	"strings"
	"time"

	"github.com/SscSPs/fx_ledger/internal/apperrors"
	"github.com/SscSPs/fx_ledger/internal/core/domain"
	"github.com/SscSPs/fx_ledger/internal/utils/pagination"
)

// where accumulates AND-ed predicates with positional arguments.
type where struct {
	conds []string
	args  []any
}

func newWhere() *where {
	return &where{}
}

// add appends a predicate whose single %s is replaced by the next placeholder.
func (w *where) add(format string, arg any) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(format, fmt.Sprintf("$%d", len(w.args))))
}

// raw appends a predicate without arguments.
func (w *where) raw(cond string) {
	w.conds = append(w.conds, cond)
}

func (w *where) clause() string {
	if len(w.conds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(w.conds, " AND ")
}

// page adds the keyset predicate for page and returns the normalized limit.
func (w *where) page(page domain.Page, timeCol, idCol string) (int, error) {
	if page.NextToken != nil && *page.NextToken != "" {
		at, id, err := pagination.DecodeToken(*page.NextToken)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
		}
		w.args = append(w.args, at, id)
		n := len(w.args)
		w.conds = append(w.conds, fmt.Sprintf("(%s, %s) > ($%d, $%d)", timeCol, idCol, n-1, n))
	}
	return pagination.NormalizeLimit(page.Limit), nil
}

type keyset struct {
	at time.Time
	id string
}

// trimPage drops the look-ahead row fetched with LIMIT n+1 and builds the next cursor.
func trimPage[T any](items []T, limit int, key func(T) keyset) ([]T, *string) {
	if len(items) <= limit {
		return items, nil
	}
	items = items[:limit]
	last := key(items[limit-1])
	token := pagination.EncodeToken(last.at, last.id)
	return items, &token
}
