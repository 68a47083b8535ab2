package pgsql

import (
	"context"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
	portsrepo "github.com/SscSPs/fx_ledger/internal/core/ports/repositories"
	"github.com/jackc/pgx/v5"
)

type PgxJournalRepository struct {
	BaseRepository
}

var _ portsrepo.JournalRepositoryFacade = (*PgxJournalRepository)(nil)

const entryColumns = `entry_id, tenant_id, transaction_id, account_code, account_class, debit, credit,
	currency, description, reversal_of, created_at`

// FindEntriesByTransactionID returns the entries of a transaction, reversals included.
func (r *PgxJournalRepository) FindEntriesByTransactionID(ctx context.Context, transactionID string) ([]domain.JournalEntry, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+entryColumns+` FROM journal_entries WHERE transaction_id = $1 ORDER BY created_at, entry_id`, transactionID)
	if err != nil {
		return nil, mapError(err, "failed to find entries of %s", transactionID)
	}
	defer rows.Close()
	var out []domain.JournalEntry
	for rows.Next() {
		var e domain.JournalEntry
		if err := rows.Scan(
			&e.EntryID, &e.TenantID, &e.TransactionID, &e.AccountCode, &e.AccountClass, &e.Debit, &e.Credit,
			&e.Currency, &e.Description, &e.ReversalOf, &e.CreatedAt,
		); err != nil {
			return nil, mapError(err, "failed to scan journal entry")
		}
		e.CreatedAt = utc(e.CreatedAt)
		out = append(out, e)
	}
	return out, mapError(rows.Err(), "failed to iterate journal entries")
}

// SumEntriesByClass aggregates in the database; NUMERIC sums are exact.
func (r *PgxJournalRepository) SumEntriesByClass(ctx context.Context, tenantID string) ([]domain.TrialBalanceRow, error) {
	rows, err := r.q.Query(ctx, `
		SELECT currency, account_class, COALESCE(SUM(debit), 0), COALESCE(SUM(credit), 0)
		FROM journal_entries
		WHERE tenant_id = $1
		GROUP BY currency, account_class
		ORDER BY currency, account_class`, tenantID)
	if err != nil {
		return nil, mapError(err, "failed to sum journal of tenant %s", tenantID)
	}
	defer rows.Close()
	var out []domain.TrialBalanceRow
	for rows.Next() {
		var row domain.TrialBalanceRow
		if err := rows.Scan(&row.Currency, &row.AccountClass, &row.Debit, &row.Credit); err != nil {
			return nil, mapError(err, "failed to scan trial balance row")
		}
		out = append(out, row)
	}
	return out, mapError(rows.Err(), "failed to iterate trial balance rows")
}

// SaveEntries appends entries with a single batch round trip.
func (r *PgxJournalRepository) SaveEntries(ctx context.Context, entries []domain.JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
			INSERT INTO journal_entries (`+entryColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			e.EntryID, e.TenantID, e.TransactionID, e.AccountCode, string(e.AccountClass), e.Debit, e.Credit,
			string(e.Currency), e.Description, e.ReversalOf, e.CreatedAt,
		)
	}
	br := r.sendBatch(ctx, batch)
	defer br.Close()
	for _, e := range entries {
		if _, err := br.Exec(); err != nil {
			return mapError(err, "failed to save journal entry %s", e.EntryID)
		}
	}
	return nil
}
