package pgsql

import (
	"context"
	"time"

	"github.com/SscSPs/fx_ledger/internal/core/domain"
	portsrepo "github.com/SscSPs/fx_ledger/internal/core/ports/repositories"
	"github.com/jackc/pgx/v5"
)

type PgxExchangeRateRepository struct {
	BaseRepository
}

var _ portsrepo.ExchangeRateRepositoryFacade = (*PgxExchangeRateRepository)(nil)

const rateColumns = `exchange_rate_id, tenant_id, from_currency, to_currency, rate, is_active, effective_at,
	source, created_at, created_by, last_updated_at, last_updated_by`

func scanRate(row pgx.Row) (domain.ExchangeRate, error) {
	var r domain.ExchangeRate
	err := row.Scan(
		&r.ExchangeRateID, &r.TenantID, &r.FromCurrency, &r.ToCurrency, &r.Rate, &r.IsActive, &r.EffectiveAt,
		&r.Source, &r.CreatedAt, &r.CreatedBy, &r.LastUpdatedAt, &r.LastUpdatedBy,
	)
	r.EffectiveAt, r.CreatedAt, r.LastUpdatedAt = utc(r.EffectiveAt), utc(r.CreatedAt), utc(r.LastUpdatedAt)
	return r, err
}

// FindActiveRate returns the newest active rate effective at or before at for the exact scope.
func (r *PgxExchangeRateRepository) FindActiveRate(ctx context.Context, from, to domain.CurrencyCode, tenantID string, at time.Time) (*domain.ExchangeRate, error) {
	rate, err := scanRate(r.q.QueryRow(ctx, `
		SELECT `+rateColumns+`
		FROM exchange_rates
		WHERE from_currency = $1 AND to_currency = $2 AND tenant_id = $3 AND is_active AND effective_at <= $4
		ORDER BY effective_at DESC, created_at DESC
		LIMIT 1`,
		string(from), string(to), tenantID, at))
	if err != nil {
		return nil, mapError(err, "failed to find rate %s/%s", from, to)
	}
	return &rate, nil
}

// ListRateHistory returns the newest rates first.
func (r *PgxExchangeRateRepository) ListRateHistory(ctx context.Context, from, to domain.CurrencyCode, tenantID string, limit int) ([]domain.ExchangeRate, error) {
	query := `
		SELECT ` + rateColumns + `
		FROM exchange_rates
		WHERE from_currency = $1 AND to_currency = $2 AND tenant_id = $3
		ORDER BY effective_at DESC, created_at DESC`
	args := []any{string(from), string(to), tenantID}
	if limit > 0 {
		query += ` LIMIT $4`
		args = append(args, limit)
	}
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "failed to list rate history %s/%s", from, to)
	}
	defer rows.Close()
	var out []domain.ExchangeRate
	for rows.Next() {
		rate, err := scanRate(rows)
		if err != nil {
			return nil, mapError(err, "failed to scan exchange rate")
		}
		out = append(out, rate)
	}
	return out, mapError(rows.Err(), "failed to iterate exchange rates")
}

// SaveExchangeRate appends a rate.
func (r *PgxExchangeRateRepository) SaveExchangeRate(ctx context.Context, rate domain.ExchangeRate) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO exchange_rates (`+rateColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rate.ExchangeRateID, rate.TenantID, string(rate.FromCurrency), string(rate.ToCurrency), rate.Rate, rate.IsActive, rate.EffectiveAt,
		rate.Source, rate.CreatedAt, rate.CreatedBy, rate.LastUpdatedAt, rate.LastUpdatedBy,
	)
	return mapError(err, "failed to save exchange rate %s", rate.ExchangeRateID)
}
