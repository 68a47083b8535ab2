package pgsql

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/SscSPs/fx_ledger/internal/apperrors"
	"github.com/SscSPs/fx_ledger/internal/core/domain"
	portsrepo "github.com/SscSPs/fx_ledger/internal/core/ports/repositories"
	"github.com/jackc/pgx/v5"
)

var errNoUnitOfWork = errors.New("row locks require a unit of work")

type PgxAccountRepository struct {
	BaseRepository
	inTx bool
}

var _ portsrepo.AccountRepositoryFacade = (*PgxAccountRepository)(nil)

const accountColumns = `account_id, account_number, tenant_id, owner_id, currency_code, account_type,
	balance, available, frozen, daily_used, monthly_used, daily_limit, monthly_limit, last_reset_at,
	overdraft_enabled, overdraft_limit, status, created_at, created_by, last_updated_at, last_updated_by`

func scanAccount(row pgx.Row) (domain.Account, error) {
	var a domain.Account
	err := row.Scan(
		&a.AccountID, &a.AccountNumber, &a.TenantID, &a.OwnerID, &a.CurrencyCode, &a.AccountType,
		&a.Balance, &a.Available, &a.Frozen, &a.DailyUsed, &a.MonthlyUsed, &a.DailyLimit, &a.MonthlyLimit, &a.LastResetAt,
		&a.Overdraft.Enabled, &a.Overdraft.Limit, &a.Status, &a.CreatedAt, &a.CreatedBy, &a.LastUpdatedAt, &a.LastUpdatedBy,
	)
	a.LastResetAt, a.CreatedAt, a.LastUpdatedAt = utc(a.LastResetAt), utc(a.CreatedAt), utc(a.LastUpdatedAt)
	return a, err
}

func collectAccounts(rows pgx.Rows) ([]domain.Account, error) {
	defer rows.Close()
	var out []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, mapError(err, "failed to scan account")
		}
		out = append(out, a)
	}
	return out, mapError(rows.Err(), "failed to iterate accounts")
}

// FindAccountByID retrieves an account by its ID.
func (r *PgxAccountRepository) FindAccountByID(ctx context.Context, accountID string) (*domain.Account, error) {
	a, err := scanAccount(r.q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE account_id = $1`, accountID))
	if err != nil {
		return nil, mapError(err, "failed to find account %s", accountID)
	}
	return &a, nil
}

// FindAccountByNumber retrieves an account by its generated number.
func (r *PgxAccountRepository) FindAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	a, err := scanAccount(r.q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE account_number = $1`, accountNumber))
	if err != nil {
		return nil, mapError(err, "failed to find account %s", accountNumber)
	}
	return &a, nil
}

// FindAccountsByIDs retrieves every listed account that exists.
func (r *PgxAccountRepository) FindAccountsByIDs(ctx context.Context, accountIDs []string) (map[string]domain.Account, error) {
	out := make(map[string]domain.Account, len(accountIDs))
	if len(accountIDs) == 0 {
		return out, nil
	}
	rows, err := r.q.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE account_id = ANY($1)`, accountIDs)
	if err != nil {
		return nil, mapError(err, "failed to find accounts")
	}
	accounts, err := collectAccounts(rows)
	if err != nil {
		return nil, err
	}
	for _, a := range accounts {
		out[a.AccountID] = a
	}
	return out, nil
}

// ListAccounts returns a keyset page ordered by creation time then id.
func (r *PgxAccountRepository) ListAccounts(ctx context.Context, filter portsrepo.AccountFilter) ([]domain.Account, *string, error) {
	w := newWhere()
	if len(filter.TenantIDs) > 0 {
		w.add("tenant_id = ANY(%s)", filter.TenantIDs)
	}
	if filter.OwnerID != nil {
		w.add("owner_id = %s", *filter.OwnerID)
	}
	if filter.Status != nil {
		w.add("status = %s", string(*filter.Status))
	}
	if filter.Currency != nil {
		w.add("currency_code = %s", string(*filter.Currency))
	}
	limit, err := w.page(filter.Page, "created_at", "account_id")
	if err != nil {
		return nil, nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM accounts %s ORDER BY created_at, account_id LIMIT %d`, accountColumns, w.clause(), limit+1)
	rows, err := r.q.Query(ctx, query, w.args...)
	if err != nil {
		return nil, nil, mapError(err, "failed to list accounts")
	}
	accounts, err := collectAccounts(rows)
	if err != nil {
		return nil, nil, err
	}
	accounts, token := trimPage(accounts, limit, func(a domain.Account) keyset {
		return keyset{at: a.CreatedAt, id: a.AccountID}
	})
	return accounts, token, nil
}

func accountArgs(a domain.Account) []any {
	return []any{
		a.AccountID, a.AccountNumber, a.TenantID, a.OwnerID, string(a.CurrencyCode), string(a.AccountType),
		a.Balance, a.Available, a.Frozen, a.DailyUsed, a.MonthlyUsed, a.DailyLimit, a.MonthlyLimit, a.LastResetAt,
		a.Overdraft.Enabled, a.Overdraft.Limit, string(a.Status), a.CreatedAt, a.CreatedBy, a.LastUpdatedAt, a.LastUpdatedBy,
	}
}

// SaveAccount inserts a new account.
func (r *PgxAccountRepository) SaveAccount(ctx context.Context, a domain.Account) error {
	placeholders := make([]string, 21)
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	_, err := r.q.Exec(ctx,
		`INSERT INTO accounts (`+accountColumns+`) VALUES (`+strings.Join(placeholders, ", ")+`)`,
		accountArgs(a)...)
	return mapError(err, "failed to save account %s", a.AccountID)
}

// UpdateAccount writes every mutable column. The currency is immutable and never written.
func (r *PgxAccountRepository) UpdateAccount(ctx context.Context, a domain.Account) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE accounts
		SET account_type = $2, balance = $3, available = $4, frozen = $5, daily_used = $6, monthly_used = $7,
			daily_limit = $8, monthly_limit = $9, last_reset_at = $10, overdraft_enabled = $11,
			overdraft_limit = $12, status = $13, last_updated_at = $14, last_updated_by = $15
		WHERE account_id = $1`,
		a.AccountID, string(a.AccountType), a.Balance, a.Available, a.Frozen, a.DailyUsed, a.MonthlyUsed,
		a.DailyLimit, a.MonthlyLimit, a.LastResetAt, a.Overdraft.Enabled,
		a.Overdraft.Limit, string(a.Status), a.LastUpdatedAt, a.LastUpdatedBy,
	)
	if err != nil {
		return mapError(err, "failed to update account %s", a.AccountID)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// NextAccountSequence draws from account_number_seq.
func (r *PgxAccountRepository) NextAccountSequence(ctx context.Context) (int64, error) {
	var seq int64
	if err := r.q.QueryRow(ctx, `SELECT nextval('account_number_seq')`).Scan(&seq); err != nil {
		return 0, mapError(err, "failed to draw account sequence")
	}
	return seq, nil
}

// LockAccountForUpdate takes the row lock with SELECT ... FOR UPDATE. Lock waits
// are bounded by the context deadline; deadlocks surface as write conflicts.
func (r *PgxAccountRepository) LockAccountForUpdate(ctx context.Context, accountID string) (*domain.Account, error) {
	if !r.inTx {
		return nil, errNoUnitOfWork
	}
	a, err := scanAccount(r.q.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE account_id = $1 FOR UPDATE`, accountID))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, mapError(err, "failed to lock account %s", accountID)
	}
	return &a, nil
}
