package pgsql

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/SscSPs/fx_ledger/internal/apperrors"
	"github.com/SscSPs/fx_ledger/internal/core/domain"
	portsrepo "github.com/SscSPs/fx_ledger/internal/core/ports/repositories"
	"github.com/jackc/pgx/v5"
)

type PgxTransactionRepository struct {
	BaseRepository
}

var _ portsrepo.TransactionRepositoryFacade = (*PgxTransactionRepository)(nil)

const transactionColumns = `transaction_id, tenant_id, actor_id, type, from_account_id, to_account_id,
	source_amount, source_currency, rate, converted_amount, target_currency, commission, total, paid, remaining,
	status, version, status_history, idempotency_key, description, direction,
	created_at, created_by, last_updated_at, last_updated_by`

func scanTransaction(row pgx.Row) (domain.Transaction, error) {
	var (
		t         domain.Transaction
		history   []byte
		direction *string
	)
	err := row.Scan(
		&t.TransactionID, &t.TenantID, &t.ActorID, &t.Type, &t.FromAccountID, &t.ToAccountID,
		&t.SourceAmount, &t.SourceCurrency, &t.Rate, &t.ConvertedAmount, &t.TargetCurrency, &t.Commission, &t.Total, &t.Paid, &t.Remaining,
		&t.Status, &t.Version, &history, &t.IdempotencyKey, &t.Description, &direction,
		&t.CreatedAt, &t.CreatedBy, &t.LastUpdatedAt, &t.LastUpdatedBy,
	)
	if err != nil {
		return t, err
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &t.StatusHistory); err != nil {
			return t, fmt.Errorf("decode status history of %s: %w", t.TransactionID, err)
		}
		for i := range t.StatusHistory {
			t.StatusHistory[i].ChangedAt = utc(t.StatusHistory[i].ChangedAt)
		}
	}
	if direction != nil {
		d := domain.AdjustmentDirection(*direction)
		t.Direction = &d
	}
	t.CreatedAt, t.LastUpdatedAt = utc(t.CreatedAt), utc(t.LastUpdatedAt)
	return t, nil
}

func collectTransactions(rows pgx.Rows) ([]domain.Transaction, error) {
	defer rows.Close()
	var out []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, mapError(err, "failed to scan transaction")
		}
		out = append(out, t)
	}
	return out, mapError(rows.Err(), "failed to iterate transactions")
}

func encodeHistory(t domain.Transaction) ([]byte, error) {
	history := t.StatusHistory
	if history == nil {
		history = []domain.StatusChange{}
	}
	raw, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("encode status history of %s: %w", t.TransactionID, err)
	}
	return raw, nil
}

func directionArg(t domain.Transaction) *string {
	if t.Direction == nil {
		return nil
	}
	d := string(*t.Direction)
	return &d
}

// FindTransactionByID retrieves a transaction by ID.
func (r *PgxTransactionRepository) FindTransactionByID(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	t, err := scanTransaction(r.q.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE transaction_id = $1`, transactionID))
	if err != nil {
		return nil, mapError(err, "failed to find transaction %s", transactionID)
	}
	return &t, nil
}

// FindTransactionByIdempotencyKey retrieves the transaction recorded under key for the tenant.
func (r *PgxTransactionRepository) FindTransactionByIdempotencyKey(ctx context.Context, tenantID, key string) (*domain.Transaction, error) {
	t, err := scanTransaction(r.q.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE tenant_id = $1 AND idempotency_key = $2`, tenantID, key))
	if err != nil {
		return nil, mapError(err, "failed to find transaction by idempotency key")
	}
	return &t, nil
}

// ListTransactions returns a keyset page ordered by creation time then id.
func (r *PgxTransactionRepository) ListTransactions(ctx context.Context, filter portsrepo.TransactionFilter) ([]domain.Transaction, *string, error) {
	w := newWhere()
	if len(filter.TenantIDs) > 0 {
		w.add("tenant_id = ANY(%s)", filter.TenantIDs)
	}
	if filter.Status != nil {
		w.add("status = %s", string(*filter.Status))
	}
	if filter.Type != nil {
		w.add("type = %s", string(*filter.Type))
	}
	if filter.AccountID != nil {
		w.add("%s IN (from_account_id, to_account_id)", *filter.AccountID)
	}
	if filter.From != nil {
		w.add("created_at >= %s", *filter.From)
	}
	if filter.To != nil {
		w.add("created_at < %s", *filter.To)
	}
	limit, err := w.page(filter.Page, "created_at", "transaction_id")
	if err != nil {
		return nil, nil, err
	}
	query := fmt.Sprintf(`SELECT %s FROM transactions %s ORDER BY created_at, transaction_id LIMIT %d`, transactionColumns, w.clause(), limit+1)
	rows, err := r.q.Query(ctx, query, w.args...)
	if err != nil {
		return nil, nil, mapError(err, "failed to list transactions")
	}
	txns, err := collectTransactions(rows)
	if err != nil {
		return nil, nil, err
	}
	txns, token := trimPage(txns, limit, func(t domain.Transaction) keyset {
		return keyset{at: t.CreatedAt, id: t.TransactionID}
	})
	return txns, token, nil
}

// SaveTransaction inserts a new transaction; the partial unique index enforces idempotency.
func (r *PgxTransactionRepository) SaveTransaction(ctx context.Context, t domain.Transaction) error {
	history, err := encodeHistory(t)
	if err != nil {
		return err
	}
	_, err = r.q.Exec(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25)`,
		t.TransactionID, t.TenantID, t.ActorID, string(t.Type), t.FromAccountID, t.ToAccountID,
		t.SourceAmount, string(t.SourceCurrency), t.Rate, t.ConvertedAmount, string(t.TargetCurrency), t.Commission, t.Total, t.Paid, t.Remaining,
		string(t.Status), t.Version, history, t.IdempotencyKey, t.Description, directionArg(t),
		t.CreatedAt, t.CreatedBy, t.LastUpdatedAt, t.LastUpdatedBy,
	)
	return mapError(err, "failed to save transaction %s", t.TransactionID)
}

// UpdateTransaction is a compare-and-swap on the version column.
func (r *PgxTransactionRepository) UpdateTransaction(ctx context.Context, t domain.Transaction, expectedVersion int64) error {
	history, err := encodeHistory(t)
	if err != nil {
		return err
	}
	tag, err := r.q.Exec(ctx, `
		UPDATE transactions
		SET rate = $3, converted_amount = $4, commission = $5, total = $6, paid = $7, remaining = $8,
			status = $9, version = $10, status_history = $11, description = $12,
			last_updated_at = $13, last_updated_by = $14
		WHERE transaction_id = $1 AND version = $2`,
		t.TransactionID, expectedVersion,
		t.Rate, t.ConvertedAmount, t.Commission, t.Total, t.Paid, t.Remaining,
		string(t.Status), t.Version, history, t.Description,
		t.LastUpdatedAt, t.LastUpdatedBy,
	)
	if err != nil {
		return mapError(err, "failed to update transaction %s", t.TransactionID)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM transactions WHERE transaction_id = $1)`, t.TransactionID).Scan(&exists); err != nil {
			return mapError(err, "failed to check transaction %s", t.TransactionID)
		}
		if !exists {
			return apperrors.ErrNotFound
		}
		return apperrors.ErrVersionMismatch
	}
	return nil
}

const legColumns = `leg_id, transaction_id, tenant_id, direction, amount, currency, method, proof_refs,
	verified, verified_by, verified_at, created_at, created_by, last_updated_at, last_updated_by`

func scanLeg(row pgx.Row) (domain.PaymentLeg, error) {
	var l domain.PaymentLeg
	err := row.Scan(
		&l.LegID, &l.TransactionID, &l.TenantID, &l.Direction, &l.Amount, &l.Currency, &l.Method, &l.ProofRefs,
		&l.Verified, &l.VerifiedBy, &l.VerifiedAt, &l.CreatedAt, &l.CreatedBy, &l.LastUpdatedAt, &l.LastUpdatedBy,
	)
	l.VerifiedAt = utcPtr(l.VerifiedAt)
	l.CreatedAt, l.LastUpdatedAt = utc(l.CreatedAt), utc(l.LastUpdatedAt)
	return l, err
}

// ListPaymentLegs returns the legs of a transaction in creation order.
func (r *PgxTransactionRepository) ListPaymentLegs(ctx context.Context, transactionID string) ([]domain.PaymentLeg, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+legColumns+` FROM payment_legs WHERE transaction_id = $1 ORDER BY created_at, leg_id`, transactionID)
	if err != nil {
		return nil, mapError(err, "failed to list payment legs of %s", transactionID)
	}
	defer rows.Close()
	var out []domain.PaymentLeg
	for rows.Next() {
		l, err := scanLeg(rows)
		if err != nil {
			return nil, mapError(err, "failed to scan payment leg")
		}
		out = append(out, l)
	}
	return out, mapError(rows.Err(), "failed to iterate payment legs")
}

func proofRefs(l domain.PaymentLeg) []string {
	if l.ProofRefs == nil {
		return []string{}
	}
	return l.ProofRefs
}

// SavePaymentLeg inserts a new leg.
func (r *PgxTransactionRepository) SavePaymentLeg(ctx context.Context, l domain.PaymentLeg) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO payment_legs (`+legColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		l.LegID, l.TransactionID, l.TenantID, string(l.Direction), l.Amount, string(l.Currency), l.Method, proofRefs(l),
		l.Verified, l.VerifiedBy, l.VerifiedAt, l.CreatedAt, l.CreatedBy, l.LastUpdatedAt, l.LastUpdatedBy,
	)
	return mapError(err, "failed to save payment leg %s", l.LegID)
}

// UpdatePaymentLeg writes the verification columns of a leg.
func (r *PgxTransactionRepository) UpdatePaymentLeg(ctx context.Context, l domain.PaymentLeg) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE payment_legs
		SET proof_refs = $2, verified = $3, verified_by = $4, verified_at = $5,
			last_updated_at = $6, last_updated_by = $7
		WHERE leg_id = $1`,
		l.LegID, proofRefs(l), l.Verified, l.VerifiedBy, l.VerifiedAt, l.LastUpdatedAt, l.LastUpdatedBy,
	)
	if err != nil {
		return mapError(err, "failed to update payment leg %s", l.LegID)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
