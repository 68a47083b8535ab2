package pgsql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/SscSPs/fx_ledger/internal/apperrors"
	portsrepo "github.com/SscSPs/fx_ledger/internal/core/ports/repositories"
	"github.com/SscSPs/fx_ledger/internal/middleware"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements the persistence contract on PostgreSQL. The zero scope
// runs on the pool in autocommit mode; WithinTx hands fn a scope bound to a
// SERIALIZABLE transaction.
type Store struct {
	pool *pgxpool.Pool
	q    querier
	inTx bool
}

var _ portsrepo.UnitOfWorkStore = (*Store)(nil)

// NewStore wraps pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, q: pool}
}

func (s *Store) base() BaseRepository { return BaseRepository{q: s.q} }

func (s *Store) Tenants() portsrepo.TenantRepositoryFacade {
	return &PgxTenantRepository{BaseRepository: s.base()}
}

func (s *Store) Users() portsrepo.UserRepositoryFacade {
	return &PgxUserRepository{BaseRepository: s.base()}
}

func (s *Store) Accounts() portsrepo.AccountRepositoryFacade {
	return &PgxAccountRepository{BaseRepository: s.base(), inTx: s.inTx}
}

func (s *Store) Transactions() portsrepo.TransactionRepositoryFacade {
	return &PgxTransactionRepository{BaseRepository: s.base()}
}

func (s *Store) Journal() portsrepo.JournalRepositoryFacade {
	return &PgxJournalRepository{BaseRepository: s.base()}
}

func (s *Store) Audit() portsrepo.AuditRepositoryFacade {
	return &PgxAuditRepository{BaseRepository: s.base()}
}

func (s *Store) ExchangeRates() portsrepo.ExchangeRateRepositoryFacade {
	return &PgxExchangeRateRepository{BaseRepository: s.base()}
}

// WithinTx runs fn in a SERIALIZABLE transaction. Deadlocks and serialization
// failures, whether raised by a statement or at commit, come back wrapped
// around apperrors.ErrWriteConflict so the caller can retry the whole unit.
func (s *Store) WithinTx(ctx context.Context, fn portsrepo.TxFunc) error {
	if s.inTx {
		return fn(ctx, s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return mapError(err, "failed to begin unit of work")
	}
	defer func() {
		// Rollback after a successful commit is a no-op returning ErrTxClosed.
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			middleware.GetLoggerFromCtx(ctx).Warn("Failed to roll back unit of work", slog.String("error", rbErr.Error()))
		}
	}()

	if err := fn(ctx, &Store{pool: s.pool, q: tx, inTx: true}); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if isWriteConflict(err) && !errors.Is(err, apperrors.ErrWriteConflict) {
			return fmt.Errorf("%w: %v", apperrors.ErrWriteConflict, err)
		}
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return mapError(err, "failed to commit unit of work")
	}
	return nil
}
