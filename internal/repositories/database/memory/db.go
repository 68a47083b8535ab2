// Package memory is an in-process implementation of the persistence contract.
// Units of work stage their writes and apply them atomically at commit; account
// rows are locked with per-row channels so lock waits honour the context deadline.
package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/SscSPs/fx_ledger/internal/apperrors"
	"github.com/SscSPs/fx_ledger/internal/core/domain"
	"github.com/SscSPs/fx_ledger/internal/core/ports/repositories"
)

// DB holds committed state shared by every Store built on it.
type DB struct {
	mu           sync.RWMutex
	tenants      map[string]domain.Tenant
	users        map[string]domain.User
	accounts     map[string]domain.Account
	transactions map[string]domain.Transaction
	legs         map[string]domain.PaymentLeg
	entries      []domain.JournalEntry
	events       []domain.AuditEvent
	rates        []domain.ExchangeRate

	seq atomic.Int64

	lockMu   sync.Mutex
	rowLocks map[string]chan struct{}
}

// NewDB creates an empty database.
func NewDB() *DB {
	return &DB{
		tenants:      make(map[string]domain.Tenant),
		users:        make(map[string]domain.User),
		accounts:     make(map[string]domain.Account),
		transactions: make(map[string]domain.Transaction),
		legs:         make(map[string]domain.PaymentLeg),
		rowLocks:     make(map[string]chan struct{}),
	}
}

func (db *DB) rowLock(id string) chan struct{} {
	db.lockMu.Lock()
	defer db.lockMu.Unlock()
	ch, ok := db.rowLocks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		db.rowLocks[id] = ch
	}
	return ch
}

// Store is the autocommit view of a DB and the entry point for units of work.
type Store struct {
	*scope
}

var _ repositories.UnitOfWorkStore = (*Store)(nil)

// NewStore wraps db.
func NewStore(db *DB) *Store {
	return &Store{scope: &scope{db: db}}
}

// WithinTx runs fn against a staged scope and applies the staged writes atomically.
func (s *Store) WithinTx(ctx context.Context, fn repositories.TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	st := newTxState()
	defer st.release()

	if err := fn(ctx, &scope{db: s.db, tx: st}); err != nil {
		return err
	}
	// A unit of work that outlived its deadline never commits.
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.commit(st)
}

// scope implements every repository against either committed state (tx == nil)
// or a unit of work.
type scope struct {
	db *DB
	tx *txState
}

func (s *scope) Tenants() repositories.TenantRepositoryFacade { return s }
func (s *scope) Users() repositories.UserRepositoryFacade { return s }
func (s *scope) Accounts() repositories.AccountRepositoryFacade { return s }
func (s *scope) Transactions() repositories.TransactionRepositoryFacade { return s }
func (s *scope) Journal() repositories.JournalRepositoryFacade { return s }
func (s *scope) Audit() repositories.AuditRepositoryFacade { return s }
func (s *scope) ExchangeRates() repositories.ExchangeRateRepositoryFacade { return s }

// mutate runs fn against the open unit of work, or against a one-shot unit
// that commits immediately.
func (s *scope) mutate(fn func(st *txState) error) error {
	if s.tx != nil {
		return fn(s.tx)
	}
	st := newTxState()
	defer st.release()
	if err := fn(st); err != nil {
		return err
	}
	return s.db.commit(st)
}

type txState struct {
	tenants      map[string]domain.Tenant
	newTenants   map[string]bool
	users        map[string]domain.User
	newUsers     map[string]bool
	accounts     map[string]domain.Account
	newAccounts  map[string]bool
	transactions map[string]domain.Transaction
	txnBase      map[string]int64
	legs         map[string]domain.PaymentLeg
	entries      []domain.JournalEntry
	events       []domain.AuditEvent
	rates        []domain.ExchangeRate
	held         []chan struct{}
	heldIDs      map[string]bool
}

func newTxState() *txState {
	return &txState{
		tenants:      make(map[string]domain.Tenant),
		newTenants:   make(map[string]bool),
		users:        make(map[string]domain.User),
		newUsers:     make(map[string]bool),
		accounts:     make(map[string]domain.Account),
		newAccounts:  make(map[string]bool),
		transactions: make(map[string]domain.Transaction),
		txnBase:      make(map[string]int64),
		legs:         make(map[string]domain.PaymentLeg),
		heldIDs:      make(map[string]bool),
	}
}

func (st *txState) release() {
	for _, ch := range st.held {
		<-ch
	}
	st.held = nil
	st.heldIDs = make(map[string]bool)
}

func (db *DB) commit(st *txState) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if err := db.checkConstraints(st); err != nil {
		return err
	}

	for id, t := range st.tenants {
		db.tenants[id] = t
	}
	for id, u := range st.users {
		db.users[id] = cloneUser(u)
	}
	for id, a := range st.accounts {
		db.accounts[id] = a
	}
	for id, t := range st.transactions {
		db.transactions[id] = cloneTxn(t)
	}
	for id, l := range st.legs {
		db.legs[id] = cloneLeg(l)
	}
	db.entries = append(db.entries, st.entries...)
	db.events = append(db.events, st.events...)
	db.rates = append(db.rates, st.rates...)
	return nil
}

func (db *DB) checkConstraints(st *txState) error {
	codes := make(map[string]string)
	for id, t := range db.tenants {
		codes[t.Code] = id
	}
	for id, t := range st.tenants {
		if st.newTenants[id] {
			if _, exists := db.tenants[id]; exists {
				return apperrors.ErrDuplicate
			}
		}
		if owner, ok := codes[t.Code]; ok && owner != id {
			return apperrors.ErrDuplicate
		}
		codes[t.Code] = id
	}

	emails := make(map[string]string)
	for id, u := range db.users {
		emails[userEmailKey(u)] = id
	}
	for id, u := range st.users {
		if st.newUsers[id] {
			if _, exists := db.users[id]; exists {
				return apperrors.ErrDuplicate
			}
		}
		if owner, ok := emails[userEmailKey(u)]; ok && owner != id {
			return apperrors.ErrDuplicate
		}
		emails[userEmailKey(u)] = id
	}

	numbers := make(map[string]string)
	for id, a := range db.accounts {
		numbers[a.AccountNumber] = id
	}
	for id, a := range st.accounts {
		if st.newAccounts[id] {
			if _, exists := db.accounts[id]; exists {
				return apperrors.ErrDuplicate
			}
		}
		if owner, ok := numbers[a.AccountNumber]; ok && owner != id {
			return apperrors.ErrDuplicate
		}
		numbers[a.AccountNumber] = id
	}

	keys := make(map[string]string)
	for id, t := range db.transactions {
		if t.IdempotencyKey != nil {
			keys[t.TenantID+"|"+*t.IdempotencyKey] = id
		}
	}
	for id, t := range st.transactions {
		base, updated := st.txnBase[id]
		committed, exists := db.transactions[id]
		switch {
		case updated && (!exists || committed.Version != base):
			return apperrors.ErrVersionMismatch
		case !updated && exists:
			return apperrors.ErrDuplicate
		}
		if t.IdempotencyKey != nil {
			k := t.TenantID + "|" + *t.IdempotencyKey
			if owner, ok := keys[k]; ok && owner != id {
				return apperrors.ErrDuplicate
			}
			keys[k] = id
		}
	}
	return nil
}

func userEmailKey(u domain.User) string {
	tenant := ""
	if u.TenantID != nil {
		tenant = *u.TenantID
	}
	return tenant + "|" + u.Email
}

func cloneTxn(t domain.Transaction) domain.Transaction {
	t.StatusHistory = append([]domain.StatusChange(nil), t.StatusHistory...)
	return t
}

func cloneLeg(l domain.PaymentLeg) domain.PaymentLeg {
	l.ProofRefs = append([]string(nil), l.ProofRefs...)
	return l
}

func cloneUser(u domain.User) domain.User {
	u.Permissions = append([]domain.Permission(nil), u.Permissions...)
	return u
}
