package services

import (
	"errors"
	"fmt"
	"time"

	portsrepo "github.com/SscSPs/fx_ledger/internal/core/ports/repositories"
	portssvc "github.com/SscSPs/fx_ledger/internal/core/ports/services"
	"github.com/SscSPs/fx_ledger/internal/utils/fieldcrypt"
)

// Settings carries everything the services need beyond the store.
// Zero durations and counts fall back to the package defaults.
type Settings struct {
	HMACKey       []byte
	EncryptionKey string

	MaxRetries int
	RetryBase  time.Duration
	UoWTimeout time.Duration

	FailedLoginThreshold int
	FinancialThreshold   int
	DetectionWindow      time.Duration

	AlertSink    portssvc.AlertSink
	RateCache    portssvc.RateCache
	RateProvider portssvc.RateProvider
	Observer     portssvc.Observer
	Clock        func() time.Time
}

// NewContainer creates the service container with properly initialized dependencies.
func NewContainer(store portsrepo.UnitOfWorkStore, settings Settings) (*portssvc.ServiceContainer, error) {
	if string(settings.HMACKey) == settings.EncryptionKey {
		return nil, errors.New("audit HMAC key must differ from the field encryption key")
	}
	cipher, err := fieldcrypt.New(settings.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create field cipher: %w", err)
	}
	observer := settings.Observer
	if observer == nil {
		observer = portssvc.NopObserver{}
	}

	auditOptions := []AuditOption{WithAuditObserver(observer)}
	if settings.AlertSink != nil {
		auditOptions = append(auditOptions, WithAlertSink(settings.AlertSink))
	}
	if settings.Clock != nil {
		auditOptions = append(auditOptions, WithAuditClock(settings.Clock))
	}
	// The audit log is built first: every other service appends to it.
	audit, err := NewAuditService(store, settings.HMACKey, cipher, auditOptions...)
	if err != nil {
		return nil, err
	}
	authz := NewAuthorizationService(store.Tenants(), audit)

	rateOptions := []ExchangeRateOption{WithRateObserver(observer)}
	if settings.RateCache != nil {
		rateOptions = append(rateOptions, WithRateCache(settings.RateCache))
	}
	if settings.RateProvider != nil {
		rateOptions = append(rateOptions, WithRateProvider(settings.RateProvider))
	}
	if settings.Clock != nil {
		rateOptions = append(rateOptions, WithRateClock(settings.Clock))
	}
	rates := NewExchangeRateService(store, authz, audit, rateOptions...)

	accountOptions := []AccountOption{
		WithAccountObserver(observer),
		WithAccountUoW(settings.MaxRetries, settings.RetryBase, settings.UoWTimeout),
	}
	if settings.Clock != nil {
		accountOptions = append(accountOptions, WithAccountClock(settings.Clock))
	}
	accounts := NewAccountService(store, authz, audit, accountOptions...)
	journal := NewJournalService(store, authz, audit)

	ledgerOptions := []LedgerOption{WithLedgerObserver(observer)}
	if settings.MaxRetries > 0 || settings.RetryBase > 0 {
		maxRetries, base := settings.MaxRetries, settings.RetryBase
		if maxRetries <= 0 {
			maxRetries = DefaultMaxRetries
		}
		if base <= 0 {
			base = DefaultRetryBase
		}
		ledgerOptions = append(ledgerOptions, WithRetryPolicy(maxRetries, base))
	}
	if settings.UoWTimeout > 0 {
		ledgerOptions = append(ledgerOptions, WithUoWTimeout(settings.UoWTimeout))
	}
	if settings.Clock != nil {
		ledgerOptions = append(ledgerOptions, WithLedgerClock(settings.Clock))
	}

	detectionOptions := []DetectionOption{}
	if settings.FailedLoginThreshold > 0 || settings.FinancialThreshold > 0 {
		logins, financial := settings.FailedLoginThreshold, settings.FinancialThreshold
		if logins <= 0 {
			logins = DefaultFailedLoginThreshold
		}
		if financial <= 0 {
			financial = DefaultFinancialThreshold
		}
		detectionOptions = append(detectionOptions, WithDetectionThresholds(logins, financial))
	}
	if settings.DetectionWindow > 0 {
		detectionOptions = append(detectionOptions, WithDetectionWindow(settings.DetectionWindow))
	}

	return &portssvc.ServiceContainer{
		Tenant:        NewTenantService(store, authz, audit),
		User:          NewUserService(store, authz, audit),
		Authorization: authz,
		Account:       accounts,
		Ledger:        NewLedgerService(store, authz, accounts, rates, journal, audit, ledgerOptions...),
		Journal:       journal,
		Audit:         audit,
		Detection:     NewDetectionService(store.Audit(), audit, cipher, detectionOptions...),
		ExchangeRate:  rates,
	}, nil
}
