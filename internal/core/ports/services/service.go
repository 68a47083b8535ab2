package services

// ServiceContainer holds instances of all the application services.
// Handlers, the operator CLI and the scheduler consume services only through it.
type ServiceContainer struct {
	Tenant        TenantSvcFacade
	User          UserSvcFacade
	Authorization AuthorizationSvc
	Account       AccountSvcFacade
	Ledger        LedgerSvcFacade
	Journal       JournalSvcFacade
	Audit         AuditSvcFacade
	Detection     DetectionSvc
	ExchangeRate  ExchangeRateSvcFacade
}
