package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound indicates that a requested resource could not be found.
var ErrNotFound = errors.New("resource not found")

// ErrValidation indicates that input data failed validation checks.
var ErrValidation = errors.New("validation error")

// ErrDuplicate indicates that an attempt was made to create a resource that already exists.
var ErrDuplicate = errors.New("resource already exists")

// ErrWriteConflict is the store's signal that a transaction lost a deadlock or serialization race.
// It is the only condition the coordinator retries.
var ErrWriteConflict = errors.New("write conflict")

// ErrVersionMismatch is returned by stores when a compare-and-swap on a versioned row fails.
var ErrVersionMismatch = errors.New("version mismatch")

// Kind is the closed failure taxonomy surfaced by the core.
type Kind string

const (
	PermissionDenied          Kind = "PermissionDenied"
	TenantNotFound            Kind = "TenantNotFound"
	HierarchyCorrupt          Kind = "HierarchyCorrupt"
	InvalidHierarchyLevel     Kind = "InvalidHierarchyLevel"
	CircularReference         Kind = "CircularReference"
	AccountNotFound           Kind = "AccountNotFound"
	AccountSuspended          Kind = "AccountSuspended"
	InvalidCurrency           Kind = "InvalidCurrency"
	InsufficientAvailable     Kind = "InsufficientAvailable"
	DailyLimitExceeded        Kind = "DailyLimitExceeded"
	MonthlyLimitExceeded      Kind = "MonthlyLimitExceeded"
	OverdraftLimitExceeded    Kind = "OverdraftLimitExceeded"
	RateUnavailable           Kind = "RateUnavailable"
	JournalImbalance          Kind = "JournalImbalance"
	VersionConflict           Kind = "VersionConflict"
	TransactionTimeout        Kind = "TransactionTimeout"
	TransactionRetryExhausted Kind = "TransactionRetryExhausted"
	InvalidStateTransition    Kind = "InvalidStateTransition"
	AuditIntegrityFailure     Kind = "AuditIntegrityFailure"
	AlertDeliveryFailed       Kind = "AlertDeliveryFailed"
	InvalidRequest            Kind = "InvalidRequest"
	NotFound                  Kind = "NotFound"
	Conflict                  Kind = "Conflict"
	Internal                  Kind = "Internal"
)

// Metadata describes how a kind is presented at the system boundary.
// Code is stable across versions and safe to expose.
type Metadata struct {
	Code           string
	HTTPStatus     int
	PublicMessage  string
	DetailsAllowed bool
	Critical       bool
}

var metadataByKind = map[Kind]Metadata{
	PermissionDenied:          {Code: "AUTH_PERMISSION_DENIED", HTTPStatus: http.StatusForbidden, PublicMessage: "access denied"},
	TenantNotFound:            {Code: "TENANT_NOT_FOUND", HTTPStatus: http.StatusNotFound, PublicMessage: "tenant not found"},
	HierarchyCorrupt:          {Code: "TENANT_HIERARCHY_CORRUPT", HTTPStatus: http.StatusInternalServerError, PublicMessage: "tenant hierarchy is inconsistent", Critical: true},
	InvalidHierarchyLevel:     {Code: "TENANT_INVALID_LEVEL", HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "invalid tenant level", DetailsAllowed: true},
	CircularReference:         {Code: "TENANT_CIRCULAR_REFERENCE", HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "tenant move would create a cycle"},
	AccountNotFound:           {Code: "ACCOUNT_NOT_FOUND", HTTPStatus: http.StatusNotFound, PublicMessage: "account not found"},
	AccountSuspended:          {Code: "ACCOUNT_SUSPENDED", HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "account is not active"},
	InvalidCurrency:           {Code: "ACCOUNT_INVALID_CURRENCY", HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "currency not supported for this operation", DetailsAllowed: true},
	InsufficientAvailable:     {Code: "LEDGER_INSUFFICIENT_AVAILABLE", HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "insufficient available balance"},
	DailyLimitExceeded:        {Code: "LEDGER_DAILY_LIMIT_EXCEEDED", HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "daily limit exceeded"},
	MonthlyLimitExceeded:      {Code: "LEDGER_MONTHLY_LIMIT_EXCEEDED", HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "monthly limit exceeded"},
	OverdraftLimitExceeded:    {Code: "LEDGER_OVERDRAFT_LIMIT_EXCEEDED", HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "overdraft limit exceeded"},
	RateUnavailable:           {Code: "FX_RATE_UNAVAILABLE", HTTPStatus: http.StatusServiceUnavailable, PublicMessage: "exchange rate unavailable"},
	JournalImbalance:          {Code: "LEDGER_JOURNAL_IMBALANCE", HTTPStatus: http.StatusInternalServerError, PublicMessage: "ledger could not be balanced", Critical: true},
	VersionConflict:           {Code: "LEDGER_VERSION_CONFLICT", HTTPStatus: http.StatusConflict, PublicMessage: "transaction was modified concurrently"},
	TransactionTimeout:        {Code: "LEDGER_TRANSACTION_TIMEOUT", HTTPStatus: http.StatusGatewayTimeout, PublicMessage: "operation timed out"},
	TransactionRetryExhausted: {Code: "LEDGER_RETRY_EXHAUSTED", HTTPStatus: http.StatusServiceUnavailable, PublicMessage: "operation could not be completed, try again later", Critical: true},
	InvalidStateTransition:    {Code: "LEDGER_INVALID_STATE_TRANSITION", HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "state transition disallowed", DetailsAllowed: true},
	AuditIntegrityFailure:     {Code: "AUDIT_INTEGRITY_FAILURE", HTTPStatus: http.StatusInternalServerError, PublicMessage: "audit record failed verification", Critical: true},
	AlertDeliveryFailed:       {Code: "AUDIT_ALERT_DELIVERY_FAILED", HTTPStatus: http.StatusInternalServerError, PublicMessage: "alert delivery failed", Critical: true},
	InvalidRequest:            {Code: "VALIDATION_ERROR", HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", DetailsAllowed: true},
	NotFound:                  {Code: "NOT_FOUND", HTTPStatus: http.StatusNotFound, PublicMessage: "resource not found"},
	Conflict:                  {Code: "CONFLICT", HTTPStatus: http.StatusConflict, PublicMessage: "resource already exists"},
	Internal:                  {Code: "INTERNAL_ERROR", HTTPStatus: http.StatusInternalServerError, PublicMessage: "internal server error", Critical: true},
}

// MetadataFor returns the boundary presentation of a kind. Unknown kinds map to Internal.
func MetadataFor(kind Kind) Metadata {
	if meta, ok := metadataByKind[kind]; ok {
		return meta
	}
	return metadataByKind[Internal]
}

// Kinds returns every kind in the taxonomy.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(metadataByKind))
	for k := range metadataByKind {
		kinds = append(kinds, k)
	}
	return kinds
}

// AppError carries a taxonomy kind, a message for logs and an optional cause.
type AppError struct {
	Kind    Kind
	Message string
	Details map[string]any
	Cause   error
}

// New creates an AppError of the given kind.
func New(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

// Newf is New with formatting.
func Newf(kind Kind, format string, args ...any) *AppError {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an AppError of the given kind around err.
func Wrap(kind Kind, err error, message string) *AppError {
	return &AppError{Kind: kind, Message: message, Cause: err}
}

// WithDetails attaches structured details and returns the same error.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// As returns the first AppError in err's chain, or nil.
func As(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// KindOf classifies any error into the taxonomy. Legacy sentinels are
// mapped to their nearest kind; everything else is Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if appErr := As(err); appErr != nil {
		return appErr.Kind
	}
	switch {
	case errors.Is(err, ErrValidation):
		return InvalidRequest
	case errors.Is(err, ErrNotFound):
		return NotFound
	case errors.Is(err, ErrDuplicate):
		return Conflict
	case errors.Is(err, ErrVersionMismatch):
		return VersionConflict
	default:
		return Internal
	}
}

// Is reports whether err classifies as kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
