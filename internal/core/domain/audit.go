package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Severity is ordered: low < medium < high < critical.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityLow:      "low",
	SeverityMedium:   "medium",
	SeverityHigh:     "high",
	SeverityCritical: "critical",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseSeverity maps a stored name to a Severity.
func ParseSeverity(name string) (Severity, bool) {
	for s, n := range severityNames {
		if n == name {
			return s, true
		}
	}
	return 0, false
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	parsed, ok := ParseSeverity(string(b))
	if !ok {
		return fmt.Errorf("unknown severity %q", string(b))
	}
	*s = parsed
	return nil
}

// RequiresAlert reports whether events of this severity go to the alert sink.
func (s Severity) RequiresAlert() bool {
	return s >= SeverityHigh
}

// EventKind is the closed taxonomy of audit events. Failure events reuse the
// error kind names of the core.
type EventKind string

const (
	EventTransferCompleted         EventKind = "TRANSFER_COMPLETED"
	EventExchangeCompleted         EventKind = "CURRENCY_EXCHANGE_COMPLETED"
	EventTradeCompleted            EventKind = "TRADE_COMPLETED"
	EventRemittanceCompleted       EventKind = "REMITTANCE_COMPLETED"
	EventFeePosted                 EventKind = "FEE_POSTED"
	EventAdjustmentPosted          EventKind = "ADJUSTMENT_POSTED"
	EventRefundPosted              EventKind = "REFUND_POSTED"
	EventBatchCompleted            EventKind = "BATCH_COMPLETED"
	EventTransactionCreated        EventKind = "TRANSACTION_CREATED"
	EventPaymentAdded              EventKind = "PAYMENT_ADDED"
	EventPaymentVerified           EventKind = "PAYMENT_VERIFIED"
	EventTransactionCancelled      EventKind = "TRANSACTION_CANCELLED"
	EventTransactionFailed         EventKind = "TRANSACTION_FAILED"
	EventTransactionRolledBack     EventKind = "TRANSACTION_ROLLED_BACK"
	EventAccountCreated            EventKind = "ACCOUNT_CREATED"
	EventAccountStatusChanged      EventKind = "ACCOUNT_STATUS_CHANGED"
	EventAccountLimitsUpdated      EventKind = "ACCOUNT_LIMITS_UPDATED"
	EventFundsFrozen               EventKind = "FUNDS_FROZEN"
	EventFundsUnfrozen             EventKind = "FUNDS_UNFROZEN"
	EventTenantCreated             EventKind = "TENANT_CREATED"
	EventTenantMoved               EventKind = "TENANT_MOVED"
	EventTenantDeactivated         EventKind = "TENANT_DEACTIVATED"
	EventUserCreated               EventKind = "USER_CREATED"
	EventUserDeactivated           EventKind = "USER_DEACTIVATED"
	EventRatePublished             EventKind = "EXCHANGE_RATE_PUBLISHED"
	EventJournalRebuilt            EventKind = "JOURNAL_REBUILT"
	EventAuditPurged               EventKind = "AUDIT_PURGED"
	EventLoginSucceeded            EventKind = "LOGIN_SUCCEEDED"
	EventLoginFailed               EventKind = "LOGIN_FAILED"
	EventSuspiciousActivity        EventKind = "SuspiciousActivity"
	EventAuthorizationFailure      EventKind = "AuthorizationFailure"
	EventAlertDeliveryFailed       EventKind = "AlertDeliveryFailed"
	EventAuditIntegrityFailure     EventKind = "AuditIntegrityFailure"
	EventTransactionTimeout        EventKind = "TransactionTimeout"
	EventTransactionRetryExhausted EventKind = "TransactionRetryExhausted"
)

// Detection rule names carried in the action of SuspiciousActivity events.
const (
	RuleMultipleFailedLogins     = "MultipleFailedLogins"
	RuleUnusualFinancialActivity = "UnusualFinancialActivity"
)

var financialEvents = map[EventKind]struct{}{
	EventTransferCompleted:     {},
	EventExchangeCompleted:     {},
	EventTradeCompleted:        {},
	EventRemittanceCompleted:   {},
	EventFeePosted:             {},
	EventAdjustmentPosted:      {},
	EventRefundPosted:          {},
	EventBatchCompleted:        {},
	EventTransactionCreated:    {},
	EventPaymentAdded:          {},
	EventTransactionRolledBack: {},
}

// IsFinancial reports whether the kind counts toward unusual-activity detection.
func (k EventKind) IsFinancial() bool {
	_, ok := financialEvents[k]
	return ok
}

// AuditEvent is an append-only, checksummed record.
// RequestIP and UserAgent are stored encrypted.
type AuditEvent struct {
	EventID      string          `json:"eventID"` // Primary Key (e.g., UUID)
	Timestamp    time.Time       `json:"timestamp"`
	Kind         EventKind       `json:"kind"`
	Severity     Severity        `json:"severity"`
	ActorID      *string         `json:"actorID"`  // Nil for system events
	TenantID     *string         `json:"tenantID"` // Nil for platform events
	Action       string          `json:"action"`
	ResourceKind string          `json:"resourceKind"`
	ResourceID   string          `json:"resourceID"`
	Details      json.RawMessage `json:"details"`
	RequestIP    string          `json:"requestIP"`
	UserAgent    string          `json:"userAgent"`
	Checksum     string          `json:"checksum"`
}

// AuditFilter selects events for queries, verification and detection.
type AuditFilter struct {
	TenantID    *string
	ActorID     *string
	Kinds       []EventKind
	MinSeverity Severity
	From        *time.Time
	To          *time.Time
	Limit       int
	NextToken   *string
}

// AuditVerification summarizes an integrity check over a range of events.
type AuditVerification struct {
	TenantID string    `json:"tenantID"`
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
	Checked  int       `json:"checked"`
	Failed   []string  `json:"failed"` // Event ids whose checksum did not match
	Passed   bool      `json:"passed"`
}
