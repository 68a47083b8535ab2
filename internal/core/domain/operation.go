package domain

// Operation declares what an entry point requires from its caller.
type Operation struct {
	Name        string
	MinRole     Role
	Permissions []Permission
	Action      TenantAction
}

var (
	OpCreateTenant     = Operation{Name: "tenant.create", MinRole: RoleExchangeAdmin, Permissions: []Permission{PermTenantAdmin}, Action: ActionWrite}
	OpMoveTenant       = Operation{Name: "tenant.move", MinRole: RoleExchangeAdmin, Permissions: []Permission{PermTenantAdmin}, Action: ActionWrite}
	OpDeactivateTenant = Operation{Name: "tenant.deactivate", MinRole: RoleExchangeAdmin, Permissions: []Permission{PermTenantAdmin}, Action: ActionWrite}
	OpReadTenant       = Operation{Name: "tenant.read", MinRole: RoleCustomer, Action: ActionRead}

	OpCreateUser     = Operation{Name: "user.create", MinRole: RoleBranchManager, Permissions: []Permission{PermUserAdmin}, Action: ActionWrite}
	OpDeactivateUser = Operation{Name: "user.deactivate", MinRole: RoleBranchManager, Permissions: []Permission{PermUserAdmin}, Action: ActionWrite}
	OpReadUser       = Operation{Name: "user.read", MinRole: RoleStaff, Action: ActionRead}

	OpCreateAccount       = Operation{Name: "account.create", MinRole: RoleCustomer, Permissions: []Permission{PermAccountRead}, Action: ActionWrite}
	OpReadAccount         = Operation{Name: "account.read", MinRole: RoleCustomer, Permissions: []Permission{PermAccountRead}, Action: ActionRead}
	OpUpdateAccountLimits = Operation{Name: "account.limits", MinRole: RoleBranchManager, Permissions: []Permission{PermAccountWrite}, Action: ActionWrite}
	OpChangeAccountStatus = Operation{Name: "account.status", MinRole: RoleBranchManager, Permissions: []Permission{PermAccountWrite}, Action: ActionWrite}
	OpFreezeFunds         = Operation{Name: "account.freeze", MinRole: RoleBranchManager, Permissions: []Permission{PermAccountFreeze}, Action: ActionWrite}

	OpTransfer        = Operation{Name: "ledger.transfer", MinRole: RoleCustomer, Permissions: []Permission{PermTransfer}, Action: ActionWrite}
	OpExchange        = Operation{Name: "ledger.exchange", MinRole: RoleCustomer, Permissions: []Permission{PermExchange}, Action: ActionWrite}
	OpStagedTrade     = Operation{Name: "ledger.trade", MinRole: RoleStaff, Permissions: []Permission{PermTrade}, Action: ActionWrite}
	OpPayment         = Operation{Name: "ledger.payment", MinRole: RoleStaff, Permissions: []Permission{PermPayment}, Action: ActionWrite}
	OpPostFee         = Operation{Name: "ledger.fee", MinRole: RoleStaff, Permissions: []Permission{PermFee}, Action: ActionWrite}
	OpPostAdjustment  = Operation{Name: "ledger.adjustment", MinRole: RoleExchangeAdmin, Permissions: []Permission{PermAdjust}, Action: ActionWrite}
	OpPostRefund      = Operation{Name: "ledger.refund", MinRole: RoleBranchManager, Permissions: []Permission{PermRefund}, Action: ActionWrite}
	OpRollback        = Operation{Name: "ledger.rollback", MinRole: RoleBranchManager, Permissions: []Permission{PermRollback}, Action: ActionWrite}
	OpBatch           = Operation{Name: "ledger.batch", MinRole: RoleStaff, Permissions: []Permission{PermTransfer, PermExchange}, Action: ActionWrite}
	OpReadTransaction = Operation{Name: "ledger.read", MinRole: RoleCustomer, Permissions: []Permission{PermTransactionRead}, Action: ActionRead}

	OpReadJournal    = Operation{Name: "journal.read", MinRole: RoleStaff, Permissions: []Permission{PermJournalRead}, Action: ActionRead}
	OpRebuildJournal = Operation{Name: "journal.rebuild", MinRole: RoleExchangeAdmin, Permissions: []Permission{PermJournalRead, PermAdjust}, Action: ActionWrite}

	OpReadAudit = Operation{Name: "audit.read", MinRole: RoleBranchManager, Permissions: []Permission{PermAuditRead}, Action: ActionRead}

	OpPublishRate = Operation{Name: "fx.publish", MinRole: RoleBranchManager, Permissions: []Permission{PermRateWrite}, Action: ActionWrite}
	OpReadRate    = Operation{Name: "fx.read", MinRole: RoleCustomer, Action: ActionRead}
)
