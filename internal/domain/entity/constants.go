package entity

// User role constants
const (
	RoleEmployee = "employee"
	RoleManager  = "manager"
	RoleAdmin    = "admin"
)

// Expense category constants
const (
	CategoryTravel        = "travel"
	CategoryMeal          = "meal"
	CategoryAccommodation = "accommodation"
	CategoryEquipment     = "equipment"
	CategoryOther         = "other"
)

// Notification status constants
const (
	NotificationStatusPending = "PENDING"
	NotificationStatusSent    = "SENT"
	NotificationStatusFailed  = "FAILED"
)

// Notification audience constants
const (
	AudienceManagersAdmins = "managers_admins"
	AudienceSubmitter      = "submitter"
)

// Audit entity type constants
const (
	AuditEntityExpense  = "expense"
	AuditEntityApproval = "approval_record"
	AuditEntityWorkflow = "workflow_definition"
)

// Audit action constants
const (
	AuditActionExpenseCreated   = "expense.created"
	AuditActionExpenseSubmitted = "expense.submitted"
	AuditActionExpenseRouted    = "expense.routed"
	AuditActionExpenseApproved  = "expense.approved"
	AuditActionExpenseRejected  = "expense.rejected"
	AuditActionApprovalDecided  = "approval.decided"
	AuditActionWorkflowCreated  = "workflow.created"
	AuditActionWorkflowUpdated  = "workflow.updated"
	AuditActionWorkflowDeleted  = "workflow.deleted"
)

// BaseCurrency is the currency amountInBaseCurrency is expressed in
const BaseCurrency = "USD"
