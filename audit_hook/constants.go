package audithook

// Action constants for audit events.
const (
	// Vault administration actions
	ActionVaultInitialized   = "vault.initialized"
	ActionMinTopupChanged    = "settings.min_topup_changed"
	ActionGracePeriodChanged = "settings.grace_period_changed"
	ActionAdminRotated       = "admin.rotated"
	ActionFundsRecovered     = "funds.recovered"

	// Subscription actions
	ActionPlanTemplateCreated  = "plan_template.created"
	ActionSubscriptionCreated  = "subscription.created"
	ActionFundsDeposited       = "subscription.deposited"
	ActionSubscriptionPaused   = "subscription.paused"
	ActionSubscriptionResumed  = "subscription.resumed"
	ActionSubscriptionCanceled = "subscription.cancelled"
	ActionSubscriptionLapsed   = "subscription.lapsed"
	ActionSubscriberWithdrawal = "subscription.withdrawn"

	// Charge actions
	ActionSubscriptionCharged = "charge.interval"
	ActionChargeFailed        = "charge.failed"
	ActionUsageCharged        = "charge.usage"
	ActionOneOffCharged       = "charge.one_off"
	ActionBatchCharged        = "charge.batch"

	// Merchant actions
	ActionMerchantWithdrawal = "merchant.withdrawn"
)

// Resource constants for audit events.
const (
	ResourceVault        = "vault"
	ResourcePlanTemplate = "plan_template"
	ResourceSubscription = "subscription"
	ResourceBatch        = "batch"
	ResourceMerchant     = "merchant"
	ResourceRecovery     = "recovery"
)

// Category constants for audit events.
const (
	CategoryAdmin        = "admin"
	CategoryBilling      = "billing"
	CategorySubscription = "subscription"
	CategoryPayment      = "payment"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
