package domain

// Order lifecycle statuses. A non-terminal order holds debited funds and must
// eventually reach a terminal status; the expiry sweep guarantees that.
const (
	OrderStatusPending       = "PENDING"
	OrderStatusProcessing    = "PROCESSING"
	OrderStatusWaitingForSMS = "WAITING_FOR_SMS"
	OrderStatusCompleted     = "COMPLETED"
	OrderStatusCancelled     = "CANCELLED"
	OrderStatusFailed        = "FAILED"
	OrderStatusExpired       = "EXPIRED"
	OrderStatusRefunded      = "REFUNDED"
)

// Ledger transaction types. Amounts are always positive magnitudes; the sign
// of the balance change is implied by the type.
const (
	TxTypeOrderPayment    = "ORDER_PAYMENT"
	TxTypeRefund          = "REFUND"
	TxTypeDeposit         = "DEPOSIT"
	TxTypeWithdrawal      = "WITHDRAWAL"
	TxTypeAdminAdjustment = "ADMIN_ADJUSTMENT"
	TxTypeBonus           = "BONUS"
	TxTypeReferralReward  = "REFERRAL_REWARD"
)

const (
	TxStatusCompleted = "COMPLETED"
	TxStatusFailed    = "FAILED"
)

// Refund reasons accepted by the order service.
const (
	RefundReasonUserCancelled   = "USER_CANCELLED"
	RefundReasonProviderFailure = "PROVIDER_FAILURE"
	RefundReasonExpired         = "EXPIRED"
	RefundReasonAdminOverride   = "ADMIN_OVERRIDE"
)

const (
	ProfitTypePercentage = "PERCENTAGE"
	ProfitTypeFixed      = "FIXED"
)

const (
	HealthStatusHealthy  = "HEALTHY"
	HealthStatusDegraded = "DEGRADED"
	HealthStatusDown     = "DOWN"
)

const (
	UserStatusActive    = "ACTIVE"
	UserStatusSuspended = "SUSPENDED"
)

var terminalOrderStatuses = map[string]struct{}{
	OrderStatusCompleted: {},
	OrderStatusCancelled: {},
	OrderStatusFailed:    {},
	OrderStatusExpired:   {},
	OrderStatusRefunded:  {},
}

// IsTerminalOrderStatus reports whether an order in the given status is
// immutable except for administrative override.
func IsTerminalOrderStatus(status string) bool {
	_, ok := terminalOrderStatuses[status]
	return ok
}

var debitTxTypes = map[string]struct{}{
	TxTypeOrderPayment: {},
	TxTypeWithdrawal:   {},
}

// IsDebitTxType reports whether the given transaction type decreases the
// balance. Every other type is a credit.
func IsDebitTxType(txType string) bool {
	_, ok := debitTxTypes[txType]
	return ok
}

// RefundStatusForReason maps a refund reason to the terminal order status it
// produces. Unknown reasons fall back to REFUNDED.
func RefundStatusForReason(reason string) string {
	switch reason {
	case RefundReasonUserCancelled:
		return OrderStatusCancelled
	case RefundReasonProviderFailure:
		return OrderStatusFailed
	case RefundReasonExpired:
		return OrderStatusExpired
	default:
		return OrderStatusRefunded
	}
}
