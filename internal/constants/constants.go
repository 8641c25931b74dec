package constants

// 支付状态常量
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusCancelled = "cancelled"
)

// 支付方式常量
const (
	PaymentMethodCard         = "card"
	PaymentMethodCreditCard   = "credit_card"
	PaymentMethodDebitCard    = "debit_card"
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodMobile       = "mobile"
	PaymentMethodPaypal       = "paypal"
)

// PaymentMethods 支持的支付方式集合
var PaymentMethods = map[string]bool{
	PaymentMethodCard:         true,
	PaymentMethodCreditCard:   true,
	PaymentMethodDebitCard:    true,
	PaymentMethodBankTransfer: true,
	PaymentMethodMobile:       true,
	PaymentMethodPaypal:       true,
}

// IsCardMethod 判断支付方式是否需要卡信息预校验
func IsCardMethod(method string) bool {
	switch method {
	case PaymentMethodCard, PaymentMethodCreditCard, PaymentMethodDebitCard:
		return true
	default:
		return false
	}
}

// 订单状态常量
const (
	OrderStatusPendingPayment = "pending_payment"
	OrderStatusPaid           = "paid"
	OrderStatusCanceled       = "canceled"
)

// 网关提供方常量
const (
	GatewayProviderSandbox = "sandbox"
	GatewayProviderCardGW  = "cardgw"
)

// 异步任务类型常量
const (
	TaskPaymentNotify    = "payment:notify"
	TaskIdempotencySweep = "payment:idempotency_sweep"
)

// 队列名称常量
const (
	QueueDefault  = "default"
	QueueCritical = "critical"
)

// 提交互斥锁 Redis key 前缀
const SubmissionLockPrefix = "paylock"
