package service

import "errors"

var (
	// ErrPaymentInvalid 支付请求参数非法
	ErrPaymentInvalid = errors.New("payment request invalid")
	// ErrIdempotencyKeyInvalid 幂等键缺失或格式非法
	ErrIdempotencyKeyInvalid = errors.New("idempotency key invalid")
	// ErrAmountInvalid 金额非法（非正数或超出上限）
	ErrAmountInvalid = errors.New("payment amount invalid")
	// ErrAmountMismatch 金额与订单应付不一致
	ErrAmountMismatch = errors.New("payment amount mismatch")
	// ErrMethodInvalid 不支持的支付方式
	ErrMethodInvalid = errors.New("payment method invalid")
	// ErrCardInvalid 卡信息预校验不通过
	ErrCardInvalid = errors.New("card details invalid")

	// ErrOrderNotFound 订单不存在
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderNotPayable 订单状态不允许支付
	ErrOrderNotPayable = errors.New("order not payable")

	// ErrPaymentNotFound 支付记录不存在
	ErrPaymentNotFound = errors.New("payment not found")
	// ErrPaymentStateInvalid 支付状态不允许该操作
	ErrPaymentStateInvalid = errors.New("payment state invalid")
	// ErrPaymentCreateFailed 支付记录写入失败
	ErrPaymentCreateFailed = errors.New("payment create failed")

	// ErrDuplicateSubmission 幂等键冲突（同键不同请求）
	ErrDuplicateSubmission = errors.New("duplicate submission")
	// ErrSubmissionInFlight 同一幂等键的提交正在处理
	ErrSubmissionInFlight = errors.New("submission in flight")

	// ErrGatewayUnavailable 网关不可达
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)
