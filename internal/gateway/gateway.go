package gateway

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable 网关不可达或响应无法解析
	ErrUnavailable = errors.New("gateway unavailable")
	// ErrProviderUnknown 未知的网关提供方
	ErrProviderUnknown = errors.New("gateway provider unknown")
)

// ChargeInput 网关扣款输入
type ChargeInput struct {
	PaymentNo string // 支付单号
	OrderNo   string // 订单编号
	Amount    string // 金额（2 位小数字符串）
	Currency  string // 币种
	Method    string // 支付方式
	CardLast4 string // 卡号后四位（仅卡类方式）
}

// ChargeResult 网关扣款结果。
// Declined 属于业务结果而非错误：Success=false 且 error 为 nil。
type ChargeResult struct {
	Success   bool                   // 是否扣款成功
	Reference string                 // 网关流水号
	Reason    string                 // 拒绝原因
	Raw       map[string]interface{} // 网关原始响应
}

// Adapter 支付网关适配接口
type Adapter interface {
	Name() string
	Charge(ctx context.Context, input ChargeInput) (*ChargeResult, error)
}
