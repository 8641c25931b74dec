package sandbox

import (
	"context"
	"fmt"
	"strings"

	"github.com/paycore-next/internal/constants"
	"github.com/paycore-next/internal/gateway"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// 超过该金额的扣款一律拒绝，便于联调失败分支
var defaultDeclineOver = decimal.NewFromInt(9000)

// Adapter 沙箱网关，不发起外部请求
type Adapter struct {
	declineOver decimal.Decimal
}

// New 创建沙箱网关。
// raw 支持 decline_over 覆盖默认拒绝阈值。
func New(raw map[string]string) *Adapter {
	adapter := &Adapter{declineOver: defaultDeclineOver}
	if raw != nil {
		if v, ok := raw["decline_over"]; ok {
			if d, err := decimal.NewFromString(strings.TrimSpace(v)); err == nil && d.IsPositive() {
				adapter.declineOver = d
			}
		}
	}
	return adapter
}

// Name 网关名称
func (a *Adapter) Name() string {
	return constants.GatewayProviderSandbox
}

// Charge 沙箱扣款：金额超阈值拒绝，其余批准
func (a *Adapter) Charge(_ context.Context, input gateway.ChargeInput) (*gateway.ChargeResult, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(input.Amount))
	if err != nil {
		return nil, fmt.Errorf("%w: bad amount %q", gateway.ErrUnavailable, input.Amount)
	}
	if amount.GreaterThan(a.declineOver) {
		return &gateway.ChargeResult{
			Success: false,
			Reason:  "amount over sandbox limit",
			Raw: map[string]interface{}{
				"provider": a.Name(),
				"decision": "declined",
			},
		}, nil
	}
	return &gateway.ChargeResult{
		Success:   true,
		Reference: "sbx_" + uuid.NewString(),
		Raw: map[string]interface{}{
			"provider": a.Name(),
			"decision": "approved",
		},
	}, nil
}
