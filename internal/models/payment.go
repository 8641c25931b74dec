package models

import (
	"time"
)

// Payment 支付记录
type Payment struct {
	ID               uint       `gorm:"primarykey" json:"id"`                            // 主键
	PaymentNo        string     `gorm:"uniqueIndex;not null" json:"payment_no"`          // 支付单号
	OrderID          uint       `gorm:"index;not null" json:"order_id"`                  // 订单ID
	UserID           uint       `gorm:"index" json:"user_id"`                            // 用户ID
	IdempotencyKey   string     `gorm:"uniqueIndex;not null" json:"idempotency_key"`     // 幂等键
	Method           string     `gorm:"not null" json:"method"`                          // 支付方式
	Amount           Money      `gorm:"type:decimal(20,2);not null" json:"amount"`       // 支付金额
	Currency         string     `gorm:"not null" json:"currency"`                        // 币种
	Status           string     `gorm:"index;not null" json:"status"`                    // 支付状态
	GatewayProvider  string     `gorm:"not null" json:"gateway_provider"`                // 网关提供方
	GatewayReference string     `gorm:"index" json:"gateway_reference"`                  // 网关流水号
	GatewayPayload   JSON       `gorm:"type:json" json:"gateway_payload"`                // 网关原始响应
	FailureReason    string     `gorm:"type:text" json:"failure_reason,omitempty"`       // 失败原因
	CardLast4        string     `gorm:"type:varchar(4)" json:"card_last4,omitempty"`     // 卡号后四位
	CreatedAt        time.Time  `gorm:"index" json:"created_at"`                         // 创建时间
	UpdatedAt        time.Time  `gorm:"index" json:"updated_at"`                         // 更新时间
	PaidAt           *time.Time `gorm:"index" json:"paid_at"`                            // 支付完成时间
	FailedAt         *time.Time `json:"failed_at,omitempty"`                             // 失败时间
	CancelledAt      *time.Time `json:"cancelled_at,omitempty"`                          // 撤销时间
}

// TableName 指定表名
func (Payment) TableName() string {
	return "payments"
}
