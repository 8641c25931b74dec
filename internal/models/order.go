package models

import (
	"time"
)

// Order 订单表
type Order struct {
	ID          uint       `gorm:"primarykey" json:"id"`                                      // 主键
	OrderNo     string     `gorm:"uniqueIndex;not null" json:"order_no"`                      // 订单编号
	UserID      uint       `gorm:"index;not null" json:"user_id"`                             // 用户ID
	Status      string     `gorm:"index;not null" json:"status"`                              // 订单状态
	Currency    string     `gorm:"not null" json:"currency"`                                  // 币种
	TotalAmount Money      `gorm:"type:decimal(20,2);not null;default:0" json:"total_amount"` // 应付金额
	ExpiresAt   *time.Time `gorm:"index" json:"expires_at"`                                   // 过期时间
	PaidAt      *time.Time `gorm:"index" json:"paid_at"`                                      // 支付时间
	CanceledAt  *time.Time `gorm:"index" json:"canceled_at"`                                  // 取消时间
	CreatedAt   time.Time  `gorm:"index" json:"created_at"`                                   // 创建时间
	UpdatedAt   time.Time  `gorm:"index" json:"updated_at"`                                   // 更新时间
}

// TableName 指定表名
func (Order) TableName() string {
	return "orders"
}
