package models

import (
	"time"
)

// Cancellation 支付撤销记录
type Cancellation struct {
	ID          uint      `gorm:"primarykey" json:"id"`               // 主键
	PaymentID   uint      `gorm:"uniqueIndex;not null" json:"payment_id"` // 支付ID
	Reason      string    `gorm:"type:text" json:"reason"`            // 撤销原因
	CancelledBy string    `json:"cancelled_by"`                       // 操作方
	CreatedAt   time.Time `gorm:"index" json:"created_at"`            // 创建时间
}

// TableName 指定表名
func (Cancellation) TableName() string {
	return "cancellations"
}
