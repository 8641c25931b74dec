package models

import (
	"time"
)

// IdempotencyRecord 幂等提交台账记录
type IdempotencyRecord struct {
	ID                 uint      `gorm:"primarykey" json:"id"`             // 主键
	Key                string    `gorm:"uniqueIndex;not null" json:"key"`  // 幂等键
	RequestFingerprint string    `gorm:"not null" json:"request_fingerprint"` // 请求指纹
	StoredResponse     string    `gorm:"type:text" json:"stored_response"` // 首次响应快照
	ExpiresAt          time.Time `gorm:"index;not null" json:"expires_at"` // 过期时间
	CreatedAt          time.Time `gorm:"index" json:"created_at"`          // 创建时间
}

// TableName 指定表名
func (IdempotencyRecord) TableName() string {
	return "idempotency_records"
}
