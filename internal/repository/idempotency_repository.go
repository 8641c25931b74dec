package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/paycore-next/internal/models"

	"gorm.io/gorm"
)

// IdempotencyRepository 幂等台账数据访问接口
type IdempotencyRepository interface {
	Create(record *models.IdempotencyRecord) error
	GetByKey(key string, now time.Time) (*models.IdempotencyRecord, error)
	DeleteExpired(now time.Time) (int64, error)
	WithTx(tx *gorm.DB) *GormIdempotencyRepository
}

// GormIdempotencyRepository GORM 实现
type GormIdempotencyRepository struct {
	db *gorm.DB
}

// NewIdempotencyRepository 创建幂等台账仓库
func NewIdempotencyRepository(db *gorm.DB) *GormIdempotencyRepository {
	return &GormIdempotencyRepository{db: db}
}

// WithTx 绑定事务
func (r *GormIdempotencyRepository) WithTx(tx *gorm.DB) *GormIdempotencyRepository {
	if tx == nil {
		return r
	}
	return &GormIdempotencyRepository{db: tx}
}

// Create 写入台账记录
func (r *GormIdempotencyRepository) Create(record *models.IdempotencyRecord) error {
	return r.db.Create(record).Error
}

// GetByKey 根据幂等键获取未过期的台账记录
func (r *GormIdempotencyRepository) GetByKey(key string, now time.Time) (*models.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	var record models.IdempotencyRecord
	err := r.db.Where("key = ? AND expires_at > ?", key, now).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// DeleteExpired 删除已过期的台账记录，返回删除条数
func (r *GormIdempotencyRepository) DeleteExpired(now time.Time) (int64, error) {
	result := r.db.Where("expires_at <= ?", now).Delete(&models.IdempotencyRecord{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
