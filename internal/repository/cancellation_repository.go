package repository

import (
	"errors"

	"github.com/paycore-next/internal/models"

	"gorm.io/gorm"
)

// CancellationRepository 支付撤销记录数据访问接口
type CancellationRepository interface {
	Create(cancellation *models.Cancellation) error
	GetByPaymentID(paymentID uint) (*models.Cancellation, error)
	WithTx(tx *gorm.DB) *GormCancellationRepository
}

// GormCancellationRepository GORM 实现
type GormCancellationRepository struct {
	db *gorm.DB
}

// NewCancellationRepository 创建撤销记录仓库
func NewCancellationRepository(db *gorm.DB) *GormCancellationRepository {
	return &GormCancellationRepository{db: db}
}

// WithTx 绑定事务
func (r *GormCancellationRepository) WithTx(tx *gorm.DB) *GormCancellationRepository {
	if tx == nil {
		return r
	}
	return &GormCancellationRepository{db: tx}
}

// Create 创建撤销记录
func (r *GormCancellationRepository) Create(cancellation *models.Cancellation) error {
	return r.db.Create(cancellation).Error
}

// GetByPaymentID 根据支付 ID 获取撤销记录
func (r *GormCancellationRepository) GetByPaymentID(paymentID uint) (*models.Cancellation, error) {
	var cancellation models.Cancellation
	if err := r.db.Where("payment_id = ?", paymentID).First(&cancellation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cancellation, nil
}
