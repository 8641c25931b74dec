package service

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/paycore-next/internal/logger"
	"github.com/paycore-next/internal/models"
	"github.com/paycore-next/internal/repository"

	"gorm.io/gorm"
)

// IdempotencyService 幂等台账服务
type IdempotencyService struct {
	idempotencyRepo repository.IdempotencyRepository
	ttl             time.Duration
}

// NewIdempotencyService 创建幂等台账服务
func NewIdempotencyService(idempotencyRepo repository.IdempotencyRepository, ttlHours int) *IdempotencyService {
	if ttlHours <= 0 {
		ttlHours = 24
	}
	return &IdempotencyService{
		idempotencyRepo: idempotencyRepo,
		ttl:             time.Duration(ttlHours) * time.Hour,
	}
}

// Fingerprint 计算请求指纹，覆盖会改变业务结果的字段
func Fingerprint(orderID uint, method string, amount models.Money) string {
	content := fmt.Sprintf("order_id=%d&method=%s&amount=%s", orderID, method, amount.String())
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Lookup 查询未过期的台账记录
func (s *IdempotencyService) Lookup(key string) (*models.IdempotencyRecord, error) {
	return s.idempotencyRepo.GetByKey(key, time.Now())
}

// Record 写入台账记录，并发重复写视作成功
func (s *IdempotencyService) Record(key, fingerprint, response string) error {
	record := &models.IdempotencyRecord{
		Key:                key,
		RequestFingerprint: fingerprint,
		StoredResponse:     response,
		ExpiresAt:          time.Now().Add(s.ttl),
	}
	if err := s.idempotencyRepo.Create(record); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil
		}
		return err
	}
	return nil
}

// SweepExpired 清理过期台账记录
func (s *IdempotencyService) SweepExpired() (int64, error) {
	removed, err := s.idempotencyRepo.DeleteExpired(time.Now())
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		logger.Infow("idempotency_sweep_done", "removed", removed)
	}
	return removed, nil
}
