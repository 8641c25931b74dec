package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/paycore-next/internal/constants"
	"github.com/paycore-next/internal/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseLockScript 仅当持有 token 匹配时删除锁
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// SubmissionLock 支付提交互斥锁，按订单维度互斥。
// Redis 不可用时整体放行，唯一性最终由数据库幂等键约束兜底。
type SubmissionLock struct {
	ttl time.Duration
}

// NewSubmissionLock 创建提交互斥锁
func NewSubmissionLock(ttlSeconds int) *SubmissionLock {
	if ttlSeconds <= 0 {
		ttlSeconds = 30
	}
	return &SubmissionLock{ttl: time.Duration(ttlSeconds) * time.Second}
}

// TryAcquire 尝试获取订单对应的锁，返回是否获取成功与释放用 token
func (l *SubmissionLock) TryAcquire(ctx context.Context, orderID uint) (bool, string, error) {
	if !Enabled() {
		return true, "", nil
	}
	key := l.lockKey(orderID)
	token := uuid.NewString()
	ok, err := Client().SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		logger.Warnw("submission_lock_acquire_failed",
			"order_id", orderID,
			"error", err,
		)
		return true, "", nil
	}
	if !ok {
		return false, "", nil
	}
	return true, token, nil
}

// Release 释放锁，token 不匹配时不删除
func (l *SubmissionLock) Release(ctx context.Context, orderID uint, token string) {
	if !Enabled() || strings.TrimSpace(token) == "" {
		return
	}
	key := l.lockKey(orderID)
	if err := releaseLockScript.Run(ctx, Client(), []string{key}, token).Err(); err != nil && err != redis.Nil {
		logger.Warnw("submission_lock_release_failed",
			"order_id", orderID,
			"error", err,
		)
	}
}

func (l *SubmissionLock) lockKey(orderID uint) string {
	return buildKey(fmt.Sprintf("%s:%d", constants.SubmissionLockPrefix, orderID))
}
