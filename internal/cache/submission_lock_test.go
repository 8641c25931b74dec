package cache

import (
	"context"
	"testing"
)

func TestSubmissionLockPassesWhenRedisDisabled(t *testing.T) {
	redisEnabled = false
	lock := NewSubmissionLock(30)

	acquired, token, err := lock.TryAcquire(context.Background(), 42)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if !acquired {
		t.Fatalf("lock must pass through when redis is disabled")
	}
	if token != "" {
		t.Fatalf("expected empty token without redis, got: %s", token)
	}

	// 空 token 释放不应 panic
	lock.Release(context.Background(), 42, token)
}

func TestNewSubmissionLockDefaultsTTL(t *testing.T) {
	lock := NewSubmissionLock(0)
	if lock.ttl.Seconds() != 30 {
		t.Fatalf("expected 30s default ttl, got: %v", lock.ttl)
	}
}
