package sandbox

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/paycore-next/internal/gateway"
)

func TestChargeApprovesUnderLimit(t *testing.T) {
	adapter := New(nil)
	result, err := adapter.Charge(context.Background(), gateway.ChargeInput{Amount: "59.98"})
	if err != nil {
		t.Fatalf("charge failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected approval, got: %+v", result)
	}
	if !strings.HasPrefix(result.Reference, "sbx_") {
		t.Fatalf("expected sandbox reference, got: %s", result.Reference)
	}
}

func TestChargeDeclinesOverLimit(t *testing.T) {
	adapter := New(map[string]string{"decline_over": "100"})
	result, err := adapter.Charge(context.Background(), gateway.ChargeInput{Amount: "100.01"})
	if err != nil {
		t.Fatalf("charge failed: %v", err)
	}
	if result.Success {
		t.Fatalf("expected decline over limit")
	}
	if result.Reason == "" {
		t.Fatalf("expected decline reason")
	}
}

func TestChargeBadAmountIsUnavailable(t *testing.T) {
	adapter := New(nil)
	_, err := adapter.Charge(context.Background(), gateway.ChargeInput{Amount: "abc"})
	if !errors.Is(err, gateway.ErrUnavailable) {
		t.Fatalf("expected gateway.ErrUnavailable, got: %v", err)
	}
}
