package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/paycore-next/internal/cache"
	"github.com/paycore-next/internal/constants"
	"github.com/paycore-next/internal/gateway"
	"github.com/paycore-next/internal/models"
	"github.com/paycore-next/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// stubAdapter 可编程网关桩，记录扣款次数
type stubAdapter struct {
	charges   int
	result    *gateway.ChargeResult
	chargeErr error
}

func (a *stubAdapter) Name() string {
	return "stub"
}

func (a *stubAdapter) Charge(_ context.Context, _ gateway.ChargeInput) (*gateway.ChargeResult, error) {
	a.charges++
	if a.chargeErr != nil {
		return nil, a.chargeErr
	}
	return a.result, nil
}

func approvedResult() *gateway.ChargeResult {
	return &gateway.ChargeResult{
		Success:   true,
		Reference: "stub_ref_001",
		Raw:       map[string]interface{}{"decision": "approved"},
	}
}

func setupPaymentServiceTest(t *testing.T, adapter gateway.Adapter) (*PaymentService, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:payment_service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Order{},
		&models.Payment{},
		&models.Cancellation{},
		&models.IdempotencyRecord{},
	); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	models.DB = db

	orderRepo := repository.NewOrderRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	cancellationRepo := repository.NewCancellationRepository(db)
	idempotencySvc := NewIdempotencyService(repository.NewIdempotencyRepository(db), 24)
	submissionLock := cache.NewSubmissionLock(30)

	svc := NewPaymentService(orderRepo, paymentRepo, cancellationRepo, idempotencySvc, submissionLock, adapter, nil, "USD", decimal.NewFromInt(100000))
	return svc, db
}

func createPendingOrder(t *testing.T, db *gorm.DB, amount string) *models.Order {
	t.Helper()
	total, err := models.NewMoneyFromString(amount)
	if err != nil {
		t.Fatalf("bad amount %q: %v", amount, err)
	}
	now := time.Now()
	order := &models.Order{
		OrderNo:     fmt.Sprintf("ORD%d", now.UnixNano()),
		UserID:      7,
		Status:      constants.OrderStatusPendingPayment,
		Currency:    "USD",
		TotalAmount: total,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	return order
}

func submitInput(orderID uint, key, amount string) SubmitPaymentInput {
	money, _ := models.NewMoneyFromString(amount)
	return SubmitPaymentInput{
		IdempotencyKey: key,
		OrderID:        orderID,
		UserID:         7,
		Method:         constants.PaymentMethodCard,
		Amount:         money,
		Card: &gateway.Card{
			Number:   "4242424242424242",
			CVV:      "123",
			ExpMonth: 12,
			ExpYear:  2030,
		},
	}
}

func TestSubmitPaymentApprovedCompletesOrder(t *testing.T) {
	adapter := &stubAdapter{result: approvedResult()}
	svc, db := setupPaymentServiceTest(t, adapter)
	order := createPendingOrder(t, db, "59.98")

	input := submitInput(order.ID, uuid.NewString(), "59.98")
	result, err := svc.SubmitPayment(input)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if result.Replayed {
		t.Fatalf("first submission should not be a replay")
	}
	payment := result.Payment
	if payment.Status != constants.PaymentStatusCompleted {
		t.Fatalf("expected completed, got: %s", payment.Status)
	}
	if payment.GatewayReference == "" {
		t.Fatalf("completed payment must carry gateway reference")
	}
	if payment.PaidAt == nil {
		t.Fatalf("expected paid_at set")
	}
	if payment.CardLast4 != "4242" {
		t.Fatalf("expected card last4 persisted, got: %s", payment.CardLast4)
	}
	if adapter.charges != 1 {
		t.Fatalf("expected single charge, got: %d", adapter.charges)
	}

	var reloaded models.Order
	if err := db.First(&reloaded, order.ID).Error; err != nil {
		t.Fatalf("reload order failed: %v", err)
	}
	if reloaded.Status != constants.OrderStatusPaid {
		t.Fatalf("expected order paid, got: %s", reloaded.Status)
	}
	if reloaded.PaidAt == nil {
		t.Fatalf("expected order paid_at set")
	}
}

func TestSubmitPaymentWipesCardAfterValidation(t *testing.T) {
	adapter := &stubAdapter{result: approvedResult()}
	svc, db := setupPaymentServiceTest(t, adapter)
	order := createPendingOrder(t, db, "59.98")

	input := submitInput(order.ID, uuid.NewString(), "59.98")
	if _, err := svc.SubmitPayment(input); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if input.Card.Number != "" || input.Card.CVV != "" {
		t.Fatalf("expected card number and cvv wiped after submit")
	}
}

func TestSubmitPaymentDeclinedPersistsFailedPayment(t *testing.T) {
	adapter := &stubAdapter{result: &gateway.ChargeResult{Success: false, Reason: "insufficient funds"}}
	svc, db := setupPaymentServiceTest(t, adapter)
	order := createPendingOrder(t, db, "59.98")

	result, err := svc.SubmitPayment(submitInput(order.ID, uuid.NewString(), "59.98"))
	if err != nil {
		t.Fatalf("declined submission should not error: %v", err)
	}
	payment := result.Payment
	if payment.Status != constants.PaymentStatusFailed {
		t.Fatalf("expected failed, got: %s", payment.Status)
	}
	if payment.FailureReason != "insufficient funds" {
		t.Fatalf("unexpected failure reason: %s", payment.FailureReason)
	}
	if payment.FailedAt == nil {
		t.Fatalf("expected failed_at set")
	}

	var reloaded models.Order
	if err := db.First(&reloaded, order.ID).Error; err != nil {
		t.Fatalf("reload order failed: %v", err)
	}
	if reloaded.Status != constants.OrderStatusPendingPayment {
		t.Fatalf("declined payment must leave order payable, got: %s", reloaded.Status)
	}
}

func TestSubmitPaymentReplaySkipsGateway(t *testing.T) {
	adapter := &stubAdapter{result: approvedResult()}
	svc, db := setupPaymentServiceTest(t, adapter)
	order := createPendingOrder(t, db, "59.98")

	key := uuid.NewString()
	first, err := svc.SubmitPayment(submitInput(order.ID, key, "59.98"))
	if err != nil {
		t.Fatalf("first submit failed: %v", err)
	}

	second, err := svc.SubmitPayment(submitInput(order.ID, key, "59.98"))
	if err != nil {
		t.Fatalf("replay submit failed: %v", err)
	}
	if !second.Replayed {
		t.Fatalf("expected replayed result")
	}
	if second.Payment.ID != first.Payment.ID {
		t.Fatalf("replay must return original payment, got %d want %d", second.Payment.ID, first.Payment.ID)
	}
	if second.Payment.PaymentNo != first.Payment.PaymentNo {
		t.Fatalf("replay must return original payment_no")
	}
	if second.Payment.GatewayReference != first.Payment.GatewayReference {
		t.Fatalf("replay must return original gateway reference")
	}
	if adapter.charges != 1 {
		t.Fatalf("replay must not charge again, got: %d", adapter.charges)
	}
}

func TestSubmitPaymentReplayFromDBWhenLedgerMissing(t *testing.T) {
	adapter := &stubAdapter{result: approvedResult()}
	svc, db := setupPaymentServiceTest(t, adapter)
	order := createPendingOrder(t, db, "59.98")

	key := uuid.NewString()
	first, err := svc.SubmitPayment(submitInput(order.ID, key, "59.98"))
	if err != nil {
		t.Fatalf("first submit failed: %v", err)
	}

	// 模拟台账被清理但支付记录仍在
	if err := db.Where("key = ?", key).Delete(&models.IdempotencyRecord{}).Error; err != nil {
		t.Fatalf("delete ledger record failed: %v", err)
	}

	second, err := svc.SubmitPayment(submitInput(order.ID, key, "59.98"))
	if err != nil {
		t.Fatalf("resubmit failed: %v", err)
	}
	if !second.Replayed {
		t.Fatalf("expected replay resolved from payments table")
	}
	if second.Payment.ID != first.Payment.ID {
		t.Fatalf("expected original payment, got %d", second.Payment.ID)
	}
	if adapter.charges != 1 {
		t.Fatalf("resubmit must not charge again, got: %d", adapter.charges)
	}
}

func TestSubmitPaymentWithPrecomputedResultSkipsGateway(t *testing.T) {
	adapter := &stubAdapter{result: approvedResult()}
	svc, db := setupPaymentServiceTest(t, adapter)
	order := createPendingOrder(t, db, "59.98")

	input := submitInput(order.ID, uuid.NewString(), "59.98")
	input.ChargeResult = &gateway.ChargeResult{
		Success:   true,
		Reference: "ext_ref_777",
	}
	result, err := svc.SubmitPayment(input)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if result.Payment.Status != constants.PaymentStatusCompleted {
		t.Fatalf("expected completed, got: %s", result.Payment.Status)
	}
	if result.Payment.GatewayReference != "ext_ref_777" {
		t.Fatalf("expected external reference, got: %s", result.Payment.GatewayReference)
	}
	if adapter.charges != 0 {
		t.Fatalf("precomputed result must not reach the gateway, got: %d", adapter.charges)
	}
}

func TestSubmitPaymentFingerprintConflict(t *testing.T) {
	adapter := &stubAdapter{result: approvedResult()}
	svc, db := setupPaymentServiceTest(t, adapter)
	order := createPendingOrder(t, db, "59.98")

	key := uuid.NewString()
	if _, err := svc.SubmitPayment(submitInput(order.ID, key, "59.98")); err != nil {
		t.Fatalf("first submit failed: %v", err)
	}

	// 同一幂等键携带不同金额
	_, err := svc.SubmitPayment(submitInput(order.ID, key, "99.98"))
	if !errors.Is(err, ErrDuplicateSubmission) {
		t.Fatalf("expected ErrDuplicateSubmission, got: %v", err)
	}
	if adapter.charges != 1 {
		t.Fatalf("conflicting submission must not charge, got: %d", adapter.charges)
	}
}

func TestSubmitPaymentGatewayUnavailableRollsBack(t *testing.T) {
	adapter := &stubAdapter{chargeErr: errors.New("connect timeout")}
	svc, db := setupPaymentServiceTest(t, adapter)
	order := createPendingOrder(t, db, "59.98")

	_, err := svc.SubmitPayment(submitInput(order.ID, uuid.NewString(), "59.98"))
	if !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got: %v", err)
	}

	var count int64
	if err := db.Model(&models.Payment{}).Count(&count).Error; err != nil {
		t.Fatalf("count payments failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("gateway outage must roll back pending payment, got %d rows", count)
	}

	var reloaded models.Order
	if err := db.First(&reloaded, order.ID).Error; err != nil {
		t.Fatalf("reload order failed: %v", err)
	}
	if reloaded.Status != constants.OrderStatusPendingPayment {
		t.Fatalf("expected order still payable, got: %s", reloaded.Status)
	}
}

func TestSubmitPaymentValidation(t *testing.T) {
	adapter := &stubAdapter{result: approvedResult()}
	svc, db := setupPaymentServiceTest(t, adapter)
	order := createPendingOrder(t, db, "59.98")

	valid := func() SubmitPaymentInput {
		return submitInput(order.ID, uuid.NewString(), "59.98")
	}

	badKey := valid()
	badKey.IdempotencyKey = "not-a-uuid"
	if _, err := svc.SubmitPayment(badKey); !errors.Is(err, ErrIdempotencyKeyInvalid) {
		t.Fatalf("expected ErrIdempotencyKeyInvalid, got: %v", err)
	}

	emptyKey := valid()
	emptyKey.IdempotencyKey = "  "
	if _, err := svc.SubmitPayment(emptyKey); !errors.Is(err, ErrIdempotencyKeyInvalid) {
		t.Fatalf("expected ErrIdempotencyKeyInvalid for empty key, got: %v", err)
	}

	badMethod := valid()
	badMethod.Method = "bitcoin"
	if _, err := svc.SubmitPayment(badMethod); !errors.Is(err, ErrMethodInvalid) {
		t.Fatalf("expected ErrMethodInvalid, got: %v", err)
	}

	zeroAmount := valid()
	zeroAmount.Amount = models.NewMoneyFromDecimal(decimal.Zero)
	if _, err := svc.SubmitPayment(zeroAmount); !errors.Is(err, ErrAmountInvalid) {
		t.Fatalf("expected ErrAmountInvalid, got: %v", err)
	}

	overMax := valid()
	overMax.Amount = models.NewMoneyFromDecimal(decimal.NewFromInt(100001))
	if _, err := svc.SubmitPayment(overMax); !errors.Is(err, ErrAmountInvalid) {
		t.Fatalf("expected ErrAmountInvalid over max, got: %v", err)
	}

	noCard := valid()
	noCard.Card = nil
	if _, err := svc.SubmitPayment(noCard); !errors.Is(err, ErrCardInvalid) {
		t.Fatalf("expected ErrCardInvalid, got: %v", err)
	}

	badCard := valid()
	badCard.Card.Number = "4242424242424241"
	if _, err := svc.SubmitPayment(badCard); !errors.Is(err, ErrCardInvalid) {
		t.Fatalf("expected ErrCardInvalid for luhn failure, got: %v", err)
	}

	if adapter.charges != 0 {
		t.Fatalf("validation failures must not reach the gateway, got: %d", adapter.charges)
	}
}

func TestSubmitPaymentOrderChecks(t *testing.T) {
	adapter := &stubAdapter{result: approvedResult()}
	svc, db := setupPaymentServiceTest(t, adapter)

	if _, err := svc.SubmitPayment(submitInput(9999, uuid.NewString(), "59.98")); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got: %v", err)
	}

	paid := createPendingOrder(t, db, "59.98")
	if err := db.Model(&models.Order{}).Where("id = ?", paid.ID).Update("status", constants.OrderStatusPaid).Error; err != nil {
		t.Fatalf("mark order paid failed: %v", err)
	}
	if _, err := svc.SubmitPayment(submitInput(paid.ID, uuid.NewString(), "59.98")); !errors.Is(err, ErrOrderNotPayable) {
		t.Fatalf("expected ErrOrderNotPayable for paid order, got: %v", err)
	}

	expired := createPendingOrder(t, db, "59.98")
	past := time.Now().Add(-time.Minute)
	if err := db.Model(&models.Order{}).Where("id = ?", expired.ID).Update("expires_at", past).Error; err != nil {
		t.Fatalf("expire order failed: %v", err)
	}
	if _, err := svc.SubmitPayment(submitInput(expired.ID, uuid.NewString(), "59.98")); !errors.Is(err, ErrOrderNotPayable) {
		t.Fatalf("expected ErrOrderNotPayable for expired order, got: %v", err)
	}

	mismatch := createPendingOrder(t, db, "59.98")
	if _, err := svc.SubmitPayment(submitInput(mismatch.ID, uuid.NewString(), "60.00")); !errors.Is(err, ErrAmountMismatch) {
		t.Fatalf("expected ErrAmountMismatch, got: %v", err)
	}

	foreign := createPendingOrder(t, db, "59.98")
	wrongUser := submitInput(foreign.ID, uuid.NewString(), "59.98")
	wrongUser.UserID = 8
	if _, err := svc.SubmitPayment(wrongUser); !errors.Is(err, ErrOrderNotPayable) {
		t.Fatalf("expected ErrOrderNotPayable for foreign order, got: %v", err)
	}

	if adapter.charges != 0 {
		t.Fatalf("order check failures must not reach the gateway, got: %d", adapter.charges)
	}
}

func TestCancelPaymentReleasesOrder(t *testing.T) {
	adapter := &stubAdapter{result: approvedResult()}
	svc, db := setupPaymentServiceTest(t, adapter)
	order := createPendingOrder(t, db, "59.98")

	result, err := svc.SubmitPayment(submitInput(order.ID, uuid.NewString(), "59.98"))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	cancelled, err := svc.CancelPayment(CancelPaymentInput{
		PaymentID:   result.Payment.ID,
		Reason:      "customer request",
		CancelledBy: "admin",
	})
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if cancelled.Status != constants.PaymentStatusCancelled {
		t.Fatalf("expected cancelled, got: %s", cancelled.Status)
	}
	if cancelled.CancelledAt == nil {
		t.Fatalf("expected cancelled_at set")
	}

	var record models.Cancellation
	if err := db.Where("payment_id = ?", cancelled.ID).First(&record).Error; err != nil {
		t.Fatalf("load cancellation failed: %v", err)
	}
	if record.Reason != "customer request" || record.CancelledBy != "admin" {
		t.Fatalf("unexpected cancellation record: %+v", record)
	}

	var reloaded models.Order
	if err := db.First(&reloaded, order.ID).Error; err != nil {
		t.Fatalf("reload order failed: %v", err)
	}
	if reloaded.Status != constants.OrderStatusPendingPayment {
		t.Fatalf("expected order back to pending payment, got: %s", reloaded.Status)
	}
	if reloaded.PaidAt != nil {
		t.Fatalf("expected order paid_at cleared")
	}
}

func TestCancelPaymentTwiceFails(t *testing.T) {
	adapter := &stubAdapter{result: approvedResult()}
	svc, db := setupPaymentServiceTest(t, adapter)
	order := createPendingOrder(t, db, "59.98")

	result, err := svc.SubmitPayment(submitInput(order.ID, uuid.NewString(), "59.98"))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, err := svc.CancelPayment(CancelPaymentInput{PaymentID: result.Payment.ID, CancelledBy: "admin"}); err != nil {
		t.Fatalf("first cancel failed: %v", err)
	}
	_, err = svc.CancelPayment(CancelPaymentInput{PaymentID: result.Payment.ID, CancelledBy: "admin"})
	if !errors.Is(err, ErrPaymentStateInvalid) {
		t.Fatalf("expected ErrPaymentStateInvalid, got: %v", err)
	}
}

func TestCancelPaymentRequiresCompletedState(t *testing.T) {
	adapter := &stubAdapter{result: &gateway.ChargeResult{Success: false, Reason: "declined"}}
	svc, db := setupPaymentServiceTest(t, adapter)
	order := createPendingOrder(t, db, "59.98")

	result, err := svc.SubmitPayment(submitInput(order.ID, uuid.NewString(), "59.98"))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	_, err = svc.CancelPayment(CancelPaymentInput{PaymentID: result.Payment.ID, CancelledBy: "admin"})
	if !errors.Is(err, ErrPaymentStateInvalid) {
		t.Fatalf("expected ErrPaymentStateInvalid for failed payment, got: %v", err)
	}

	_, err = svc.CancelPayment(CancelPaymentInput{PaymentID: 9999, CancelledBy: "admin"})
	if !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound, got: %v", err)
	}
}

func TestGetPayment(t *testing.T) {
	adapter := &stubAdapter{result: approvedResult()}
	svc, db := setupPaymentServiceTest(t, adapter)
	order := createPendingOrder(t, db, "59.98")

	result, err := svc.SubmitPayment(submitInput(order.ID, uuid.NewString(), "59.98"))
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	got, err := svc.GetPayment(result.Payment.ID)
	if err != nil {
		t.Fatalf("get payment failed: %v", err)
	}
	if got.PaymentNo != result.Payment.PaymentNo {
		t.Fatalf("unexpected payment: %+v", got)
	}

	byNo, err := svc.GetPaymentByNo(result.Payment.PaymentNo)
	if err != nil {
		t.Fatalf("get by no failed: %v", err)
	}
	if byNo.ID != result.Payment.ID {
		t.Fatalf("unexpected payment by no: %+v", byNo)
	}

	if _, err := svc.GetPayment(9999); !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("expected ErrPaymentNotFound, got: %v", err)
	}
}
