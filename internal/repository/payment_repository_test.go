package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/paycore-next/internal/constants"
	"github.com/paycore-next/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupPaymentRepositoryTest(t *testing.T) (*GormPaymentRepository, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:payment_repo_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Order{},
		&models.Payment{},
	); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return NewPaymentRepository(db), db
}

func newTestPayment(orderID uint, key, status string) *models.Payment {
	now := time.Now()
	return &models.Payment{
		PaymentNo:       fmt.Sprintf("PAYTEST%d%s", orderID, key[len(key)-8:]),
		OrderID:         orderID,
		UserID:          7,
		IdempotencyKey:  key,
		Method:          constants.PaymentMethodCard,
		Amount:          models.NewMoneyFromDecimal(decimal.NewFromFloat(59.98)),
		Currency:        "USD",
		Status:          status,
		GatewayProvider: constants.GatewayProviderSandbox,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestPaymentRepositoryGetByIdempotencyKey(t *testing.T) {
	repo, _ := setupPaymentRepositoryTest(t)

	payment := newTestPayment(1, "11111111-aaaa-bbbb-cccc-000000000001", constants.PaymentStatusCompleted)
	if err := repo.Create(payment); err != nil {
		t.Fatalf("create payment failed: %v", err)
	}

	got, err := repo.GetByIdempotencyKey(payment.IdempotencyKey)
	if err != nil {
		t.Fatalf("get by idempotency key failed: %v", err)
	}
	if got == nil || got.ID != payment.ID {
		t.Fatalf("unexpected payment: %+v", got)
	}

	missing, err := repo.GetByIdempotencyKey("11111111-aaaa-bbbb-cccc-ffffffffffff")
	if err != nil {
		t.Fatalf("get missing key failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing key, got: %+v", missing)
	}
}

func TestPaymentRepositoryDuplicateIdempotencyKeyTranslated(t *testing.T) {
	repo, _ := setupPaymentRepositoryTest(t)

	key := "22222222-aaaa-bbbb-cccc-000000000002"
	if err := repo.Create(newTestPayment(1, key, constants.PaymentStatusCompleted)); err != nil {
		t.Fatalf("create first payment failed: %v", err)
	}
	err := repo.Create(newTestPayment(2, key, constants.PaymentStatusPending))
	if err != gorm.ErrDuplicatedKey {
		t.Fatalf("expected gorm.ErrDuplicatedKey, got: %v", err)
	}
}

func TestPaymentRepositoryListAdminFilters(t *testing.T) {
	repo, _ := setupPaymentRepositoryTest(t)

	completed := newTestPayment(10, "33333333-aaaa-bbbb-cccc-000000000003", constants.PaymentStatusCompleted)
	failed := newTestPayment(10, "33333333-aaaa-bbbb-cccc-000000000004", constants.PaymentStatusFailed)
	other := newTestPayment(11, "33333333-aaaa-bbbb-cccc-000000000005", constants.PaymentStatusCompleted)
	for _, p := range []*models.Payment{completed, failed, other} {
		if err := repo.Create(p); err != nil {
			t.Fatalf("create payment failed: %v", err)
		}
	}

	payments, total, err := repo.ListAdmin(PaymentListFilter{OrderID: 10, Status: constants.PaymentStatusCompleted, Page: 1, PageSize: 20})
	if err != nil {
		t.Fatalf("list admin failed: %v", err)
	}
	if total != 1 || len(payments) != 1 {
		t.Fatalf("expected single completed payment for order 10, got total=%d len=%d", total, len(payments))
	}
	if payments[0].ID != completed.ID {
		t.Fatalf("unexpected payment in list: %+v", payments[0])
	}

	_, totalAll, err := repo.ListAdmin(PaymentListFilter{Page: 1, PageSize: 20})
	if err != nil {
		t.Fatalf("list all failed: %v", err)
	}
	if totalAll != 3 {
		t.Fatalf("expected 3 payments total, got: %d", totalAll)
	}
}

func TestPaymentRepositoryListByOrderID(t *testing.T) {
	repo, _ := setupPaymentRepositoryTest(t)

	if err := repo.Create(newTestPayment(20, "44444444-aaaa-bbbb-cccc-000000000006", constants.PaymentStatusFailed)); err != nil {
		t.Fatalf("create payment failed: %v", err)
	}
	if err := repo.Create(newTestPayment(20, "44444444-aaaa-bbbb-cccc-000000000007", constants.PaymentStatusCompleted)); err != nil {
		t.Fatalf("create payment failed: %v", err)
	}

	payments, err := repo.ListByOrderID(20)
	if err != nil {
		t.Fatalf("list by order failed: %v", err)
	}
	if len(payments) != 2 {
		t.Fatalf("expected 2 payments, got: %d", len(payments))
	}
}
