package worker

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/paycore-next/internal/config"
	"github.com/paycore-next/internal/constants"
	"github.com/paycore-next/internal/models"
	"github.com/paycore-next/internal/provider"
	"github.com/paycore-next/internal/queue"
	"github.com/paycore-next/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupNotifyConsumerTest(t *testing.T, notifyURL, secret string) (*Consumer, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:worker_notify_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.Payment{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	cfg := &config.Config{}
	cfg.Payment.Notify.Enabled = true
	cfg.Payment.Notify.URL = notifyURL
	cfg.Payment.Notify.Secret = secret

	consumer := NewConsumer(&provider.Container{
		Config:      cfg,
		PaymentRepo: repository.NewPaymentRepository(db),
	})
	return consumer, db
}

func seedCompletedPayment(t *testing.T, db *gorm.DB) *models.Payment {
	t.Helper()
	now := time.Now()
	payment := &models.Payment{
		PaymentNo:        fmt.Sprintf("PAYNOTIFY%d", now.UnixNano()),
		OrderID:          42,
		UserID:           7,
		IdempotencyKey:   fmt.Sprintf("notify-%d", now.UnixNano()),
		Method:           constants.PaymentMethodCard,
		Amount:           models.NewMoneyFromDecimal(decimal.NewFromFloat(59.98)),
		Currency:         "USD",
		Status:           constants.PaymentStatusCompleted,
		GatewayProvider:  constants.GatewayProviderSandbox,
		GatewayReference: "sbx_notify_ref",
		CreatedAt:        now,
		UpdatedAt:        now,
		PaidAt:           &now,
	}
	if err := db.Create(payment).Error; err != nil {
		t.Fatalf("create payment failed: %v", err)
	}
	return payment
}

func notifyTask(t *testing.T, paymentID uint, event string) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(queue.PaymentNotifyPayload{PaymentID: paymentID, Event: event})
	if err != nil {
		t.Fatalf("marshal payload failed: %v", err)
	}
	return asynq.NewTask(queue.TaskPaymentNotify, payload)
}

func TestHandlePaymentNotifySignsAndPosts(t *testing.T) {
	var gotBody []byte
	var gotSignature string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = body
		gotSignature = r.Header.Get("X-Notify-Signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	consumer, db := setupNotifyConsumerTest(t, server.URL, "notify-secret")
	payment := seedCompletedPayment(t, db)

	if err := consumer.handlePaymentNotify(context.Background(), notifyTask(t, payment.ID, "completed")); err != nil {
		t.Fatalf("notify failed: %v", err)
	}

	mac := hmac.New(sha256.New, []byte("notify-secret"))
	mac.Write(gotBody)
	if want := hex.EncodeToString(mac.Sum(nil)); gotSignature != want {
		t.Fatalf("signature mismatch: got %s want %s", gotSignature, want)
	}

	var msg notifyMessage
	if err := json.Unmarshal(gotBody, &msg); err != nil {
		t.Fatalf("decode notify body failed: %v", err)
	}
	if msg.PaymentNo != payment.PaymentNo || msg.OrderID != 42 || msg.Event != "completed" {
		t.Fatalf("unexpected notify message: %+v", msg)
	}
	if msg.GatewayReference != "sbx_notify_ref" {
		t.Fatalf("expected gateway reference in notify, got: %s", msg.GatewayReference)
	}
}

func TestHandlePaymentNotifyRetriesOnBadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	consumer, db := setupNotifyConsumerTest(t, server.URL, "notify-secret")
	payment := seedCompletedPayment(t, db)

	if err := consumer.handlePaymentNotify(context.Background(), notifyTask(t, payment.ID, "completed")); err == nil {
		t.Fatalf("expected error for non-2xx notify response")
	}
}

func TestHandlePaymentNotifySkipsWhenDisabled(t *testing.T) {
	consumer, db := setupNotifyConsumerTest(t, "http://127.0.0.1:1/never", "s")
	consumer.Config.Payment.Notify.Enabled = false
	payment := seedCompletedPayment(t, db)

	if err := consumer.handlePaymentNotify(context.Background(), notifyTask(t, payment.ID, "completed")); err != nil {
		t.Fatalf("disabled notify should be a noop, got: %v", err)
	}
}

func TestHandlePaymentNotifySkipsMissingPayment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		t.Errorf("notify endpoint must not be called for missing payment")
	}))
	defer server.Close()

	consumer, _ := setupNotifyConsumerTest(t, server.URL, "s")
	if err := consumer.handlePaymentNotify(context.Background(), notifyTask(t, 9999, "completed")); err != nil {
		t.Fatalf("missing payment should be skipped, got: %v", err)
	}
}
