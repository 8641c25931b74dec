package worker

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/paycore-next/internal/logger"
	"github.com/paycore-next/internal/models"
	"github.com/paycore-next/internal/provider"
	"github.com/paycore-next/internal/queue"

	"github.com/hibiken/asynq"
)

const notifyRequestTimeout = 10 * time.Second

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container

	httpClient *http.Client
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container:  c,
		httpClient: &http.Client{Timeout: notifyRequestTimeout},
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskPaymentNotify, c.handlePaymentNotify)
	mux.HandleFunc(queue.TaskIdempotencySweep, c.handleIdempotencySweep)
}

// notifyMessage 推送给商户回调地址的消息体
type notifyMessage struct {
	PaymentID        uint   `json:"payment_id"`
	PaymentNo        string `json:"payment_no"`
	OrderID          uint   `json:"order_id"`
	Status           string `json:"status"`
	Amount           string `json:"amount"`
	Currency         string `json:"currency"`
	Method           string `json:"method"`
	GatewayReference string `json:"gateway_reference,omitempty"`
	Event            string `json:"event"`
	OccurredAt       string `json:"occurred_at"`
}

func (c *Consumer) handlePaymentNotify(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_payment_notify_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.PaymentNotifyPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_payment_notify_unmarshal_failed", "error", err)
		return err
	}
	if payload.PaymentID == 0 {
		logger.Debugw("worker_payment_notify_skip_invalid_payload", "payment_id", payload.PaymentID)
		return nil
	}

	notifyCfg := c.Config.Payment.Notify
	if !notifyCfg.Enabled || strings.TrimSpace(notifyCfg.URL) == "" {
		logger.Debugw("worker_payment_notify_skip_disabled", "payment_id", payload.PaymentID)
		return nil
	}

	payment, err := c.PaymentRepo.GetByID(payload.PaymentID)
	if err != nil {
		logger.Warnw("worker_payment_notify_fetch_failed", "payment_id", payload.PaymentID, "error", err)
		return err
	}
	if payment == nil {
		logger.Debugw("worker_payment_notify_skip_not_found", "payment_id", payload.PaymentID)
		return nil
	}

	msg := buildNotifyMessage(payment, payload.Event)
	body, err := json.Marshal(msg)
	if err != nil {
		logger.Warnw("worker_payment_notify_marshal_failed", "payment_id", payment.ID, "error", err)
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, notifyCfg.URL, bytes.NewReader(body))
	if err != nil {
		logger.Warnw("worker_payment_notify_build_request_failed", "payment_id", payment.ID, "error", err)
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if secret := strings.TrimSpace(notifyCfg.Secret); secret != "" {
		req.Header.Set("X-Notify-Signature", signNotifyBody(body, secret))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Warnw("worker_payment_notify_request_failed", "payment_id", payment.ID, "url", notifyCfg.URL, "error", err)
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Warnw("worker_payment_notify_bad_status", "payment_id", payment.ID, "status", resp.StatusCode)
		return fmt.Errorf("notify endpoint returned status %d", resp.StatusCode)
	}

	logger.Infow("worker_payment_notify_sent",
		"payment_id", payment.ID,
		"payment_no", payment.PaymentNo,
		"event", payload.Event,
	)
	return nil
}

func (c *Consumer) handleIdempotencySweep(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_idempotency_sweep_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	if c.PaymentService == nil {
		logger.Debugw("worker_idempotency_sweep_skip_service_nil")
		return nil
	}
	removed, err := c.PaymentService.SweepIdempotency()
	if err != nil {
		logger.Warnw("worker_idempotency_sweep_failed", "error", err)
		return err
	}
	logger.Infow("worker_idempotency_sweep_done", "removed", removed)
	return nil
}

func buildNotifyMessage(payment *models.Payment, event string) notifyMessage {
	msg := notifyMessage{
		PaymentID:        payment.ID,
		PaymentNo:        payment.PaymentNo,
		OrderID:          payment.OrderID,
		Status:           payment.Status,
		Amount:           payment.Amount.String(),
		Currency:         payment.Currency,
		Method:           payment.Method,
		GatewayReference: payment.GatewayReference,
		Event:            event,
		OccurredAt:       time.Now().UTC().Format(time.RFC3339),
	}
	return msg
}

// signNotifyBody 对消息体做 HMAC-SHA256 签名
func signNotifyBody(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
