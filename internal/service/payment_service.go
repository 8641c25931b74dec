package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/paycore-next/internal/cache"
	"github.com/paycore-next/internal/constants"
	"github.com/paycore-next/internal/gateway"
	"github.com/paycore-next/internal/logger"
	"github.com/paycore-next/internal/models"
	"github.com/paycore-next/internal/queue"
	"github.com/paycore-next/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PaymentService 支付服务
type PaymentService struct {
	orderRepo        repository.OrderRepository
	paymentRepo      repository.PaymentRepository
	cancellationRepo repository.CancellationRepository
	idempotencySvc   *IdempotencyService
	submissionLock   *cache.SubmissionLock
	adapter          gateway.Adapter
	queueClient      *queue.Client
	currency         string
	maxAmount        decimal.Decimal
}

// NewPaymentService 创建支付服务
func NewPaymentService(orderRepo repository.OrderRepository, paymentRepo repository.PaymentRepository, cancellationRepo repository.CancellationRepository, idempotencySvc *IdempotencyService, submissionLock *cache.SubmissionLock, adapter gateway.Adapter, queueClient *queue.Client, currency string, maxAmount decimal.Decimal) *PaymentService {
	if strings.TrimSpace(currency) == "" {
		currency = "USD"
	}
	if !maxAmount.IsPositive() {
		maxAmount = decimal.NewFromInt(100000)
	}
	return &PaymentService{
		orderRepo:        orderRepo,
		paymentRepo:      paymentRepo,
		cancellationRepo: cancellationRepo,
		idempotencySvc:   idempotencySvc,
		submissionLock:   submissionLock,
		adapter:          adapter,
		queueClient:      queueClient,
		currency:         currency,
		maxAmount:        maxAmount,
	}
}

// SubmitPaymentInput 提交支付请求
type SubmitPaymentInput struct {
	IdempotencyKey string
	OrderID        uint
	UserID         uint
	Method         string
	Amount         models.Money
	Card           *gateway.Card
	// ChargeResult 非空时表示扣款已在外部完成，直接采用该结果，不再调用网关
	ChargeResult *gateway.ChargeResult
	Context      context.Context
}

// SubmitPaymentResult 提交支付结果
type SubmitPaymentResult struct {
	Payment  *models.Payment
	Replayed bool
}

// CancelPaymentInput 撤销支付请求
type CancelPaymentInput struct {
	PaymentID   uint
	Reason      string
	CancelledBy string
	Context     context.Context
}

// paymentNoCacheTTL 终态支付详情的缓存时长
const paymentNoCacheTTL = 5 * time.Minute

func paymentNoCacheKey(paymentNo string) string {
	return "payment_no:" + paymentNo
}

func paymentLogger(kv ...interface{}) *zap.SugaredLogger {
	if len(kv) == 0 {
		return logger.S()
	}
	return logger.SW(kv...)
}

// SubmitPayment 提交支付。
// 同一幂等键重复提交时返回首次结果，不触发第二次扣款。
func (s *PaymentService) SubmitPayment(input SubmitPaymentInput) (*SubmitPaymentResult, error) {
	cardLast4, err := s.validateSubmitInput(&input)
	if err != nil {
		return nil, err
	}
	ctx := input.Context
	if ctx == nil {
		ctx = context.Background()
	}

	key := strings.TrimSpace(input.IdempotencyKey)
	fingerprint := Fingerprint(input.OrderID, input.Method, input.Amount)
	log := paymentLogger(
		"order_id", input.OrderID,
		"idempotency_key", key,
		"method", input.Method,
	)

	// 台账命中时直接重放首次响应。台账读失败按未命中处理，
	// 重复创建最终由 payments.idempotency_key 唯一约束拦截。
	record, err := s.idempotencySvc.Lookup(key)
	if err != nil {
		log.Warnw("idempotency_lookup_failed", "error", err)
	}
	if record != nil {
		if record.RequestFingerprint != fingerprint {
			return nil, ErrDuplicateSubmission
		}
		replayed, err := decodeStoredPayment(record.StoredResponse)
		if err != nil {
			log.Errorw("idempotency_replay_decode_failed", "error", err)
			return nil, ErrPaymentCreateFailed
		}
		log.Infow("payment_submit_replayed", "payment_id", replayed.ID)
		return &SubmitPaymentResult{Payment: replayed, Replayed: true}, nil
	}

	// 台账缺失但支付已存在时（台账被清理或写入失败），按历史提交处理
	existing, err := s.paymentRepo.GetByIdempotencyKey(key)
	if err != nil {
		log.Warnw("idempotency_payment_lookup_failed", "error", err)
	} else if existing != nil {
		return s.resolveDuplicateSubmission(key, fingerprint, log)
	}

	acquired, token, err := s.submissionLock.TryAcquire(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrSubmissionInFlight
	}
	defer s.submissionLock.Release(ctx, input.OrderID, token)

	var payment *models.Payment
	txErr := models.DB.Transaction(func(tx *gorm.DB) error {
		orderRepo := s.orderRepo.WithTx(tx)
		paymentRepo := s.paymentRepo.WithTx(tx)

		lockedOrder, err := orderRepo.GetByIDForUpdate(input.OrderID)
		if err != nil {
			return err
		}
		if lockedOrder == nil {
			return ErrOrderNotFound
		}
		if lockedOrder.UserID != input.UserID {
			return ErrOrderNotPayable
		}
		if lockedOrder.Status != constants.OrderStatusPendingPayment {
			return ErrOrderNotPayable
		}
		if lockedOrder.ExpiresAt != nil && !lockedOrder.ExpiresAt.After(time.Now()) {
			return ErrOrderNotPayable
		}
		if !lockedOrder.TotalAmount.Decimal.Equal(input.Amount.Decimal) {
			return ErrAmountMismatch
		}

		now := time.Now()
		payment = &models.Payment{
			PaymentNo:       generatePaymentNo(),
			OrderID:         lockedOrder.ID,
			UserID:          input.UserID,
			IdempotencyKey:  key,
			Method:          input.Method,
			Amount:          input.Amount,
			Currency:        lockedOrder.Currency,
			Status:          constants.PaymentStatusPending,
			GatewayProvider: s.adapter.Name(),
			CardLast4:       cardLast4,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if payment.Currency == "" {
			payment.Currency = s.currency
		}
		if err := paymentRepo.Create(payment); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return err
			}
			return ErrPaymentCreateFailed
		}

		result := input.ChargeResult
		if result == nil {
			var chargeErr error
			result, chargeErr = s.adapter.Charge(ctx, gateway.ChargeInput{
				PaymentNo: payment.PaymentNo,
				OrderNo:   lockedOrder.OrderNo,
				Amount:    payment.Amount.String(),
				Currency:  payment.Currency,
				Method:    payment.Method,
				CardLast4: payment.CardLast4,
			})
			if chargeErr != nil {
				return fmt.Errorf("%w: %v", ErrGatewayUnavailable, chargeErr)
			}
		}

		completedAt := time.Now()
		payment.GatewayPayload = models.JSON(result.Raw)
		payment.UpdatedAt = completedAt
		if result.Success {
			if strings.TrimSpace(result.Reference) == "" {
				return fmt.Errorf("%w: missing gateway reference", ErrGatewayUnavailable)
			}
			payment.Status = constants.PaymentStatusCompleted
			payment.GatewayReference = result.Reference
			payment.PaidAt = &completedAt
			if err := orderRepo.UpdateStatus(lockedOrder.ID, constants.OrderStatusPaid, map[string]interface{}{
				"paid_at":    completedAt,
				"updated_at": completedAt,
			}); err != nil {
				return err
			}
		} else {
			payment.Status = constants.PaymentStatusFailed
			payment.FailureReason = result.Reason
			payment.FailedAt = &completedAt
		}
		if err := paymentRepo.Update(payment); err != nil {
			return ErrPaymentCreateFailed
		}
		return nil
	})
	if txErr != nil {
		if errors.Is(txErr, gorm.ErrDuplicatedKey) {
			return s.resolveDuplicateSubmission(key, fingerprint, log)
		}
		if errors.Is(txErr, ErrGatewayUnavailable) {
			log.Errorw("payment_submit_gateway_unavailable", "error", txErr)
		}
		return nil, txErr
	}

	s.recordSubmission(key, fingerprint, payment, log)
	s.enqueueNotifyAsync(payment, log)

	if payment.Status == constants.PaymentStatusCompleted {
		log.Infow("payment_submit_completed",
			"payment_id", payment.ID,
			"payment_no", payment.PaymentNo,
			"gateway_reference", payment.GatewayReference,
			"amount", payment.Amount.String(),
		)
	} else {
		log.Infow("payment_submit_declined",
			"payment_id", payment.ID,
			"payment_no", payment.PaymentNo,
			"failure_reason", payment.FailureReason,
			"amount", payment.Amount.String(),
		)
	}
	return &SubmitPaymentResult{Payment: payment}, nil
}

// CancelPayment 撤销已完成的支付
func (s *PaymentService) CancelPayment(input CancelPaymentInput) (*models.Payment, error) {
	if input.PaymentID == 0 {
		return nil, ErrPaymentInvalid
	}

	var payment *models.Payment
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		paymentRepo := s.paymentRepo.WithTx(tx)
		cancellationRepo := s.cancellationRepo.WithTx(tx)
		orderRepo := s.orderRepo.WithTx(tx)

		locked, err := paymentRepo.GetByIDForUpdate(input.PaymentID)
		if err != nil {
			return err
		}
		if locked == nil {
			return ErrPaymentNotFound
		}
		if locked.Status != constants.PaymentStatusCompleted {
			return ErrPaymentStateInvalid
		}

		now := time.Now()
		locked.Status = constants.PaymentStatusCancelled
		locked.CancelledAt = &now
		locked.UpdatedAt = now
		if err := paymentRepo.Update(locked); err != nil {
			return err
		}
		if err := cancellationRepo.Create(&models.Cancellation{
			PaymentID:   locked.ID,
			Reason:      strings.TrimSpace(input.Reason),
			CancelledBy: strings.TrimSpace(input.CancelledBy),
			CreatedAt:   now,
		}); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrPaymentStateInvalid
			}
			return err
		}
		// 撤销后订单回到待支付，允许重新发起支付
		if err := orderRepo.UpdateStatus(locked.OrderID, constants.OrderStatusPendingPayment, map[string]interface{}{
			"paid_at":    nil,
			"updated_at": now,
		}); err != nil {
			return err
		}
		payment = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	_ = cache.Del(context.Background(), paymentNoCacheKey(payment.PaymentNo))

	log := paymentLogger("payment_id", payment.ID, "order_id", payment.OrderID)
	log.Infow("payment_cancelled",
		"payment_no", payment.PaymentNo,
		"cancelled_by", input.CancelledBy,
	)
	s.enqueueNotifyAsync(payment, log)
	return payment, nil
}

// GetPayment 获取支付详情
func (s *PaymentService) GetPayment(id uint) (*models.Payment, error) {
	payment, err := s.paymentRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	return payment, nil
}

// GetPaymentByNo 根据支付单号获取支付详情。
// 终态支付走缓存，撤销时失效。
func (s *PaymentService) GetPaymentByNo(paymentNo string) (*models.Payment, error) {
	ctx := context.Background()
	var cached models.Payment
	if hit, err := cache.GetJSON(ctx, paymentNoCacheKey(paymentNo), &cached); err == nil && hit {
		return &cached, nil
	}

	payment, err := s.paymentRepo.GetByPaymentNo(paymentNo)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	switch payment.Status {
	case constants.PaymentStatusCompleted, constants.PaymentStatusFailed, constants.PaymentStatusCancelled:
		_ = cache.SetJSON(ctx, paymentNoCacheKey(paymentNo), payment, paymentNoCacheTTL)
	}
	return payment, nil
}

// ListPayments 管理端支付列表
func (s *PaymentService) ListPayments(filter repository.PaymentListFilter) ([]models.Payment, int64, error) {
	return s.paymentRepo.ListAdmin(filter)
}

// SweepIdempotency 清理过期幂等台账
func (s *PaymentService) SweepIdempotency() (int64, error) {
	return s.idempotencySvc.SweepExpired()
}

func (s *PaymentService) validateSubmitInput(input *SubmitPaymentInput) (string, error) {
	key := strings.TrimSpace(input.IdempotencyKey)
	if key == "" {
		return "", ErrIdempotencyKeyInvalid
	}
	if _, err := uuid.Parse(key); err != nil {
		return "", ErrIdempotencyKeyInvalid
	}
	if input.OrderID == 0 {
		return "", ErrPaymentInvalid
	}
	if !constants.PaymentMethods[input.Method] {
		return "", ErrMethodInvalid
	}
	if !input.Amount.Decimal.IsPositive() {
		return "", ErrAmountInvalid
	}
	if input.Amount.Decimal.GreaterThan(s.maxAmount) {
		return "", ErrAmountInvalid
	}

	cardLast4 := ""
	if constants.IsCardMethod(input.Method) {
		if input.Card == nil {
			return "", fmt.Errorf("%w: card details required", ErrCardInvalid)
		}
		if err := input.Card.Validate(time.Now()); err != nil {
			return "", fmt.Errorf("%w: %v", ErrCardInvalid, err)
		}
		cardLast4 = input.Card.LastFour()
		// 校验后立即抹除卡号与 CVV
		input.Card.Wipe()
	}
	return cardLast4, nil
}

// resolveDuplicateSubmission 处理与历史提交撞幂等键的情况。
// 指纹一致视为重放，返回已有支付；不一致报重复提交。
func (s *PaymentService) resolveDuplicateSubmission(key, fingerprint string, log *zap.SugaredLogger) (*SubmitPaymentResult, error) {
	existing, err := s.paymentRepo.GetByIdempotencyKey(key)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrDuplicateSubmission
	}
	if Fingerprint(existing.OrderID, existing.Method, existing.Amount) != fingerprint {
		return nil, ErrDuplicateSubmission
	}
	log.Infow("payment_submit_replayed_from_db", "payment_id", existing.ID)
	return &SubmitPaymentResult{Payment: existing, Replayed: true}, nil
}

// recordSubmission 写入幂等台账，失败只记日志不影响主流程
func (s *PaymentService) recordSubmission(key, fingerprint string, payment *models.Payment, log *zap.SugaredLogger) {
	snapshot, err := json.Marshal(payment)
	if err != nil {
		log.Errorw("idempotency_snapshot_failed", "payment_id", payment.ID, "error", err)
		return
	}
	if err := s.idempotencySvc.Record(key, fingerprint, string(snapshot)); err != nil {
		log.Warnw("idempotency_record_failed", "payment_id", payment.ID, "error", err)
	}
}

func (s *PaymentService) enqueueNotifyAsync(payment *models.Payment, log *zap.SugaredLogger) {
	if s.queueClient == nil || !s.queueClient.Enabled() {
		return
	}
	if err := s.queueClient.EnqueuePaymentNotify(queue.PaymentNotifyPayload{
		PaymentID: payment.ID,
		Event:     payment.Status,
	}); err != nil {
		log.Warnw("payment_notify_enqueue_failed", "payment_id", payment.ID, "error", err)
	}
}

func decodeStoredPayment(stored string) (*models.Payment, error) {
	var payment models.Payment
	if err := json.Unmarshal([]byte(stored), &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

func generatePaymentNo() string {
	suffix, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		suffix = big.NewInt(time.Now().UnixNano() % 1000000)
	}
	return fmt.Sprintf("PAY%s%06d", time.Now().Format("20060102150405"), suffix.Int64())
}
