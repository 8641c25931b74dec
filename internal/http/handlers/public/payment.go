package public

import (
	"errors"
	"strconv"
	"strings"

	"github.com/paycore-next/internal/gateway"
	"github.com/paycore-next/internal/http/response"
	"github.com/paycore-next/internal/models"
	"github.com/paycore-next/internal/service"

	"github.com/gin-gonic/gin"
)

// SubmitPaymentRequest 提交支付请求
type SubmitPaymentRequest struct {
	IdempotencyKey string        `json:"idempotency_key"`
	OrderID        uint          `json:"order_id" binding:"required"`
	UserID         uint          `json:"user_id"`
	Method         string        `json:"method" binding:"required"`
	Amount         models.Money  `json:"amount"`
	Card           *gateway.Card `json:"card"`
}

// SubmitPayment 提交支付
func (h *Handler) SubmitPayment(c *gin.Context) {
	var req SubmitPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}

	// 优先取请求头，兼容请求体携带
	key := strings.TrimSpace(c.GetHeader("X-Idempotency-Key"))
	if key == "" {
		key = strings.TrimSpace(req.IdempotencyKey)
	}

	result, err := h.PaymentService.SubmitPayment(service.SubmitPaymentInput{
		IdempotencyKey: key,
		OrderID:        req.OrderID,
		UserID:         req.UserID,
		Method:         req.Method,
		Amount:         req.Amount,
		Card:           req.Card,
		Context:        c.Request.Context(),
	})
	if err != nil {
		if errors.Is(err, service.ErrSubmissionInFlight) {
			response.ErrorWithData(c, response.CodeTooManyRequests, "submission in flight", gin.H{
				"status": "processing",
			})
			return
		}
		respondPaymentSubmitError(c, err)
		return
	}

	response.Success(c, gin.H{
		"payment":  result.Payment,
		"replayed": result.Replayed,
	})
}

// GetPayment 查询支付详情
func (h *Handler) GetPayment(c *gin.Context) {
	paymentID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || paymentID == 0 {
		respondError(c, response.CodeBadRequest, "payment id invalid", nil)
		return
	}
	payment, err := h.PaymentService.GetPayment(uint(paymentID))
	if err != nil {
		if errors.Is(err, service.ErrPaymentNotFound) {
			respondError(c, response.CodeNotFound, "payment not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "payment fetch failed", err)
		return
	}
	response.Success(c, payment)
}

// CancelPaymentRequest 撤销支付请求
type CancelPaymentRequest struct {
	Reason      string `json:"reason"`
	CancelledBy string `json:"cancelled_by"`
}

// CancelPayment 撤销已完成的支付
func (h *Handler) CancelPayment(c *gin.Context) {
	paymentID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || paymentID == 0 {
		respondError(c, response.CodeBadRequest, "payment id invalid", nil)
		return
	}

	// 撤销请求体可省略
	var req CancelPaymentRequest
	_ = c.ShouldBindJSON(&req)

	payment, err := h.PaymentService.CancelPayment(service.CancelPaymentInput{
		PaymentID:   uint(paymentID),
		Reason:      req.Reason,
		CancelledBy: req.CancelledBy,
		Context:     c.Request.Context(),
	})
	if err != nil {
		respondPaymentCancelError(c, err)
		return
	}
	response.Success(c, payment)
}

// ListOrderPayments 查询订单下的支付记录
func (h *Handler) ListOrderPayments(c *gin.Context) {
	orderID, err := strconv.ParseUint(c.Query("order_id"), 10, 64)
	if err != nil || orderID == 0 {
		respondError(c, response.CodeBadRequest, "order id invalid", nil)
		return
	}
	payments, err := h.PaymentRepo.ListByOrderID(uint(orderID))
	if err != nil {
		respondError(c, response.CodeInternal, "payment list failed", err)
		return
	}
	response.Success(c, payments)
}
