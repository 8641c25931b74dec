package admin

import (
	"errors"
	"strconv"
	"time"

	"github.com/paycore-next/internal/http/response"
	"github.com/paycore-next/internal/repository"
	"github.com/paycore-next/internal/service"

	"github.com/gin-gonic/gin"
)

// GetAdminPayments 获取支付记录列表
func (h *Handler) GetAdminPayments(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	filter, err := buildAdminPaymentFilter(c, page, pageSize)
	if err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}

	payments, total, err := h.PaymentService.ListPayments(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "payment list failed", err)
		return
	}

	response.SuccessWithPage(c, payments, response.BuildPagination(page, pageSize, total))
}

// GetAdminPayment 获取支付记录详情
func (h *Handler) GetAdminPayment(c *gin.Context) {
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

// AdminCancelPaymentRequest 管理端撤销支付请求
type AdminCancelPaymentRequest struct {
	Reason string `json:"reason"`
}

// CancelAdminPayment 管理端撤销已完成支付
func (h *Handler) CancelAdminPayment(c *gin.Context) {
	paymentID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || paymentID == 0 {
		respondError(c, response.CodeBadRequest, "payment id invalid", nil)
		return
	}

	var req AdminCancelPaymentRequest
	_ = c.ShouldBindJSON(&req)

	payment, err := h.PaymentService.CancelPayment(service.CancelPaymentInput{
		PaymentID:   uint(paymentID),
		Reason:      req.Reason,
		CancelledBy: "admin",
		Context:     c.Request.Context(),
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPaymentNotFound):
			respondError(c, response.CodeNotFound, "payment not found", nil)
		case errors.Is(err, service.ErrPaymentStateInvalid):
			respondError(c, response.CodeBadRequest, "payment state does not allow cancellation", nil)
		default:
			respondError(c, response.CodeInternal, "payment cancel failed", err)
		}
		return
	}
	response.Success(c, payment)
}

// SweepIdempotency 手动触发幂等台账清理
func (h *Handler) SweepIdempotency(c *gin.Context) {
	removed, err := h.PaymentService.SweepIdempotency()
	if err != nil {
		respondError(c, response.CodeInternal, "idempotency sweep failed", err)
		return
	}
	response.Success(c, gin.H{"removed": removed})
}

func buildAdminPaymentFilter(c *gin.Context, page, pageSize int) (repository.PaymentListFilter, error) {
	filter := repository.PaymentListFilter{
		Page:     page,
		PageSize: pageSize,
		Method:   c.Query("method"),
		Status:   c.Query("status"),
	}
	if raw := c.Query("order_id"); raw != "" {
		orderID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return filter, err
		}
		filter.OrderID = uint(orderID)
	}
	if raw := c.Query("user_id"); raw != "" {
		userID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return filter, err
		}
		filter.UserID = uint(userID)
	}
	if raw := c.Query("created_from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, err
		}
		filter.CreatedFrom = &from
	}
	if raw := c.Query("created_to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, err
		}
		filter.CreatedTo = &to
	}
	return filter, nil
}
