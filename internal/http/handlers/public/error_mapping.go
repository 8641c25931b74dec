package public

import (
	"errors"

	"github.com/paycore-next/internal/http/response"
	"github.com/paycore-next/internal/service"

	"github.com/gin-gonic/gin"
)

// mappedHandlerError 定义业务错误到接口错误响应的映射关系。
type mappedHandlerError struct {
	target error
	code   int
	msg    string
}

func respondWithMappedError(c *gin.Context, err error, rules []mappedHandlerError, fallbackCode int, fallbackMsg string) {
	for _, rule := range rules {
		if errors.Is(err, rule.target) {
			respondError(c, rule.code, rule.msg, nil)
			return
		}
	}
	respondError(c, fallbackCode, fallbackMsg, err)
}

var paymentSubmitErrorRules = []mappedHandlerError{
	{target: service.ErrPaymentInvalid, code: response.CodeBadRequest, msg: "payment request invalid"},
	{target: service.ErrIdempotencyKeyInvalid, code: response.CodeBadRequest, msg: "idempotency key invalid"},
	{target: service.ErrAmountInvalid, code: response.CodeBadRequest, msg: "payment amount invalid"},
	{target: service.ErrAmountMismatch, code: response.CodeBadRequest, msg: "payment amount mismatch"},
	{target: service.ErrMethodInvalid, code: response.CodeBadRequest, msg: "payment method not supported"},
	{target: service.ErrCardInvalid, code: response.CodeBadRequest, msg: "card details invalid"},
	{target: service.ErrOrderNotFound, code: response.CodeNotFound, msg: "order not found"},
	{target: service.ErrOrderNotPayable, code: response.CodeBadRequest, msg: "order not payable"},
	{target: service.ErrDuplicateSubmission, code: response.CodeConflict, msg: "duplicate submission"},
	{target: service.ErrGatewayUnavailable, code: response.CodeBadGateway, msg: "payment gateway unavailable"},
}

var paymentCancelErrorRules = []mappedHandlerError{
	{target: service.ErrPaymentInvalid, code: response.CodeBadRequest, msg: "payment request invalid"},
	{target: service.ErrPaymentNotFound, code: response.CodeNotFound, msg: "payment not found"},
	{target: service.ErrPaymentStateInvalid, code: response.CodeBadRequest, msg: "payment state does not allow cancellation"},
}

func respondPaymentSubmitError(c *gin.Context, err error) {
	respondWithMappedError(c, err, paymentSubmitErrorRules, response.CodeInternal, "payment submit failed")
}

func respondPaymentCancelError(c *gin.Context, err error) {
	respondWithMappedError(c, err, paymentCancelErrorRules, response.CodeInternal, "payment cancel failed")
}
