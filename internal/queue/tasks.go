package queue

import (
	"encoding/json"

	"github.com/paycore-next/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskPaymentNotify 支付结果回调通知任务
	TaskPaymentNotify = constants.TaskPaymentNotify
	// TaskIdempotencySweep 幂等台账清理任务
	TaskIdempotencySweep = constants.TaskIdempotencySweep
)

// PaymentNotifyPayload 支付结果通知任务载荷
type PaymentNotifyPayload struct {
	PaymentID uint   `json:"payment_id"`
	Event     string `json:"event"`
}

// NewPaymentNotifyTask 创建支付结果通知任务
func NewPaymentNotifyTask(payload PaymentNotifyPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPaymentNotify, body), nil
}

// NewIdempotencySweepTask 创建幂等台账清理任务
func NewIdempotencySweepTask() (*asynq.Task, error) {
	return asynq.NewTask(TaskIdempotencySweep, nil), nil
}
