package alerts

import (
	"time"

	"github.com/appesso/taskpay/internal/task"
)

// Queue task type constants
const (
	TaskSettlementReceipt = "notify:settlement_receipt"
	TaskStatusChange      = "notify:task_status"
)

// SettlementReceiptPayload is delivered to the payee when a transfer leg
// settles (the in-app "red packet").
type SettlementReceiptPayload struct {
	TaskID string    `json:"task_id"`
	Leg    string    `json:"leg"`
	Amount int64     `json:"amount"`
	From   string    `json:"from"`
	To     string    `json:"to"`
	SentAt time.Time `json:"sent_at"`
}

// StatusChangePayload notifies both parties of a task lifecycle transition.
type StatusChangePayload struct {
	TaskID string      `json:"task_id"`
	Old    task.Status `json:"old"`
	New    task.Status `json:"new"`
	SentAt time.Time   `json:"sent_at"`
}
