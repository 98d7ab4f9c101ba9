package journal

import (
	"time"

	"options-trader/internal/broker"
	"options-trader/internal/exitwatch"
	"options-trader/internal/reconcile"
	"options-trader/internal/signal"
)

// EventType 表示事件日志类型。
type EventType string

const (
	EventSignalParsed  EventType = "signal_parsed"
	EventReconcile     EventType = "reconcile_result"
	EventExitArmed     EventType = "exit_armed"
	EventExitTriggered EventType = "exit_triggered"
	EventError         EventType = "error"
)

// Event 封装通用事件。
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// SignalPayload 记录解析得到的信号与解析出的标的。
type SignalPayload struct {
	Signal     signal.TradeSignal `json:"signal"`
	SecurityID string             `json:"security_id,omitempty"`
}

// ReconcilePayload 记录一次全账户对账的结果。
type ReconcilePayload struct {
	Instruction reconcile.Instruction `json:"instruction"`
	Results     []reconcile.Result    `json:"results"`
}

// ExitArmedPayload 记录监控任务启动时固定的离场价位。
type ExitArmedPayload struct {
	AccountID string           `json:"account_id"`
	Position  broker.Position  `json:"position"`
	Levels    exitwatch.Levels `json:"levels"`
}

// ExitTriggeredPayload 记录离场触发与平仓委托。
type ExitTriggeredPayload struct {
	AccountID string             `json:"account_id"`
	Position  broker.Position    `json:"position"`
	Price     float64            `json:"price"`
	Order     broker.OrderRecord `json:"order"`
}

// ErrorPayload 记录异常。
type ErrorPayload struct {
	Message string                 `json:"message"`
	Error   string                 `json:"error"`
	Context map[string]interface{} `json:"context,omitempty"`
}
