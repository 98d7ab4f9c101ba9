package exitwatch

import (
	"context"
	"errors"

	"options-trader/internal/broker"
)

var (
	// ErrAlreadyRunning 表示该持仓已有监控任务在运行，属于信息性错误。
	ErrAlreadyRunning = errors.New("exitwatch: monitor already running")
	// ErrZeroQuantity 表示净持仓为零，无需监控。
	ErrZeroQuantity = errors.New("exitwatch: 净持仓为零")
	// ErrInsufficientData 表示持仓缺少均价或合约标识，无法计算离场价位。
	ErrInsufficientData = errors.New("exitwatch: 持仓数据不足")
)

// State 表示监控任务的生命周期状态。
type State string

const (
	StateRunning   State = "RUNNING"
	StateCompleted State = "COMPLETED"
	StateCancelled State = "CANCELLED"
	StateFailed    State = "FAILED"
)

// Recorder 由事件日志实现，记录监控任务的关键节点。
type Recorder interface {
	RecordExitArmed(ctx context.Context, accountID string, pos broker.Position, levels Levels)
	RecordExitTriggered(ctx context.Context, accountID string, pos broker.Position, price float64, order broker.OrderRecord)
	RecordMonitorError(ctx context.Context, accountID string, pos broker.Position, err error)
}

// nopRecorder 在未接入日志时作为空实现。
type nopRecorder struct{}

func (nopRecorder) RecordExitArmed(context.Context, string, broker.Position, Levels) {}
func (nopRecorder) RecordExitTriggered(context.Context, string, broker.Position, float64, broker.OrderRecord) {
}
func (nopRecorder) RecordMonitorError(context.Context, string, broker.Position, error) {}
