package exitwatch

import (
	"context"

	"options-trader/internal/broker"
)

// Job 对应一个持仓的离场监控任务。价位在创建时固定，状态只由
// Supervisor 在持锁状态下变更。
type Job struct {
	AccountID string
	Position  broker.Position
	Levels    Levels

	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

// State 返回任务当前状态。需经 Supervisor 读取以保证可见性，
// 此方法仅供任务结束后（Done 已关闭）安全使用。
func (j *Job) State() State {
	return j.state
}

// Done 在任务进入终态后关闭。
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Key 返回任务的唯一键。
func (j *Job) Key() JobKey {
	return JobKey{AccountID: j.AccountID, SecurityID: j.Position.SecurityID}
}

// JobKey 以 (账户, 标的) 唯一标识一个监控任务。
type JobKey struct {
	AccountID  string
	SecurityID string
}

// exitSide 依据净持仓符号决定平仓方向：多头卖出，空头买入。
func exitSide(netQuantity int) broker.Side {
	if netQuantity < 0 {
		return broker.SideBuy
	}
	return broker.SideSell
}

func absQuantity(netQuantity int) int {
	if netQuantity < 0 {
		return -netQuantity
	}
	return netQuantity
}
