package reconcile

import (
	"errors"
	"strings"

	"options-trader/internal/broker"
)

// ErrNoSecurity 表示指令缺少已解析的标的，属于校验错误，不可重试。
var ErrNoSecurity = errors.New("reconcile: security id missing")

// Instruction 为一条外部解析得到的交易指令，每个账户各消费一次。
type Instruction struct {
	SecurityID string      `json:"security_id"`
	Side       broker.Side `json:"side"`
	Quantity   int         `json:"quantity"`
	EntryPrice float64     `json:"entry_price"`
}

// Validate 校验指令字段。
func (in Instruction) Validate() error {
	if strings.TrimSpace(in.SecurityID) == "" {
		return ErrNoSecurity
	}
	if in.Side != broker.SideBuy && in.Side != broker.SideSell {
		return errors.New("reconcile: 指令方向非法")
	}
	if in.Quantity <= 0 {
		return errors.New("reconcile: 指令数量必须大于0")
	}
	if in.EntryPrice <= 0 {
		return errors.New("reconcile: 入场价必须大于0")
	}
	return nil
}

// Action 表示对账后实际采取的动作。
type Action string

const (
	ActionPlaced   Action = "PLACED"
	ActionModified Action = "MODIFIED"
	ActionFailed   Action = "FAILED"
)

// Result 为单个账户的对账结果，失败按账户隔离记录，不上抛中断。
type Result struct {
	AccountID string             `json:"account_id"`
	Action    Action             `json:"action"`
	Order     broker.OrderRecord `json:"order,omitempty"`
	Error     string             `json:"error,omitempty"`
}
