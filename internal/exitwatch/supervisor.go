package exitwatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"options-trader/internal/broker"
	"options-trader/internal/config"
)

// Supervisor 管理全部在途监控任务，同一 (账户, 标的) 最多一个。
// start/cancel/任务收尾对任务表的修改互斥，防止两次 Start 同时
// 穿过重复检查。
type Supervisor struct {
	mu   sync.Mutex
	jobs map[JobKey]*Job

	cfg      config.ExitWatchConfig
	recorder Recorder
	logger   *zap.Logger
}

// NewSupervisor 创建监控管理器。
func NewSupervisor(cfg config.ExitWatchConfig, recorder Recorder, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Supervisor{
		jobs:     make(map[JobKey]*Job),
		cfg:      cfg,
		recorder: recorder,
		logger:   logger,
	}
}

// Start 为指定持仓启动监控任务。持仓数据不足或净持仓为零时拒绝；
// 同键已有运行中任务时返回 ErrAlreadyRunning。
func (s *Supervisor) Start(ctx context.Context, accountID string, client broker.Client, pos broker.Position) (*Job, error) {
	if pos.NetQuantity == 0 {
		return nil, ErrZeroQuantity
	}
	if pos.AveragePrice <= 0 || pos.InstrumentToken == "" {
		return nil, ErrInsufficientData
	}

	levels, err := ComputeLevels(pos.AveragePrice, s.cfg.ProfitOffset, s.cfg.TickSize)
	if err != nil {
		return nil, err
	}

	key := JobKey{AccountID: accountID, SecurityID: pos.SecurityID}

	s.mu.Lock()
	if existing, ok := s.jobs[key]; ok && existing.state == StateRunning {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s/%s", ErrAlreadyRunning, accountID, pos.SecurityID)
	}

	jobCtx, cancel := context.WithCancel(ctx)
	job := &Job{
		AccountID: accountID,
		Position:  pos,
		Levels:    levels,
		state:     StateRunning,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	s.jobs[key] = job
	s.mu.Unlock()

	s.logger.Info("离场监控已启动",
		zap.String("account", accountID),
		zap.String("symbol", pos.TradingSymbol),
		zap.Float64("average_price", pos.AveragePrice),
		zap.Float64("target_price", levels.TargetPrice),
		zap.Float64("stop_loss_price", levels.StopLossPrice),
	)
	s.recorder.RecordExitArmed(ctx, accountID, pos, levels)

	go s.run(jobCtx, job, client)

	return job, nil
}

// Cancel 协作式地停止任务：任务在下一次检查点观察到取消标志，
// 进行中的离场委托提交不会被打断。
func (s *Supervisor) Cancel(job *Job) {
	if job == nil {
		return
	}
	job.cancel()
}

// CancelKey 按键取消任务，不存在时返回 false。
func (s *Supervisor) CancelKey(accountID, securityID string) bool {
	s.mu.Lock()
	job, ok := s.jobs[JobKey{AccountID: accountID, SecurityID: securityID}]
	running := ok && job.state == StateRunning
	s.mu.Unlock()
	if !running {
		return false
	}
	job.cancel()
	return true
}

// Active 返回仍在运行的任务快照。
func (s *Supervisor) Active() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if job.state == StateRunning {
			out = append(out, job)
		}
	}
	return out
}

// run 为任务的轮询主循环：读取最新价，价位触发即提交一笔市价平仓单。
// 读取失败视为暂时性错误，退避后重试；平仓单提交失败对任务是致命的，
// 记录后停止，绝不循环重试在途委托。
func (s *Supervisor) run(ctx context.Context, job *Job, client broker.Client) {
	defer close(job.done)

	pos := job.Position
	for {
		if ctx.Err() != nil {
			s.finish(job, StateCancelled)
			return
		}

		price, err := client.LastTradedPrice(ctx, pos.InstrumentToken)
		if err != nil {
			if ctx.Err() != nil {
				s.finish(job, StateCancelled)
				return
			}
			s.logger.Warn("读取最新价失败，稍后重试",
				zap.String("account", job.AccountID),
				zap.String("symbol", pos.TradingSymbol),
				zap.Error(err),
			)
			if !s.sleep(ctx, s.cfg.RetryDelay) {
				s.finish(job, StateCancelled)
				return
			}
			continue
		}

		if price >= job.Levels.TargetPrice || price <= job.Levels.StopLossPrice {
			s.trigger(ctx, job, client, price)
			return
		}

		if !s.sleep(ctx, s.cfg.PollInterval) {
			s.finish(job, StateCancelled)
			return
		}
	}
}

func (s *Supervisor) trigger(ctx context.Context, job *Job, client broker.Client, price float64) {
	pos := job.Position
	side := exitSide(pos.NetQuantity)
	quantity := absQuantity(pos.NetQuantity)

	s.logger.Info("离场价位触发，提交平仓单",
		zap.String("account", job.AccountID),
		zap.String("symbol", pos.TradingSymbol),
		zap.Float64("price", price),
		zap.String("side", string(side)),
		zap.Int("quantity", quantity),
	)

	// 任务被取消也不中断已开始的提交。
	submitCtx := context.WithoutCancel(ctx)
	order, err := client.PlaceOrder(submitCtx, pos.SecurityID, side, quantity, broker.TypeMarket, 0)
	if err != nil {
		s.logger.Error("平仓单提交失败，任务终止",
			zap.String("account", job.AccountID),
			zap.String("symbol", pos.TradingSymbol),
			zap.Error(err),
		)
		s.recorder.RecordMonitorError(submitCtx, job.AccountID, pos, err)
		s.finish(job, StateFailed)
		return
	}

	s.recorder.RecordExitTriggered(submitCtx, job.AccountID, pos, price, order)
	s.finish(job, StateCompleted)
}

func (s *Supervisor) finish(job *Job, state State) {
	s.mu.Lock()
	job.state = state
	delete(s.jobs, job.Key())
	s.mu.Unlock()

	s.logger.Info("离场监控结束",
		zap.String("account", job.AccountID),
		zap.String("symbol", job.Position.TradingSymbol),
		zap.String("state", string(state)),
	)
}

// sleep 等待指定时长，上下文取消时返回 false。
func (s *Supervisor) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
