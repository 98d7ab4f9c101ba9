package reconcile

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"options-trader/internal/broker"
	"options-trader/internal/config"
	"options-trader/internal/registry"
)

// Reconciler 负责单账户的"改单或新下单"决策。
// 同一标的在一个账户上最多保留一张在途订单：已有在途单则改单，
// 否则按指令新下限价单。列单与落单两步之间不持锁，外部进程并发
// 下单仍可能产生重复，这是已接受的竞争窗口。
type Reconciler struct {
	registry *registry.Registry
	cfg      config.ReconcileConfig
	logger   *zap.Logger
}

// New 创建对账器。
func New(reg *registry.Registry, cfg config.ReconcileConfig, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		registry: reg,
		cfg:      cfg,
		logger:   logger,
	}
}

// ReconcileAccount 对单个账户执行 place-or-modify 决策。
func (r *Reconciler) ReconcileAccount(ctx context.Context, acct *registry.Account, instr Instruction) Result {
	result := Result{AccountID: acct.ID}

	if err := instr.Validate(); err != nil {
		result.Action = ActionFailed
		result.Error = err.Error()
		return result
	}

	orders, err := acct.Client.ListOrders(ctx)
	if err != nil {
		r.logger.Warn("拉取订单列表失败",
			zap.String("account", acct.ID),
			zap.Error(err),
		)
		result.Action = ActionFailed
		result.Error = err.Error()
		return result
	}

	// 券商返回顺序即为权威顺序，取首个在途匹配，不做客户端排序。
	var match *broker.OrderRecord
	for i := range orders {
		if orders[i].SecurityID == instr.SecurityID && orders[i].Status.IsOpen() {
			match = &orders[i]
			break
		}
	}

	if match != nil {
		// 改单使用配置的目标数量与重挂价，刻意"推一把"在途单，
		// 不是按入场价重新定价。
		modified, err := acct.Client.ModifyOrder(ctx, match.OrderID, r.cfg.TargetQuantity, r.cfg.RequotePrice, broker.TypeLimit)
		if err != nil {
			result.Action = ActionFailed
			result.Error = err.Error()
			return result
		}
		r.logger.Info("已修改在途订单",
			zap.String("account", acct.ID),
			zap.String("security", instr.SecurityID),
			zap.String("order_id", match.OrderID),
		)
		result.Action = ActionModified
		result.Order = modified
		return result
	}

	placed, err := acct.Client.PlaceOrder(ctx, instr.SecurityID, instr.Side, instr.Quantity, broker.TypeLimit, instr.EntryPrice)
	if err != nil {
		result.Action = ActionFailed
		result.Error = err.Error()
		return result
	}
	r.logger.Info("已提交新订单",
		zap.String("account", acct.ID),
		zap.String("security", instr.SecurityID),
		zap.String("order_id", placed.OrderID),
	)
	result.Action = ActionPlaced
	result.Order = placed
	return result
}

// ReconcileAll 将指令并发扇出到注册表内的全部账户。
// 单个账户失败只记录在其结果槽位，不阻断也不回滚其他账户。
func (r *Reconciler) ReconcileAll(ctx context.Context, instr Instruction) []Result {
	accounts := r.registry.All()
	results := make([]Result, len(accounts))

	group, groupCtx := errgroup.WithContext(ctx)
	for i, acct := range accounts {
		group.Go(func() error {
			results[i] = r.ReconcileAccount(groupCtx, acct, instr)
			return nil
		})
	}
	// 所有闭包都返回 nil，Wait 仅用于汇合。
	_ = group.Wait()

	return results
}
