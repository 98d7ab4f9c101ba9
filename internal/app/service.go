package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"options-trader/internal/broker"
	"options-trader/internal/catalog"
	"options-trader/internal/config"
	"options-trader/internal/exitwatch"
	"options-trader/internal/journal"
	"options-trader/internal/reconcile"
	"options-trader/internal/registry"
	"options-trader/internal/signal"
)

// signalParser 与 securityResolver 为上游协作方能力，便于测试替换。
type signalParser interface {
	ParseSignal(ctx context.Context, text string) (signal.TradeSignal, error)
}

type securityResolver interface {
	ResolveSecurity(ctx context.Context, symbol string, expiry time.Time) (string, error)
}

// Service 聚合对外暴露的业务操作，由 HTTP 层直接调用。
type Service struct {
	registry   *registry.Registry
	reconciler *reconcile.Reconciler
	supervisor *exitwatch.Supervisor
	parser     signalParser
	resolver   securityResolver
	journal    *journal.Service
	cfg        config.ReconcileConfig
	logger     *zap.Logger
}

// NewService 创建业务服务。
func NewService(
	reg *registry.Registry,
	rec *reconcile.Reconciler,
	sup *exitwatch.Supervisor,
	parser signalParser,
	resolver securityResolver,
	jrnl *journal.Service,
	cfg config.ReconcileConfig,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		registry:   reg,
		reconciler: rec,
		supervisor: sup,
		parser:     parser,
		resolver:   resolver,
		journal:    jrnl,
		cfg:        cfg,
		logger:     logger,
	}
}

// SignalOutcome 为一次信号处理的结构化结果。
type SignalOutcome struct {
	Signal     signal.TradeSignal `json:"signal"`
	SecurityID string             `json:"security_id,omitempty"`
	Results    []reconcile.Result `json:"results,omitempty"`
	Message    string             `json:"message,omitempty"`
}

// HandleSignal 驱动完整的信号处理链路：解析文本、解析合约、
// 对全部账户对账。解析或合约查找失败时绝不发起对账。
func (s *Service) HandleSignal(ctx context.Context, text string) (SignalOutcome, error) {
	sig, err := s.parser.ParseSignal(ctx, text)
	if err != nil {
		return SignalOutcome{}, err
	}

	expiry, err := time.Parse("2006-01-02", sig.Expiry)
	if err != nil {
		return SignalOutcome{Signal: sig}, fmt.Errorf("信号到期日格式非法 %q: %w", sig.Expiry, err)
	}

	securityID, err := s.resolver.ResolveSecurity(ctx, sig.Symbol, expiry)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			s.journal.RecordSignal(ctx, sig, "")
			return SignalOutcome{
				Signal:  sig,
				Message: "目录中无匹配的合约",
			}, nil
		}
		return SignalOutcome{Signal: sig}, err
	}
	s.journal.RecordSignal(ctx, sig, securityID)

	instr := reconcile.Instruction{
		SecurityID: securityID,
		Side:       broker.SideBuy,
		Quantity:   s.cfg.TargetQuantity,
		EntryPrice: sig.Buy1,
	}

	results := s.ReconcileForAllAccounts(ctx, instr)

	return SignalOutcome{
		Signal:     sig,
		SecurityID: securityID,
		Results:    results,
	}, nil
}

// ReconcileForAllAccounts 对注册表内全部账户执行对账并记录结果。
func (s *Service) ReconcileForAllAccounts(ctx context.Context, instr reconcile.Instruction) []reconcile.Result {
	results := s.reconciler.ReconcileAll(ctx, instr)
	s.journal.RecordReconcile(ctx, instr, results)
	return results
}

// ListAccounts 返回全部账户标识，按注册顺序。
func (s *Service) ListAccounts() []string {
	accounts := s.registry.All()
	ids := make([]string, 0, len(accounts))
	for _, acct := range accounts {
		ids = append(ids, acct.ID)
	}
	return ids
}

// AccountOrders 为单账户订单查询结果，失败隔离在各自槽位。
type AccountOrders struct {
	Orders []broker.OrderRecord `json:"orders,omitempty"`
	Error  string               `json:"error,omitempty"`
}

// ListOrders 查询全部账户的订单列表。
func (s *Service) ListOrders(ctx context.Context) map[string]AccountOrders {
	out := make(map[string]AccountOrders)
	for _, acct := range s.registry.All() {
		orders, err := acct.Client.ListOrders(ctx)
		if err != nil {
			out[acct.ID] = AccountOrders{Error: err.Error()}
			continue
		}
		out[acct.ID] = AccountOrders{Orders: orders}
	}
	return out
}

// AccountPositions 为单账户持仓查询结果。
type AccountPositions struct {
	Positions []broker.Position `json:"positions,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// ListPositions 查询全部账户的净持仓。
func (s *Service) ListPositions(ctx context.Context) map[string]AccountPositions {
	out := make(map[string]AccountPositions)
	for _, acct := range s.registry.All() {
		positions, err := acct.Client.ListPositions(ctx)
		if err != nil {
			out[acct.ID] = AccountPositions{Error: err.Error()}
			continue
		}
		out[acct.ID] = AccountPositions{Positions: positions}
	}
	return out
}

// CancelReport 汇总单账户的批量撤单结果。
type CancelReport struct {
	Cancelled []string `json:"cancelled"`
	Errors    []string `json:"errors"`
}

// CancelAllOpenOrders 撤销全部账户的在途订单，失败按订单逐条记录。
func (s *Service) CancelAllOpenOrders(ctx context.Context) map[string]CancelReport {
	out := make(map[string]CancelReport)
	for _, acct := range s.registry.All() {
		report := CancelReport{
			Cancelled: make([]string, 0),
			Errors:    make([]string, 0),
		}

		orders, err := acct.Client.ListOrders(ctx)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("拉取订单列表失败: %v", err))
			out[acct.ID] = report
			continue
		}

		for _, order := range orders {
			if !order.Status.IsOpen() {
				continue
			}
			if err := acct.Client.CancelOrder(ctx, order.OrderID); err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("订单 %s: %v", order.OrderID, err))
				continue
			}
			report.Cancelled = append(report.Cancelled, order.OrderID)
		}
		out[acct.ID] = report
	}
	return out
}

// ClosePosition 为指定账户提交平仓委托，方向由净持仓符号决定。
func (s *Service) ClosePosition(ctx context.Context, accountID, securityID string, netQuantity int, orderType broker.OrderType, price float64) (broker.OrderRecord, error) {
	if netQuantity == 0 {
		return broker.OrderRecord{}, errors.New("净持仓为零，无需平仓")
	}

	acct, ok := s.registry.Get(accountID)
	if !ok {
		return broker.OrderRecord{}, fmt.Errorf("账户 %q 未注册", accountID)
	}

	side := broker.SideSell
	quantity := netQuantity
	if netQuantity < 0 {
		side = broker.SideBuy
		quantity = -netQuantity
	}
	if orderType == broker.TypeMarket {
		price = 0
	}

	order, err := acct.Client.PlaceOrder(ctx, securityID, side, quantity, orderType, price)
	if err != nil {
		s.journal.RecordError(ctx, "平仓委托失败", err, map[string]interface{}{
			"account":  accountID,
			"security": securityID,
		})
		return broker.OrderRecord{}, err
	}

	s.logger.Info("平仓委托已提交",
		zap.String("account", accountID),
		zap.String("security", securityID),
		zap.String("side", string(side)),
		zap.Int("quantity", quantity),
	)
	return order, nil
}

// StartExitMonitor 为指定账户的持仓启动离场监控。
func (s *Service) StartExitMonitor(ctx context.Context, accountID string, pos broker.Position) (*exitwatch.Job, error) {
	acct, ok := s.registry.Get(accountID)
	if !ok {
		return nil, fmt.Errorf("账户 %q 未注册", accountID)
	}
	return s.supervisor.Start(ctx, acct.ID, acct.Client, pos)
}

// CancelExitMonitor 取消指定持仓的离场监控。
func (s *Service) CancelExitMonitor(accountID, securityID string) bool {
	return s.supervisor.CancelKey(accountID, securityID)
}

// ActiveMonitors 返回运行中的监控任务。
func (s *Service) ActiveMonitors() []*exitwatch.Job {
	return s.supervisor.Active()
}

// Events 查询事件日志。
func (s *Service) Events(ctx context.Context, eventType journal.EventType, limit int) ([]journal.Event, error) {
	return s.journal.ListEvents(ctx, eventType, limit)
}
