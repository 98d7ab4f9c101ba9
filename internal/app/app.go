package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"options-trader/internal/broker"
	"options-trader/internal/catalog"
	"options-trader/internal/config"
	"options-trader/internal/exitwatch"
	"options-trader/internal/journal"
	"options-trader/internal/reconcile"
	"options-trader/internal/registry"
	"options-trader/internal/signal"
	"options-trader/internal/store"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

// Run 装配全部组件并阻塞运行，直至收到退出信号。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("交易系统已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("exchange", a.cfg.Broker.Exchange),
		zap.Int("accounts", len(a.cfg.Broker.Accounts)),
	)

	svc, err := a.buildService()
	if err != nil {
		return err
	}

	if err := startAPIServer(ctx, svc, a.cfg.API.Port, a.logger); err != nil {
		return err
	}

	<-ctx.Done()
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("系统异常退出: %w", err)
	}
	a.logger.Info("系统收到退出信号，正在停止")
	return nil
}

func (a *App) buildService() (*Service, error) {
	reg := registry.New(a.logger)
	for _, acct := range a.cfg.Broker.Accounts {
		client, err := broker.NewCCXTClient(acct, a.cfg.Broker, a.logger)
		if err != nil {
			return nil, fmt.Errorf("初始化账户 %s 失败: %w", acct.ID, err)
		}
		if _, err := reg.Add(acct.ID, client); err != nil {
			return nil, err
		}
	}

	parser, err := signal.NewClient(a.cfg.OpenAI, a.logger)
	if err != nil {
		return nil, err
	}

	cat, err := catalog.New(a.store, a.logger)
	if err != nil {
		return nil, err
	}

	jrnl, err := journal.NewService(a.store, a.logger)
	if err != nil {
		return nil, err
	}

	rec := reconcile.New(reg, a.cfg.Reconcile, a.logger)
	sup := exitwatch.NewSupervisor(a.cfg.ExitWatch, jrnl, a.logger)

	return NewService(reg, rec, sup, parser, cat, jrnl, a.cfg.Reconcile, a.logger), nil
}
