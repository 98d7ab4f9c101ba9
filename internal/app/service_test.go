package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

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

func newTestService(t *testing.T, parser signalParser, resolver securityResolver, clients map[string]broker.Client) *Service {
	t.Helper()

	st, err := store.NewSQLite(config.DatabaseConfig{InMemory: true, MaxOpenConns: 1, MaxIdleConns: 1})
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	jrnl, err := journal.NewService(st, nil)
	if err != nil {
		t.Fatalf("init journal: %v", err)
	}

	reg := registry.New(nil)
	for _, id := range []string{"acct-a", "acct-b"} {
		client, ok := clients[id]
		if !ok {
			continue
		}
		if _, err := reg.Add(id, client); err != nil {
			t.Fatalf("add account %s: %v", id, err)
		}
	}

	recCfg := config.ReconcileConfig{TargetQuantity: 75, RequotePrice: 0.2}
	watchCfg := config.ExitWatchConfig{TickSize: 0.05, ProfitOffset: 1.0, PollInterval: time.Millisecond, RetryDelay: time.Millisecond}

	return NewService(
		reg,
		reconcile.New(reg, recCfg, nil),
		exitwatch.NewSupervisor(watchCfg, jrnl, nil),
		parser,
		resolver,
		jrnl,
		recCfg,
		nil,
	)
}

func TestHandleSignal_ReconcilesAllAccounts(t *testing.T) {
	a := &fakeAppClient{}
	b := &fakeAppClient{}
	parser := &fakeParser{sig: signal.TradeSignal{Symbol: "NIFTY25SEP24000CE", Expiry: "2026-09-03", Buy1: 120.5}}
	resolver := &fakeResolver{securityID: "SEC-1001"}

	svc := newTestService(t, parser, resolver, map[string]broker.Client{"acct-a": a, "acct-b": b})

	outcome, err := svc.HandleSignal(context.Background(), "Buy NIFTY weekly CE above 120.5")
	if err != nil {
		t.Fatalf("HandleSignal returned error: %v", err)
	}
	if outcome.SecurityID != "SEC-1001" {
		t.Errorf("unexpected security id %q", outcome.SecurityID)
	}
	if len(outcome.Results) != 2 {
		t.Fatalf("expected one result per account, got %d", len(outcome.Results))
	}
	for _, res := range outcome.Results {
		if res.Action != reconcile.ActionPlaced {
			t.Errorf("account %s: expected PLACED, got %s (%s)", res.AccountID, res.Action, res.Error)
		}
	}
	if len(a.placed) != 1 || a.placed[0].quantity != 75 || a.placed[0].price != 120.5 {
		t.Errorf("unexpected placement on acct-a: %+v", a.placed)
	}
	if resolver.lastSymbol != "NIFTY25SEP24000CE" {
		t.Errorf("resolver saw symbol %q", resolver.lastSymbol)
	}
	if resolver.lastExpiry.Format("2006-01-02") != "2026-09-03" {
		t.Errorf("resolver saw expiry %s", resolver.lastExpiry.Format("2006-01-02"))
	}

	events, err := svc.Events(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("expected signal + reconcile events, got %d", len(events))
	}
}

func TestHandleSignal_ParseFailureBlocksReconcile(t *testing.T) {
	a := &fakeAppClient{}
	parser := &fakeParser{err: errors.New("模型输出不可解析")}
	svc := newTestService(t, parser, &fakeResolver{securityID: "SEC-1001"}, map[string]broker.Client{"acct-a": a})

	if _, err := svc.HandleSignal(context.Background(), "garbage"); err == nil {
		t.Fatal("expected parse error")
	}
	if a.listCalls != 0 || len(a.placed) != 0 {
		t.Errorf("no broker calls expected after parse failure, got list=%d placed=%d", a.listCalls, len(a.placed))
	}
}

func TestHandleSignal_CatalogMissSkipsReconcile(t *testing.T) {
	a := &fakeAppClient{}
	parser := &fakeParser{sig: signal.TradeSignal{Symbol: "UNKNOWN", Expiry: "2026-09-03", Buy1: 10}}
	resolver := &fakeResolver{err: catalog.ErrNotFound}
	svc := newTestService(t, parser, resolver, map[string]broker.Client{"acct-a": a})

	outcome, err := svc.HandleSignal(context.Background(), "Buy UNKNOWN CE")
	if err != nil {
		t.Fatalf("catalog miss must not be an error: %v", err)
	}
	if outcome.Message == "" || len(outcome.Results) != 0 {
		t.Errorf("expected message without results, got %+v", outcome)
	}
	if len(a.placed) != 0 {
		t.Errorf("no orders expected on catalog miss")
	}
}

func TestHandleSignal_BadExpiryRejected(t *testing.T) {
	parser := &fakeParser{sig: signal.TradeSignal{Symbol: "X", Expiry: "03-09-2026", Buy1: 10}}
	svc := newTestService(t, parser, &fakeResolver{securityID: "SEC-1"}, map[string]broker.Client{"acct-a": &fakeAppClient{}})

	if _, err := svc.HandleSignal(context.Background(), "text"); err == nil {
		t.Fatal("expected expiry format error")
	}
}

func TestClosePosition_SideFollowsNetQuantity(t *testing.T) {
	a := &fakeAppClient{}
	svc := newTestService(t, &fakeParser{}, &fakeResolver{}, map[string]broker.Client{"acct-a": a})
	ctx := context.Background()

	if _, err := svc.ClosePosition(ctx, "acct-a", "SEC-1", 75, broker.TypeMarket, 0); err != nil {
		t.Fatalf("close long: %v", err)
	}
	if _, err := svc.ClosePosition(ctx, "acct-a", "SEC-1", -50, broker.TypeLimit, 91.5); err != nil {
		t.Fatalf("close short: %v", err)
	}
	if _, err := svc.ClosePosition(ctx, "acct-a", "SEC-1", 0, broker.TypeMarket, 0); err == nil {
		t.Error("expected error for flat position")
	}
	if _, err := svc.ClosePosition(ctx, "ghost", "SEC-1", 75, broker.TypeMarket, 0); err == nil {
		t.Error("expected error for unknown account")
	}

	if len(a.placed) != 2 {
		t.Fatalf("expected 2 close orders, got %d", len(a.placed))
	}
	long := a.placed[0]
	if long.side != broker.SideSell || long.quantity != 75 || long.orderType != broker.TypeMarket {
		t.Errorf("unexpected long close: %+v", long)
	}
	short := a.placed[1]
	if short.side != broker.SideBuy || short.quantity != 50 || short.price != 91.5 {
		t.Errorf("unexpected short close: %+v", short)
	}
}

func TestCancelAllOpenOrders_SkipsTerminalOrders(t *testing.T) {
	a := &fakeAppClient{
		orders: []broker.OrderRecord{
			{OrderID: "o-1", Status: broker.StatusOpen},
			{OrderID: "o-2", Status: broker.StatusFilled},
			{OrderID: "o-3", Status: broker.StatusTransit},
		},
	}
	svc := newTestService(t, &fakeParser{}, &fakeResolver{}, map[string]broker.Client{"acct-a": a})

	reports := svc.CancelAllOpenOrders(context.Background())
	report, ok := reports["acct-a"]
	if !ok {
		t.Fatal("missing report for acct-a")
	}
	if len(report.Cancelled) != 2 || len(report.Errors) != 0 {
		t.Fatalf("expected 2 cancellations, got %+v", report)
	}
	if report.Cancelled[0] != "o-1" || report.Cancelled[1] != "o-3" {
		t.Errorf("unexpected cancelled ids: %v", report.Cancelled)
	}
}

func TestExitMonitor_StartAndCancelThroughService(t *testing.T) {
	a := &fakeAppClient{lastPrice: 100.00}
	svc := newTestService(t, &fakeParser{}, &fakeResolver{}, map[string]broker.Client{"acct-a": a})

	pos := broker.Position{SecurityID: "SEC-1", InstrumentToken: "tok-1", NetQuantity: 75, AveragePrice: 100.00}
	job, err := svc.StartExitMonitor(context.Background(), "acct-a", pos)
	if err != nil {
		t.Fatalf("start monitor: %v", err)
	}
	if len(svc.ActiveMonitors()) != 1 {
		t.Errorf("expected one active monitor")
	}

	if !svc.CancelExitMonitor("acct-a", "SEC-1") {
		t.Error("expected cancel to find the job")
	}
	select {
	case <-job.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not stop after cancel")
	}

	if _, err := svc.StartExitMonitor(context.Background(), "ghost", pos); err == nil {
		t.Error("expected error for unknown account")
	}
}

type fakeParser struct {
	sig signal.TradeSignal
	err error
}

func (f *fakeParser) ParseSignal(ctx context.Context, text string) (signal.TradeSignal, error) {
	if f.err != nil {
		return signal.TradeSignal{}, f.err
	}
	return f.sig, nil
}

type fakeResolver struct {
	securityID string
	err        error

	lastSymbol string
	lastExpiry time.Time
}

func (f *fakeResolver) ResolveSecurity(ctx context.Context, symbol string, expiry time.Time) (string, error) {
	f.lastSymbol = symbol
	f.lastExpiry = expiry
	if f.err != nil {
		return "", f.err
	}
	return f.securityID, nil
}

type appPlaceCall struct {
	securityID string
	side       broker.Side
	quantity   int
	orderType  broker.OrderType
	price      float64
}

type fakeAppClient struct {
	mu        sync.Mutex
	orders    []broker.OrderRecord
	lastPrice float64

	listCalls int
	placed    []appPlaceCall
	cancelled []string
}

func (f *fakeAppClient) ListOrders(ctx context.Context) ([]broker.OrderRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	out := make([]broker.OrderRecord, len(f.orders))
	copy(out, f.orders)
	return out, nil
}

func (f *fakeAppClient) PlaceOrder(ctx context.Context, securityID string, side broker.Side, quantity int, orderType broker.OrderType, price float64) (broker.OrderRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, appPlaceCall{securityID, side, quantity, orderType, price})
	return broker.OrderRecord{OrderID: "placed", SecurityID: securityID, Status: broker.StatusOpen, Side: side, Type: orderType, Price: price, Quantity: quantity}, nil
}

func (f *fakeAppClient) ModifyOrder(ctx context.Context, orderID string, quantity int, price float64, orderType broker.OrderType) (broker.OrderRecord, error) {
	return broker.OrderRecord{OrderID: orderID, Status: broker.StatusOpen}, nil
}

func (f *fakeAppClient) CancelOrder(ctx context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

func (f *fakeAppClient) ListPositions(ctx context.Context) ([]broker.Position, error) {
	return nil, nil
}

func (f *fakeAppClient) LastTradedPrice(ctx context.Context, instrumentToken string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lastPrice <= 0 {
		return 0, errors.New("no price")
	}
	return f.lastPrice, nil
}
