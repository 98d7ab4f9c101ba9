package journal

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"options-trader/internal/broker"
	"options-trader/internal/config"
	"options-trader/internal/exitwatch"
	"options-trader/internal/reconcile"
	"options-trader/internal/signal"
	"options-trader/internal/store"
)

func newTestJournal(t *testing.T) *Service {
	t.Helper()

	st, err := store.NewSQLite(config.DatabaseConfig{
		InMemory:     true,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	svc, err := NewService(st, nil)
	if err != nil {
		t.Fatalf("init journal: %v", err)
	}
	return svc
}

func TestJournal_RecordAndList(t *testing.T) {
	svc := newTestJournal(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	events := []Event{
		{Type: EventSignalParsed, Timestamp: base, Payload: SignalPayload{
			Signal:     signal.TradeSignal{Symbol: "NIFTY25SEP24000CE", Expiry: "2026-09-03", Buy1: 120.5},
			SecurityID: "SEC-1001",
		}},
		{Type: EventReconcile, Timestamp: base.Add(time.Second), Payload: ReconcilePayload{
			Instruction: reconcile.Instruction{SecurityID: "SEC-1001", Side: broker.SideBuy, Quantity: 75, EntryPrice: 120.5},
			Results:     []reconcile.Result{{AccountID: "acct-a", Action: reconcile.ActionPlaced}},
		}},
		{Type: EventExitArmed, Timestamp: base.Add(2 * time.Second), Payload: ExitArmedPayload{
			AccountID: "acct-a",
			Position:  broker.Position{SecurityID: "SEC-1001", NetQuantity: 75, AveragePrice: 100},
			Levels:    exitwatch.Levels{TargetPrice: 101, StopLossPrice: 99},
		}},
	}
	for _, ev := range events {
		if err := svc.Record(ctx, ev); err != nil {
			t.Fatalf("record %s: %v", ev.Type, err)
		}
	}

	all, err := svc.ListEvents(ctx, "", 10)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d", len(all))
	}
	if all[0].Type != EventExitArmed {
		t.Errorf("expected newest event first, got %s", all[0].Type)
	}

	signals, err := svc.ListEvents(ctx, EventSignalParsed, 10)
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if len(signals) != 1 || signals[0].Type != EventSignalParsed {
		t.Fatalf("expected single signal event, got %+v", signals)
	}

	raw, ok := signals[0].Payload.(json.RawMessage)
	if !ok {
		t.Fatalf("expected raw payload, got %T", signals[0].Payload)
	}
	var payload SignalPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.SecurityID != "SEC-1001" || payload.Signal.Symbol != "NIFTY25SEP24000CE" {
		t.Errorf("unexpected payload: %+v", payload)
	}
}

func TestJournal_ListHonorsLimit(t *testing.T) {
	svc := newTestJournal(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		ev := Event{
			Type:      EventError,
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Payload:   ErrorPayload{Message: "boom"},
		}
		if err := svc.Record(ctx, ev); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	limited, err := svc.ListEvents(ctx, EventError, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected 2 events, got %d", len(limited))
	}
}

func TestJournal_RecorderHelpersDoNotFail(t *testing.T) {
	svc := newTestJournal(t)
	ctx := context.Background()
	pos := broker.Position{SecurityID: "SEC-1001", NetQuantity: 75, AveragePrice: 100}

	svc.RecordExitArmed(ctx, "acct-a", pos, exitwatch.Levels{TargetPrice: 101, StopLossPrice: 99})
	svc.RecordExitTriggered(ctx, "acct-a", pos, 101.05, broker.OrderRecord{OrderID: "exit-1"})
	svc.RecordMonitorError(ctx, "acct-a", pos, context.DeadlineExceeded)

	all, err := svc.ListEvents(ctx, "", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d", len(all))
	}
}
