package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"options-trader/internal/broker"
	"options-trader/internal/exitwatch"
	"options-trader/internal/reconcile"
	"options-trader/internal/signal"
	"options-trader/internal/store"
)

// Service 负责持久化业务事件。历史成交不落库，只记录决策节点。
type Service struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewService 初始化事件日志，创建所需表结构。
func NewService(st *store.Store, logger *zap.Logger) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("journal: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		db:     st.DB(),
		logger: logger,
	}

	if err := s.initSchema(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Service) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS journal_events (
	id TEXT PRIMARY KEY,
	event_type TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_journal_events_type ON journal_events(event_type);
`
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("journal: 初始化表失败: %w", err)
	}
	return nil
}

// Record 写入单个事件。
func (s *Service) Record(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("journal: 序列化事件失败: %w", err)
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO journal_events (id, event_type, payload, created_at) VALUES (?, ?, ?, ?)`,
		event.ID, string(event.Type), string(payload), event.Timestamp.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("journal: 写入事件失败: %w", err)
	}

	return nil
}

// RecordSignal 记录解析成功的信号。
func (s *Service) RecordSignal(ctx context.Context, sig signal.TradeSignal, securityID string) {
	if err := s.Record(ctx, Event{
		Type:    EventSignalParsed,
		Payload: SignalPayload{Signal: sig, SecurityID: securityID},
	}); err != nil {
		s.logger.Warn("记录信号事件失败", zap.Error(err))
	}
}

// RecordReconcile 记录一次全账户对账结果。
func (s *Service) RecordReconcile(ctx context.Context, instr reconcile.Instruction, results []reconcile.Result) {
	if err := s.Record(ctx, Event{
		Type:    EventReconcile,
		Payload: ReconcilePayload{Instruction: instr, Results: results},
	}); err != nil {
		s.logger.Warn("记录对账事件失败", zap.Error(err))
	}
}

// RecordExitArmed 记录监控任务启动。
func (s *Service) RecordExitArmed(ctx context.Context, accountID string, pos broker.Position, levels exitwatch.Levels) {
	if err := s.Record(ctx, Event{
		Type:    EventExitArmed,
		Payload: ExitArmedPayload{AccountID: accountID, Position: pos, Levels: levels},
	}); err != nil {
		s.logger.Warn("记录监控启动事件失败", zap.Error(err))
	}
}

// RecordExitTriggered 记录离场触发。
func (s *Service) RecordExitTriggered(ctx context.Context, accountID string, pos broker.Position, price float64, order broker.OrderRecord) {
	if err := s.Record(ctx, Event{
		Type:    EventExitTriggered,
		Payload: ExitTriggeredPayload{AccountID: accountID, Position: pos, Price: price, Order: order},
	}); err != nil {
		s.logger.Warn("记录离场触发事件失败", zap.Error(err))
	}
}

// RecordMonitorError 记录监控任务异常。
func (s *Service) RecordMonitorError(ctx context.Context, accountID string, pos broker.Position, err error) {
	s.RecordError(ctx, "离场监控异常", err, map[string]interface{}{
		"account":  accountID,
		"security": pos.SecurityID,
	})
}

// RecordError 记录异常。
func (s *Service) RecordError(ctx context.Context, msg string, err error, ctxMap map[string]interface{}) {
	payload := ErrorPayload{
		Message: msg,
		Context: ctxMap,
	}
	if err != nil {
		payload.Error = err.Error()
	}
	if recErr := s.Record(ctx, Event{
		Type:    EventError,
		Payload: payload,
	}); recErr != nil {
		s.logger.Warn("记录异常事件失败", zap.Error(recErr))
	}
}

// ListEvents 按类型检索最近事件。
func (s *Service) ListEvents(ctx context.Context, eventType EventType, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, event_type, payload, created_at FROM journal_events`
	args := make([]interface{}, 0, 2)
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, string(eventType))
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: 查询事件失败: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		var (
			id      string
			typ     string
			payload string
			created string
		)
		if scanErr := rows.Scan(&id, &typ, &payload, &created); scanErr != nil {
			return nil, fmt.Errorf("journal: 解析事件失败: %w", scanErr)
		}

		ts, parseErr := time.Parse(time.RFC3339, created)
		if parseErr != nil {
			ts = time.Now().UTC()
		}

		events = append(events, Event{
			ID:        id,
			Type:      EventType(typ),
			Timestamp: ts,
			Payload:   json.RawMessage(payload),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: 读取事件失败: %w", err)
	}

	return events, nil
}
