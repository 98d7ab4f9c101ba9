package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"options-trader/internal/broker"
	"options-trader/internal/exitwatch"
	"options-trader/internal/journal"
	"options-trader/internal/reconcile"
)

func startAPIServer(ctx context.Context, svc *Service, port int, logger *zap.Logger) error {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /signal", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "请求体解析失败: "+err.Error(), http.StatusBadRequest)
			return
		}

		outcome, err := svc.HandleSignal(r.Context(), req.Text)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		writeJSON(w, outcome, logger)
	})

	mux.HandleFunc("POST /reconcile", func(w http.ResponseWriter, r *http.Request) {
		var instr reconcile.Instruction
		if err := json.NewDecoder(r.Body).Decode(&instr); err != nil {
			http.Error(w, "请求体解析失败: "+err.Error(), http.StatusBadRequest)
			return
		}
		if err := instr.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, svc.ReconcileForAllAccounts(r.Context(), instr), logger)
	})

	mux.HandleFunc("GET /accounts", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, svc.ListAccounts(), logger)
	})

	mux.HandleFunc("GET /orders", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, svc.ListOrders(r.Context()), logger)
	})

	mux.HandleFunc("GET /positions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, svc.ListPositions(r.Context()), logger)
	})

	mux.HandleFunc("POST /orders/cancel-all", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, svc.CancelAllOpenOrders(r.Context()), logger)
	})

	mux.HandleFunc("POST /positions/close", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Account     string  `json:"account"`
			SecurityID  string  `json:"security_id"`
			NetQuantity int     `json:"net_quantity"`
			OrderType   string  `json:"order_type"`
			Price       float64 `json:"price"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "请求体解析失败: "+err.Error(), http.StatusBadRequest)
			return
		}

		orderType := broker.TypeMarket
		if strings.EqualFold(req.OrderType, string(broker.TypeLimit)) {
			orderType = broker.TypeLimit
		}

		order, err := svc.ClosePosition(r.Context(), req.Account, req.SecurityID, req.NetQuantity, orderType, req.Price)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		writeJSON(w, order, logger)
	})

	mux.HandleFunc("POST /monitor", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Account  string          `json:"account"`
			Position broker.Position `json:"position"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "请求体解析失败: "+err.Error(), http.StatusBadRequest)
			return
		}

		job, err := svc.StartExitMonitor(ctx, req.Account, req.Position)
		if err != nil {
			status := http.StatusUnprocessableEntity
			if errors.Is(err, exitwatch.ErrAlreadyRunning) {
				status = http.StatusConflict
			}
			http.Error(w, err.Error(), status)
			return
		}
		writeJSON(w, map[string]interface{}{
			"account":     job.AccountID,
			"security_id": job.Position.SecurityID,
			"levels":      job.Levels,
		}, logger)
	})

	mux.HandleFunc("POST /monitor/cancel", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Account    string `json:"account"`
			SecurityID string `json:"security_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "请求体解析失败: "+err.Error(), http.StatusBadRequest)
			return
		}
		writeJSON(w, map[string]bool{"cancelled": svc.CancelExitMonitor(req.Account, req.SecurityID)}, logger)
	})

	mux.HandleFunc("GET /events", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit := 200
		if qs := q.Get("limit"); qs != "" {
			if v, err := strconv.Atoi(qs); err == nil && v > 0 {
				if v > 1000 {
					v = 1000
				}
				limit = v
			}
		}

		eventType := journal.EventType("")
		if typ := strings.TrimSpace(q.Get("type")); typ != "" {
			eventType = journal.EventType(strings.ToLower(typ))
		}

		events, err := svc.Events(r.Context(), eventType, limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, events, logger)
	})

	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("关闭服务失败", zap.Error(err))
		}
	}()

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("接口服务异常", zap.Error(err))
		}
	}()

	logger.Info("接口服务已启动", zap.String("addr", addr))
	return nil
}

func writeJSON(w http.ResponseWriter, v interface{}, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("写入响应失败", zap.Error(err))
	}
}
