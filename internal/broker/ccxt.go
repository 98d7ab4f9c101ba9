package broker

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"options-trader/internal/config"
)

// ccxtExchange 为适配器依赖的 ccxt 能力子集，便于测试替换。
type ccxtExchange interface {
	FetchOpenOrders(options ...ccxt.FetchOpenOrdersOptions) ([]ccxt.Order, error)
	CreateLimitOrder(symbol string, side string, amount float64, price float64, options ...ccxt.CreateLimitOrderOptions) (ccxt.Order, error)
	CreateMarketOrder(symbol string, side string, amount float64, options ...ccxt.CreateMarketOrderOptions) (ccxt.Order, error)
	EditOrder(id string, symbol string, typeVar string, side string, options ...ccxt.EditOrderOptions) (ccxt.Order, error)
	CancelOrder(id string, options ...ccxt.CancelOrderOptions) (ccxt.Order, error)
	FetchPositions(options ...ccxt.FetchPositionsOptions) ([]ccxt.Position, error)
	FetchTicker(symbol string, options ...ccxt.FetchTickerOptions) (ccxt.Ticker, error)
}

var _ ccxtExchange = (*ccxt.Deribit)(nil)

// CCXTClient 基于 ccxt SDK 实现 Client 能力。
type CCXTClient struct {
	accountID string
	exchange  ccxtExchange
	timeout   time.Duration
	logger    *zap.Logger
}

// NewCCXTClient 为单个账户构造券商客户端。
func NewCCXTClient(acct config.AccountConfig, cfg config.BrokerConfig, logger *zap.Logger) (*CCXTClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	userConfig := map[string]interface{}{
		"enableRateLimit": true,
	}
	if acct.APIKey != "" {
		userConfig["apiKey"] = acct.APIKey
	}
	if acct.APISecret != "" {
		userConfig["secret"] = acct.APISecret
	}
	if acct.APIPass != "" {
		userConfig["password"] = acct.APIPass
	}

	ex := ccxt.NewDeribit(userConfig)
	if acct.UseSandbox {
		ex.SetSandboxMode(true)
	}

	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &CCXTClient{
		accountID: acct.ID,
		exchange:  ex,
		timeout:   timeout,
		logger:    logger,
	}, nil
}

// AccountID 返回适配器绑定的账户标识。
func (c *CCXTClient) AccountID() string {
	return c.accountID
}

// ListOrders 拉取账户全部可见订单。
func (c *CCXTClient) ListOrders(ctx context.Context) ([]OrderRecord, error) {
	var raw []ccxt.Order
	err := c.call(ctx, "fetch_open_orders", func() error {
		orders, err := c.exchange.FetchOpenOrders()
		if err != nil {
			return err
		}
		raw = orders
		return nil
	})
	if err != nil {
		return nil, err
	}

	records := make([]OrderRecord, 0, len(raw))
	for _, o := range raw {
		records = append(records, convertOrder(o))
	}
	return records, nil
}

// PlaceOrder 提交新委托。
func (c *CCXTClient) PlaceOrder(ctx context.Context, securityID string, side Side, quantity int, orderType OrderType, price float64) (OrderRecord, error) {
	var raw ccxt.Order
	err := c.call(ctx, "place_order", func() error {
		var (
			order ccxt.Order
			err   error
		)
		switch orderType {
		case TypeMarket:
			order, err = c.exchange.CreateMarketOrder(securityID, ccxtSide(side), float64(quantity))
		default:
			order, err = c.exchange.CreateLimitOrder(securityID, ccxtSide(side), float64(quantity), price)
		}
		if err != nil {
			return err
		}
		raw = order
		return nil
	})
	if err != nil {
		if IsRejection(err) {
			return OrderRecord{}, fmt.Errorf("%w: %v", ErrRejected, err)
		}
		return OrderRecord{}, err
	}

	record := convertOrder(raw)
	if record.SecurityID == "" {
		record.SecurityID = securityID
	}
	return record, nil
}

// ModifyOrder 修改已有委托的数量与价格。
// ccxt 的 EditOrder 需要原始委托的标的与方向，先从在途订单中定位。
func (c *CCXTClient) ModifyOrder(ctx context.Context, orderID string, quantity int, price float64, orderType OrderType) (OrderRecord, error) {
	existing, err := c.findOpenOrder(ctx, orderID)
	if err != nil {
		return OrderRecord{}, err
	}

	var raw ccxt.Order
	err = c.call(ctx, "edit_order", func() error {
		order, err := c.exchange.EditOrder(
			orderID,
			existing.SecurityID,
			ccxtOrderType(orderType),
			ccxtSide(existing.Side),
			ccxt.WithEditOrderAmount(float64(quantity)),
			ccxt.WithEditOrderPrice(price),
		)
		if err != nil {
			return err
		}
		raw = order
		return nil
	})
	if err != nil {
		if IsRejection(err) {
			return OrderRecord{}, fmt.Errorf("%w: %v", ErrRejected, err)
		}
		return OrderRecord{}, err
	}

	record := convertOrder(raw)
	if record.OrderID == "" {
		record.OrderID = orderID
	}
	if record.SecurityID == "" {
		record.SecurityID = existing.SecurityID
	}
	return record, nil
}

// CancelOrder 撤销指定委托。SDK 返回的订单快照不向上传递。
func (c *CCXTClient) CancelOrder(ctx context.Context, orderID string) error {
	return c.call(ctx, "cancel_order", func() error {
		_, err := c.exchange.CancelOrder(orderID)
		return err
	})
}

// ListPositions 拉取账户净持仓。
func (c *CCXTClient) ListPositions(ctx context.Context) ([]Position, error) {
	var raw []ccxt.Position
	err := c.call(ctx, "fetch_positions", func() error {
		positions, err := c.exchange.FetchPositions()
		if err != nil {
			return err
		}
		raw = positions
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := make([]Position, 0, len(raw))
	for _, p := range raw {
		pos := convertPosition(p)
		if pos.NetQuantity == 0 {
			continue
		}
		result = append(result, pos)
	}
	return result, nil
}

// LastTradedPrice 读取最新成交价。
func (c *CCXTClient) LastTradedPrice(ctx context.Context, instrumentToken string) (float64, error) {
	var price float64
	err := c.call(ctx, "fetch_ticker", func() error {
		ticker, err := c.exchange.FetchTicker(instrumentToken)
		if err != nil {
			return err
		}
		price = derefFloat(ticker.Last)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if price <= 0 {
		return 0, fmt.Errorf("broker: %s 未返回有效成交价", instrumentToken)
	}
	return price, nil
}

func (c *CCXTClient) findOpenOrder(ctx context.Context, orderID string) (OrderRecord, error) {
	orders, err := c.ListOrders(ctx)
	if err != nil {
		return OrderRecord{}, err
	}
	for _, o := range orders {
		if o.OrderID == orderID {
			return o, nil
		}
	}
	return OrderRecord{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
}

// call 为 SDK 的阻塞调用套上有界超时；超时按账户/任务级失败处理。
func (c *CCXTClient) call(ctx context.Context, operation string, fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	done := make(chan error, 1)
	start := time.Now()
	go func() {
		done <- fn()
	}()

	select {
	case <-ctx.Done():
		c.logger.Warn("券商调用超时",
			zap.String("account", c.accountID),
			zap.String("operation", operation),
			zap.Duration("elapsed", time.Since(start)),
		)
		return fmt.Errorf("broker: %s 调用超时: %w", operation, ctx.Err())
	case err := <-done:
		if err != nil {
			c.logger.Warn("券商调用失败",
				zap.String("account", c.accountID),
				zap.String("operation", operation),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err),
			)
			return fmt.Errorf("broker: %s 调用失败: %w", operation, err)
		}
		return nil
	}
}

func convertOrder(o ccxt.Order) OrderRecord {
	filled := derefFloat(o.Filled)
	status := mapStatus(derefString(o.Status), filled)

	return OrderRecord{
		OrderID:    derefString(o.Id),
		SecurityID: derefString(o.Symbol),
		Status:     status,
		Side:       mapSide(derefString(o.Side)),
		Type:       mapOrderType(derefString(o.Type)),
		Price:      derefFloat(o.Price),
		Quantity:   int(math.Round(derefFloat(o.Amount))),
	}
}

func convertPosition(p ccxt.Position) Position {
	symbol := derefString(p.Symbol)
	qty := derefFloat(p.Contracts)
	if strings.EqualFold(derefString(p.Side), "short") {
		qty = -qty
	}

	return Position{
		SecurityID:      symbol,
		TradingSymbol:   symbol,
		InstrumentToken: symbol,
		NetQuantity:     int(math.Round(qty)),
		AveragePrice:    derefFloat(p.EntryPrice),
	}
}

func mapStatus(raw string, filled float64) OrderStatus {
	switch strings.ToLower(raw) {
	case "open":
		if filled > 0 {
			return StatusPartiallyFilled
		}
		return StatusOpen
	case "closed":
		return StatusFilled
	case "canceled", "cancelled":
		return StatusCancelled
	case "rejected", "expired":
		return StatusRejected
	case "pending", "untriggered":
		return StatusPending
	default:
		return StatusTransit
	}
}

func mapSide(raw string) Side {
	if strings.EqualFold(raw, "sell") {
		return SideSell
	}
	return SideBuy
}

func mapOrderType(raw string) OrderType {
	if strings.EqualFold(raw, "market") {
		return TypeMarket
	}
	return TypeLimit
}

func ccxtSide(side Side) string {
	if side == SideSell {
		return "sell"
	}
	return "buy"
}

func ccxtOrderType(t OrderType) string {
	if t == TypeMarket {
		return "market"
	}
	return "limit"
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func derefFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
