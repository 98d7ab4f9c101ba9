package broker

import "context"

// OrderStatus 表示券商侧订单状态。
type OrderStatus string

const (
	StatusOpen            OrderStatus = "OPEN"
	StatusTransit         OrderStatus = "TRANSIT"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusPending         OrderStatus = "PENDING"
	StatusFilled          OrderStatus = "FILLED"
	StatusCancelled       OrderStatus = "CANCELLED"
	StatusRejected        OrderStatus = "REJECTED"
)

var openStatuses = map[OrderStatus]struct{}{
	StatusOpen:            {},
	StatusTransit:         {},
	StatusPartiallyFilled: {},
	StatusPending:         {},
}

// IsOpen 判断订单是否仍可改单或撤单。
func (s OrderStatus) IsOpen() bool {
	_, ok := openStatuses[s]
	return ok
}

// Side 表示买卖方向。
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType 表示委托类型。
type OrderType string

const (
	TypeLimit  OrderType = "LIMIT"
	TypeMarket OrderType = "MARKET"
)

// OrderRecord 为券商返回的订单快照，核心逻辑只读。
type OrderRecord struct {
	OrderID    string      `json:"order_id"`
	SecurityID string      `json:"security_id"`
	Status     OrderStatus `json:"status"`
	Side       Side        `json:"side"`
	Type       OrderType   `json:"type"`
	Price      float64     `json:"price"`
	Quantity   int         `json:"quantity"`
}

// Position 为券商持仓快照中的单条净持仓。
type Position struct {
	SecurityID      string  `json:"security_id"`
	TradingSymbol   string  `json:"trading_symbol"`
	InstrumentToken string  `json:"instrument_token"`
	NetQuantity     int     `json:"net_quantity"`
	AveragePrice    float64 `json:"average_price"`
}

// Client 抽象单个账户的券商能力，由具体 SDK 适配器实现。
// 所有调用在调用方视角均为同步阻塞，且不保证传输层幂等，
// 重复提交需由调用方防护。
type Client interface {
	ListOrders(ctx context.Context) ([]OrderRecord, error)
	PlaceOrder(ctx context.Context, securityID string, side Side, quantity int, orderType OrderType, price float64) (OrderRecord, error)
	ModifyOrder(ctx context.Context, orderID string, quantity int, price float64, orderType OrderType) (OrderRecord, error)
	CancelOrder(ctx context.Context, orderID string) error
	ListPositions(ctx context.Context) ([]Position, error)
	LastTradedPrice(ctx context.Context, instrumentToken string) (float64, error)
}
