package exchange

import "grid-hedge-bot-go/internal/models"

// PlaceOrderRequest 描述一次下单请求。
type PlaceOrderRequest struct {
	Symbol        string
	Side          models.Side
	Type          string // "LIMIT" 或 "MARKET"
	Quantity      float64
	Price         float64
	TimeInForce   string // 限价单有效方式，如 "GTC"
	PostOnly      bool
	ClientOrderID string
}

// SpotExchange 定义了机器人消费的现货交易所能力集合。
// 这使得交易逻辑可以在真实交易和模拟运行之间轻松切换。
type SpotExchange interface {
	GetPriceTick(symbol string) (float64, error)
	GetSizeTick(symbol string) (float64, error)
	GetOrderbook(symbol string) (*models.Orderbook, error)
	GetAccountBalance() (map[string]float64, error)
	PlaceOrder(req PlaceOrderRequest) (*models.Order, error)
	CancelOrder(symbol string, orderID int64) error
	GetOpenOrders(symbol string) ([]models.Order, error)
}

// OptionsExchange 定义了期权行情端的能力集合。
// PriceForVolume 按成交量加权遍历订单簿，返回给定数量的可执行均价；
// 流动性不足时返回0。
type OptionsExchange interface {
	GetOptionOrderbook(instrument string) (*models.OptionOrderbook, error)
	PriceForVolume(instrument string, volume float64, side models.Side) (float64, error)
}
