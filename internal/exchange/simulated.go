package exchange

import (
	"sync"

	"grid-hedge-bot-go/internal/grid"
	"grid-hedge-bot-go/internal/logger"
	"grid-hedge-bot-go/internal/models"
)

// marketDataSource 是模拟交易所透传行情所需的最小只读接口。
type marketDataSource interface {
	GetPriceTick(symbol string) (float64, error)
	GetSizeTick(symbol string) (float64, error)
	GetOrderbook(symbol string) (*models.Orderbook, error)
}

// SimulatedExchange 实现了 SpotExchange 接口，用于 test 模式。
// 行情从真实交易所透传，下单只产生本地回执，不触碰真实账户；
// 账户余额由网格在最近中间价处的理论持仓推导。
type SimulatedExchange struct {
	market marketDataSource
	cfg    *models.Config

	mu          sync.Mutex
	ladder      *grid.Ladder
	lastMid     float64
	nextOrderID int64
}

// NewSimulatedExchange 创建一个新的 SimulatedExchange 实例。
func NewSimulatedExchange(market marketDataSource, cfg *models.Config) *SimulatedExchange {
	return &SimulatedExchange{
		market:      market,
		cfg:         cfg,
		lastMid:     cfg.SpotEntryPrice,
		nextOrderID: 1,
	}
}

// SetLadder 注入网格，之后余额查询才有意义。
func (e *SimulatedExchange) SetLadder(l *grid.Ladder) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ladder = l
}

// GetPriceTick 透传真实交易所的价格步长。
func (e *SimulatedExchange) GetPriceTick(symbol string) (float64, error) {
	return e.market.GetPriceTick(symbol)
}

// GetSizeTick 透传真实交易所的数量步长。
func (e *SimulatedExchange) GetSizeTick(symbol string) (float64, error) {
	return e.market.GetSizeTick(symbol)
}

// GetOrderbook 透传真实盘口。行情不可用时退回入场价构造的盘口，
// 保证 test 模式在无网络环境下也能继续推进。
func (e *SimulatedExchange) GetOrderbook(symbol string) (*models.Orderbook, error) {
	ob, err := e.market.GetOrderbook(symbol)
	if err != nil {
		logger.S().Warnf("行情不可用, 使用入场价 %f 作为盘口: %v", e.cfg.SpotEntryPrice, err)
		ob = &models.Orderbook{
			Symbol:   symbol,
			BidPrice: e.cfg.SpotEntryPrice,
			BidQty:   0,
			AskPrice: e.cfg.SpotEntryPrice,
			AskQty:   0,
		}
	}

	e.mu.Lock()
	e.lastMid = ob.Mid()
	e.mu.Unlock()
	return ob, nil
}

// GetAccountBalance 由网格在最近中间价处的理论持仓推导账户余额。
func (e *SimulatedExchange) GetAccountBalance() (map[string]float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	balances := map[string]float64{
		e.cfg.BaseAsset:  0,
		e.cfg.QuoteAsset: 0,
	}
	if e.ladder != nil {
		b := e.ladder.BalancesAt(e.lastMid)
		balances[e.cfg.BaseAsset] = b.Base
		balances[e.cfg.QuoteAsset] = b.Quote
	}
	return balances, nil
}

// PlaceOrder 伪造一个 NEW 状态的本地回执。
func (e *SimulatedExchange) PlaceOrder(req PlaceOrderRequest) (*models.Order, error) {
	e.mu.Lock()
	id := e.nextOrderID
	e.nextOrderID++
	e.mu.Unlock()

	return &models.Order{
		OrderID:       id,
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Price:         req.Price,
		Quantity:      req.Quantity,
		Status:        models.OrderStatusNew,
	}, nil
}

// CancelOrder 在模拟模式下无事可做。
func (e *SimulatedExchange) CancelOrder(symbol string, orderID int64) error {
	return nil
}

// GetOpenOrders 模拟模式下挂单由机器人自己跟踪，交易所侧始终为空。
func (e *SimulatedExchange) GetOpenOrders(symbol string) ([]models.Order, error) {
	return nil, nil
}
