package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"grid-hedge-bot-go/internal/logger"
	"grid-hedge-bot-go/internal/models"

	"github.com/adshao/go-binance/v2"
)

// BinanceExchange 实现了 SpotExchange 接口，用于与币安现货进行交互。
// 行情读取(盘口/精度)失败时按配置做有限次指数退避重试，重试耗尽后
// 将错误上抛，由调用方决定降级策略。
type BinanceExchange struct {
	client        *binance.Client
	retryAttempts int
	retryDelay    time.Duration
}

// NewBinanceExchange 创建一个新的 BinanceExchange 实例。
func NewBinanceExchange(apiKey, apiSecret string, retryAttempts, retryInitialDelayMs int) *BinanceExchange {
	if retryAttempts <= 0 {
		retryAttempts = 1
	}
	if retryInitialDelayMs <= 0 {
		retryInitialDelayMs = 500
	}
	return &BinanceExchange{
		client:        binance.NewClient(apiKey, apiSecret),
		retryAttempts: retryAttempts,
		retryDelay:    time.Duration(retryInitialDelayMs) * time.Millisecond,
	}
}

// withRetry 对只读行情请求做有限次重试。下单/撤单等有副作用的操作不重试。
func (e *BinanceExchange) withRetry(op string, fn func() error) error {
	delay := e.retryDelay
	var err error
	for attempt := 0; attempt <= e.retryAttempts; attempt++ {
		if attempt > 0 {
			logger.S().Warnf("%s 失败, %v 后重试 (%d/%d): %v", op, delay, attempt, e.retryAttempts, err)
			time.Sleep(delay)
			delay *= 2
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return err
}

func (e *BinanceExchange) symbolInfo(symbol string) (*binance.Symbol, error) {
	var info *binance.ExchangeInfo
	err := e.withRetry("获取交易规则", func() error {
		var err error
		info, err = e.client.NewExchangeInfoService().Symbol(symbol).Do(context.Background())
		return err
	})
	if err != nil {
		return nil, err
	}
	for i := range info.Symbols {
		if info.Symbols[i].Symbol == symbol {
			return &info.Symbols[i], nil
		}
	}
	return nil, fmt.Errorf("未找到交易对 %s 的信息", symbol)
}

// GetPriceTick 获取交易对的最小价格步长。
func (e *BinanceExchange) GetPriceTick(symbol string) (float64, error) {
	s, err := e.symbolInfo(symbol)
	if err != nil {
		return 0, err
	}
	if f := s.PriceFilter(); f != nil {
		return strconv.ParseFloat(f.TickSize, 64)
	}
	logger.S().Warnf("未找到 %s 的 PRICE_FILTER, 使用默认值 0.01", symbol)
	return 0.01, nil
}

// GetSizeTick 获取交易对的最小数量步长。
func (e *BinanceExchange) GetSizeTick(symbol string) (float64, error) {
	s, err := e.symbolInfo(symbol)
	if err != nil {
		return 0, err
	}
	if f := s.LotSizeFilter(); f != nil {
		return strconv.ParseFloat(f.StepSize, 64)
	}
	logger.S().Warnf("未找到 %s 的 LOT_SIZE, 使用默认值 0.000001", symbol)
	return 0.000001, nil
}

// GetOrderbook 获取盘口一档行情。
func (e *BinanceExchange) GetOrderbook(symbol string) (*models.Orderbook, error) {
	var tickers []*binance.BookTicker
	err := e.withRetry("获取盘口", func() error {
		var err error
		tickers, err = e.client.NewListBookTickersService().Symbol(symbol).Do(context.Background())
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(tickers) == 0 {
		return nil, fmt.Errorf("交易所未返回 %s 的盘口数据", symbol)
	}

	t := tickers[0]
	bidPrice, err1 := strconv.ParseFloat(t.BidPrice, 64)
	bidQty, err2 := strconv.ParseFloat(t.BidQuantity, 64)
	askPrice, err3 := strconv.ParseFloat(t.AskPrice, 64)
	askQty, err4 := strconv.ParseFloat(t.AskQuantity, 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return nil, fmt.Errorf("解析 %s 盘口数据失败", symbol)
	}

	return &models.Orderbook{
		Symbol:   t.Symbol,
		BidPrice: bidPrice,
		BidQty:   bidQty,
		AskPrice: askPrice,
		AskQty:   askQty,
	}, nil
}

// GetAccountBalance 获取账户全部资产余额(free+locked)。
func (e *BinanceExchange) GetAccountBalance() (map[string]float64, error) {
	account, err := e.client.NewGetAccountService().Do(context.Background())
	if err != nil {
		return nil, fmt.Errorf("获取账户信息失败: %w", err)
	}

	balances := make(map[string]float64, len(account.Balances))
	for _, b := range account.Balances {
		free, _ := strconv.ParseFloat(b.Free, 64)
		locked, _ := strconv.ParseFloat(b.Locked, 64)
		balances[b.Asset] = free + locked
	}
	return balances, nil
}

// PlaceOrder 下单。post_only 的限价单映射为 LIMIT_MAKER，
// 确保挂单只做 maker，不会吃掉对手盘。
func (e *BinanceExchange) PlaceOrder(req PlaceOrderRequest) (*models.Order, error) {
	svc := e.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(binance.SideType(req.Side)).
		Quantity(strconv.FormatFloat(req.Quantity, 'f', -1, 64))

	switch {
	case req.Type == "MARKET":
		svc = svc.Type(binance.OrderTypeMarket)
	case req.PostOnly:
		svc = svc.Type(binance.OrderTypeLimitMaker).
			Price(strconv.FormatFloat(req.Price, 'f', -1, 64))
	default:
		tif := req.TimeInForce
		if tif == "" {
			tif = "GTC"
		}
		svc = svc.Type(binance.OrderTypeLimit).
			TimeInForce(binance.TimeInForceType(tif)).
			Price(strconv.FormatFloat(req.Price, 'f', -1, 64))
	}
	if req.ClientOrderID != "" {
		svc = svc.NewClientOrderID(req.ClientOrderID)
	}

	res, err := svc.Do(context.Background())
	if err != nil {
		return nil, fmt.Errorf("下单失败 %s %s: %w", req.Side, req.Symbol, err)
	}

	price, _ := strconv.ParseFloat(res.Price, 64)
	if price == 0 {
		price = req.Price
	}
	qty, _ := strconv.ParseFloat(res.OrigQuantity, 64)

	return &models.Order{
		OrderID:       res.OrderID,
		ClientOrderID: res.ClientOrderID,
		Symbol:        res.Symbol,
		Side:          req.Side,
		Price:         price,
		Quantity:      qty,
		Status:        models.OrderStatusNew,
	}, nil
}

// CancelOrder 取消订单。
func (e *BinanceExchange) CancelOrder(symbol string, orderID int64) error {
	_, err := e.client.NewCancelOrderService().
		Symbol(symbol).
		OrderID(orderID).
		Do(context.Background())
	if err != nil {
		return fmt.Errorf("取消订单 %d 失败: %w", orderID, err)
	}
	return nil
}

// GetOpenOrders 获取交易所当前的全部挂单。live 模式下该列表是
// 订单状态的权威来源：本地跟踪但不在列表中的订单视为已成交。
func (e *BinanceExchange) GetOpenOrders(symbol string) ([]models.Order, error) {
	raw, err := e.client.NewListOpenOrdersService().Symbol(symbol).Do(context.Background())
	if err != nil {
		return nil, fmt.Errorf("获取挂单列表失败: %w", err)
	}

	orders := make([]models.Order, 0, len(raw))
	for _, o := range raw {
		price, _ := strconv.ParseFloat(o.Price, 64)
		qty, _ := strconv.ParseFloat(o.OrigQuantity, 64)
		orders = append(orders, models.Order{
			OrderID:       o.OrderID,
			ClientOrderID: o.ClientOrderID,
			Symbol:        o.Symbol,
			Side:          models.Side(o.Side),
			Price:         price,
			Quantity:      qty,
			Status:        models.OrderStatusNew,
		})
	}
	return orders, nil
}
