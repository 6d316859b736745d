package bot

import (
	"math"
	"sort"
	"strconv"

	"grid-hedge-bot-go/internal/exchange"
	"grid-hedge-bot-go/internal/grid"
	"grid-hedge-bot-go/internal/logger"
	"grid-hedge-bot-go/internal/models"
)

// fillEpsilon 用于余额增量消耗时的浮点比较。
const fillEpsilon = 1e-9

// OrderSyncer 负责把网格期望的挂单集合与实际挂单集合对齐。
// 它持有机器人跟踪的挂单集合，每个循环周期先推断成交，再补挂缺失的
// 订单。live 模式以交易所挂单列表为权威；test 模式通过模拟余额的
// 增量推断成交。
type OrderSyncer struct {
	cfg      *models.Config
	spot     exchange.SpotExchange
	ladder   *grid.Ladder
	liveMode bool

	openOrders map[string]*models.Order // client_order_id -> 挂单

	// 模拟成交推断用: 上一周期观察到的基础资产余额
	lastBaseBalance    float64
	hasLastBaseBalance bool
}

// NewOrderSyncer 创建一个新的 OrderSyncer。
func NewOrderSyncer(cfg *models.Config, spot exchange.SpotExchange, ladder *grid.Ladder) *OrderSyncer {
	return &OrderSyncer{
		cfg:        cfg,
		spot:       spot,
		ladder:     ladder,
		liveMode:   !cfg.IsTestMode(),
		openOrders: make(map[string]*models.Order),
	}
}

// ClientOrderID 由机器人名称和网格价格确定性地派生订单标识，
// 用于在交易所挂单列表中识别自己在某个档位上的订单。
func (s *OrderSyncer) ClientOrderID(price float64) string {
	return s.cfg.BotName + "_" + strconv.FormatFloat(price, 'f', -1, 64)
}

// OpenOrders 返回当前跟踪的挂单快照，供状态持久化使用。
func (s *OrderSyncer) OpenOrders() []models.Order {
	orders := make([]models.Order, 0, len(s.openOrders))
	for _, o := range s.openOrders {
		orders = append(orders, *o)
	}
	return orders
}

// RestoreOpenOrders 从持久化状态恢复跟踪的挂单集合(live 模式重启)。
func (s *OrderSyncer) RestoreOpenOrders(orders []models.Order) {
	s.openOrders = make(map[string]*models.Order, len(orders))
	for i := range orders {
		o := orders[i]
		s.openOrders[o.ClientOrderID] = &o
	}
}

// Sync 执行一轮对账: 先推断已成交订单并将其从跟踪集合移除，
// 再把缺失的网格挂单补上。返回本周期推断出的成交。
// 市场价格与挂单集合不变时，重复调用不产生任何新动作。
func (s *OrderSyncer) Sync(ob *models.Orderbook, baseBalance float64) []models.Order {
	var fills []models.Order
	if s.liveMode {
		fills = s.detectLiveFills()
	} else {
		fills = s.detectSimulatedFills(ob, baseBalance)
	}

	s.placeMissing(ob)
	return fills
}

// detectLiveFills 以交易所挂单列表为权威: 本地跟踪但已不在列表中的
// 订单视为已成交。列表获取失败时跳过本周期的成交检测。
func (s *OrderSyncer) detectLiveFills() []models.Order {
	venueOrders, err := s.spot.GetOpenOrders(s.cfg.SpotMarket)
	if err != nil {
		logger.S().Warnf("获取挂单列表失败, 跳过本周期成交检测: %v", err)
		return nil
	}

	onVenue := make(map[string]bool, len(venueOrders))
	for _, o := range venueOrders {
		onVenue[o.ClientOrderID] = true
	}

	var fills []models.Order
	for id, o := range s.openOrders {
		if onVenue[id] {
			continue
		}
		o.Status = models.OrderStatusFilled
		fills = append(fills, *o)
		delete(s.openOrders, id)
		logger.S().Infof("检测到成交: %s %f @ %f", o.Side, o.Quantity, o.Price)
	}
	return fills
}

// detectSimulatedFills 通过基础资产余额的增量推断成交。
// 余额增加说明买单成交: 从高到低消耗位于当前买一价之上的买单；
// 余额减少说明卖单成交: 从低到高消耗位于当前卖一价之下的卖单。
// 这是对撮合行为的启发式近似，不是真实订单簿模拟。
func (s *OrderSyncer) detectSimulatedFills(ob *models.Orderbook, baseBalance float64) []models.Order {
	if !s.hasLastBaseBalance {
		s.lastBaseBalance = baseBalance
		s.hasLastBaseBalance = true
		return nil
	}

	delta := baseBalance - s.lastBaseBalance
	s.lastBaseBalance = baseBalance
	if math.Abs(delta) <= fillEpsilon {
		return nil
	}

	// 只有严格越过盘口的订单才算穿过了成交价:
	// 恰好停在买一/卖一上的订单仍视为在挂。
	var candidates []*models.Order
	if delta > 0 {
		for _, o := range s.openOrders {
			if o.Side == models.Buy && o.Price > ob.BidPrice {
				candidates = append(candidates, o)
			}
		}
		sortOrdersByPrice(candidates, false)
	} else {
		for _, o := range s.openOrders {
			if o.Side == models.Sell && o.Price < ob.AskPrice {
				candidates = append(candidates, o)
			}
		}
		sortOrdersByPrice(candidates, true)
	}

	remaining := math.Abs(delta)
	var fills []models.Order
	for _, o := range candidates {
		if remaining <= fillEpsilon {
			break
		}
		o.Status = models.OrderStatusFilled
		fills = append(fills, *o)
		delete(s.openOrders, o.ClientOrderID)
		remaining -= o.Quantity
		logger.S().Infof("推断模拟成交: %s %f @ %f", o.Side, o.Quantity, o.Price)
	}
	return fills
}

// placeMissing 计算当前价格两侧各 N 个候选档位，补挂其中尚未跟踪的
// 订单。新挂买单价被钳制到不高于买一，卖单价不低于卖一，保证挂单
// 不会吃掉对手盘。单笔下单失败只记录日志，该档位留待下一周期重试。
func (s *OrderSyncer) placeMissing(ob *models.Orderbook) {
	mid := ob.Mid()
	buys, sells := s.ladder.OrdersForPrice(mid, s.cfg.GridMaxOpenOrders)

	for _, lvl := range buys {
		if s.isTracked(lvl.Price, models.Buy) {
			continue
		}
		price := math.Min(lvl.Price, ob.BidPrice)
		s.place(lvl, models.Buy, price)
	}
	for _, lvl := range sells {
		if s.isTracked(lvl.Price, models.Sell) {
			continue
		}
		price := math.Max(lvl.Price, ob.AskPrice)
		s.place(lvl, models.Sell, price)
	}
}

// isTracked 判断档位是否已有在途订单。live 模式按 client_order_id
// 匹配, test 模式按 (价格,方向) 匹配。
func (s *OrderSyncer) isTracked(gridPrice float64, side models.Side) bool {
	if s.liveMode {
		_, ok := s.openOrders[s.ClientOrderID(gridPrice)]
		return ok
	}
	for _, o := range s.openOrders {
		if o.Side == side && o.Price == gridPrice {
			return true
		}
	}
	return false
}

func (s *OrderSyncer) place(lvl grid.Level, side models.Side, price float64) {
	req := exchange.PlaceOrderRequest{
		Symbol:        s.cfg.SpotMarket,
		Side:          side,
		Type:          "LIMIT",
		Quantity:      lvl.OrderSizeBase,
		Price:         price,
		TimeInForce:   "GTC",
		PostOnly:      true,
		ClientOrderID: s.ClientOrderID(lvl.Price),
	}

	order, err := s.spot.PlaceOrder(req)
	if err != nil {
		logger.S().Errorf("挂单失败 %s @ %f: %v", side, price, err)
		return
	}

	// 跟踪集合记录网格档位价格而非钳制后的价格，
	// 成交推断和重复检测都以档位价格为准。
	order.Price = lvl.Price
	s.openOrders[order.ClientOrderID] = order
	logger.S().Infof("已挂单: %s %f @ %f (client_id: %s)", side, order.Quantity, lvl.Price, order.ClientOrderID)
}

// CancelAll 尽力取消所有跟踪中的挂单。live 模式下单笔取消失败只记录
// 日志不中断。返回仍未取消成功的订单数。
func (s *OrderSyncer) CancelAll() int {
	failed := 0
	for id, o := range s.openOrders {
		if err := s.spot.CancelOrder(o.Symbol, o.OrderID); err != nil {
			logger.S().Errorf("取消订单 %d (%s) 失败: %v", o.OrderID, id, err)
			failed++
			continue
		}
		delete(s.openOrders, id)
	}
	return failed
}

func sortOrdersByPrice(orders []*models.Order, ascending bool) {
	sort.Slice(orders, func(i, j int) bool {
		if ascending {
			return orders[i].Price < orders[j].Price
		}
		return orders[i].Price > orders[j].Price
	})
}
