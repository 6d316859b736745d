package grid

import (
	"fmt"
	"math"

	"grid-hedge-bot-go/internal/logger"
	"grid-hedge-bot-go/internal/models"

	"github.com/shopspring/decimal"
)

// MinOrderSizeQuote 是单个网格订单允许的最小计价货币价值。
// 低于该值的订单在多数交易所会被最小名义价值过滤器拒绝。
const MinOrderSizeQuote = 10.0

// Level 代表网格中的一个价格档位及其资金需求。
// BaseBalance 是价格位于该档位时，覆盖所有更高卖单所需持有的基础资产总量；
// QuoteBalance 是覆盖该档位及以下所有买单所需持有的计价资产总量。
type Level struct {
	Price          float64 `json:"price"`
	OrderSizeBase  float64 `json:"order_size_base"`
	OrderSizeQuote float64 `json:"order_size_quote"`
	BaseBalance    float64 `json:"base_balance"`
	QuoteBalance   float64 `json:"quote_balance"`
}

// Ladder 是一次性构建、此后不可变的完整网格。
// Levels 按价格严格升序排列。BaseNeeded/QuoteNeeded 取各档位资金需求的
// 最大值，保证价格在区间内任意单调移动时没有档位会资金不足。
type Ladder struct {
	Levels      []Level
	EntryIndex  int
	BaseNeeded  float64
	QuoteNeeded float64
	MinPrice    float64
	MaxPrice    float64
}

// Balances 是某一价格下账户应持有的资产快照(模拟模式使用)。
type Balances struct {
	Base  float64
	Quote float64
}

// Calculator 根据策略配置和交易对精度规则生成网格。
type Calculator struct {
	cfg       *models.Config
	priceTick float64
	sizeTick  float64
}

// NewCalculator 创建一个新的网格计算器。sizeTick 为0时使用默认精度。
func NewCalculator(cfg *models.Config, priceTick, sizeTick float64) *Calculator {
	if sizeTick == 0 {
		sizeTick = 0.000001
	}
	logger.S().Infof("初始化网格计算器, price_tick: %v, size_tick: %v", priceTick, sizeTick)
	return &Calculator{
		cfg:       cfg,
		priceTick: priceTick,
		sizeTick:  sizeTick,
	}
}

// RoundToTick 将数值四舍五入到最接近的tick倍数。
// 使用 decimal 避免浮点误差，采用 half-up 舍入。
func RoundToTick(value, tick float64) float64 {
	v := decimal.NewFromFloat(value)
	t := decimal.NewFromFloat(tick)
	f, _ := v.Div(t).Round(0).Mul(t).Float64()
	return f
}

// Calculate 构建完整的网格。
// 从区间上沿开始按价差比例向下步进，每一步都重新舍入到price_tick；
// 当舍入后的下一价格不严格小于当前价格时(价差相对tick太小)，
// 强制下移一个tick，保证价格严格单调。
func (c *Calculator) Calculate() (*Ladder, error) {
	if c.cfg.SpotOrderSizeQuote < MinOrderSizeQuote {
		return nil, fmt.Errorf("spot_order_size_quote must be at least %v, got %v",
			MinOrderSizeQuote, c.cfg.SpotOrderSizeQuote)
	}
	if c.cfg.SpotDownRangePercent <= 0 || c.cfg.SpotUpRangePercent <= 0 {
		return nil, fmt.Errorf("grid range percents must be positive, got down=%v up=%v",
			c.cfg.SpotDownRangePercent, c.cfg.SpotUpRangePercent)
	}

	entryPrice := c.cfg.SpotEntryPrice
	minPrice := RoundToTick(entryPrice*(1-c.cfg.SpotDownRangePercent/100), c.priceTick)
	maxPrice := RoundToTick(entryPrice*(1+c.cfg.SpotUpRangePercent/100), c.priceTick)

	logger.S().Infof("网格区间: %.8f - %.8f", minPrice, maxPrice)

	// 自上而下生成档位
	var levels []Level
	currentPrice := maxPrice
	for currentPrice >= minPrice {
		orderSizeBase := RoundToTick(c.cfg.SpotOrderSizeQuote/currentPrice, c.sizeTick)
		levels = append(levels, Level{
			Price:          currentPrice,
			OrderSizeBase:  orderSizeBase,
			OrderSizeQuote: orderSizeBase * currentPrice,
		})

		nextPrice := RoundToTick(currentPrice*(1-c.cfg.SpotOrdersDiffPercent/100), c.priceTick)
		if nextPrice >= currentPrice {
			nextPrice = currentPrice - c.priceTick
		}
		currentPrice = nextPrice
	}

	// 翻转为价格升序
	for i, j := 0, len(levels)-1; i < j; i, j = i+1, j-1 {
		levels[i], levels[j] = levels[j], levels[i]
	}

	ladder := &Ladder{
		Levels:   levels,
		MinPrice: minPrice,
		MaxPrice: maxPrice,
	}
	ladder.calculateBalances()
	ladder.EntryIndex = ladder.findEntryIndex(entryPrice)
	for _, lvl := range ladder.Levels {
		ladder.BaseNeeded = math.Max(ladder.BaseNeeded, lvl.BaseBalance)
		ladder.QuoteNeeded = math.Max(ladder.QuoteNeeded, lvl.QuoteBalance)
	}

	logger.S().Infof("网格生成完成, 共 %d 个档位", len(ladder.Levels))
	logger.S().Infof("初始资金需求 - 基础资产: %.6f, 计价资产: %.2f", ladder.BaseNeeded, ladder.QuoteNeeded)

	return ladder, nil
}

// calculateBalances 计算每个档位的资金需求，保证任何档位都不会出现负余额。
func (l *Ladder) calculateBalances() {
	// 基础资产: 从最高价向下累加，档位i持有严格高于i的所有卖单数量
	cumulativeBase := 0.0
	for i := len(l.Levels) - 1; i >= 0; i-- {
		l.Levels[i].BaseBalance = cumulativeBase
		cumulativeBase += l.Levels[i].OrderSizeBase
	}

	// 计价资产: 从最低价向上累加，档位i持有i及以下所有买单的价值
	cumulativeQuote := 0.0
	for i := 0; i < len(l.Levels); i++ {
		cumulativeQuote += l.Levels[i].OrderSizeQuote
		l.Levels[i].QuoteBalance = cumulativeQuote
	}
}

// findEntryIndex 返回价格与入场价绝对距离最小的档位下标，距离相同时取下标较小者。
func (l *Ladder) findEntryIndex(entryPrice float64) int {
	bestIndex := 0
	bestDiff := math.Inf(1)
	for i, lvl := range l.Levels {
		diff := math.Abs(lvl.Price - entryPrice)
		if diff < bestDiff {
			bestDiff = diff
			bestIndex = i
		}
	}
	return bestIndex
}

// OrdersForPrice 返回当前价格两侧的候选档位:
// 买单候选是低于当前价且离它最近的 maxOrders 个档位，
// 卖单候选是高于当前价且离它最近的 maxOrders 个档位。
func (l *Ladder) OrdersForPrice(currentPrice float64, maxOrders int) (buys, sells []Level) {
	split := 0
	for split < len(l.Levels) && l.Levels[split].Price < currentPrice {
		split++
	}

	buyStart := split - maxOrders
	if buyStart < 0 {
		buyStart = 0
	}
	buys = append(buys, l.Levels[buyStart:split]...)

	sellStart := split
	for sellStart < len(l.Levels) && l.Levels[sellStart].Price <= currentPrice {
		sellStart++
	}
	sellEnd := sellStart + maxOrders
	if sellEnd > len(l.Levels) {
		sellEnd = len(l.Levels)
	}
	sells = append(sells, l.Levels[sellStart:sellEnd]...)

	return buys, sells
}

// BalancesAt 返回价格为 price 时账户应持有的资产。
// 价格越过区间下沿时全部资金换成基础资产，越过上沿时全部换成计价资产。
func (l *Ladder) BalancesAt(price float64) Balances {
	if len(l.Levels) == 0 {
		return Balances{}
	}
	if price < l.Levels[0].Price {
		return Balances{Base: l.BaseNeeded, Quote: 0}
	}
	if price > l.Levels[len(l.Levels)-1].Price {
		return Balances{Base: 0, Quote: l.QuoteNeeded}
	}

	// 取不高于当前价的最高档位
	idx := 0
	for i, lvl := range l.Levels {
		if lvl.Price <= price {
			idx = i
		}
	}
	b := Balances{
		Base:  l.Levels[idx].BaseBalance,
		Quote: l.Levels[idx].QuoteBalance,
	}
	if b.Base < 0 {
		b.Base = 0
	}
	if b.Quote < 0 {
		b.Quote = 0
	}
	return b
}
