package pnl

import (
	"time"

	"grid-hedge-bot-go/internal/exchange"
	"grid-hedge-bot-go/internal/logger"
	"grid-hedge-bot-go/internal/models"
	"grid-hedge-bot-go/internal/store"
)

// Snapshot is one PnL evaluation. SpotUnrealized is a mark-to-market
// value delta that already embeds the realized component, so the grand
// total is SpotUnrealized plus the two option legs, not plus realized
// again.
type Snapshot struct {
	SpotRealized   float64
	SpotUnrealized float64
	CallUnrealized float64
	PutUnrealized  float64
	BuyTrades      int
	SellTrades     int
}

// Total returns the run PnL in quote currency.
func (s Snapshot) Total() float64 {
	return s.SpotUnrealized + s.CallUnrealized + s.PutUnrealized
}

// Engine computes spot and option PnL from trade history and current
// market quotes. It holds no mutable state of its own.
type Engine struct {
	cfg     *models.Config
	options exchange.OptionsExchange

	initialBase  float64
	initialQuote float64
}

// NewEngine creates a PnL engine. initialBase/initialQuote are the
// capital requirements of the ladder, used as the mark-to-market
// baseline.
func NewEngine(cfg *models.Config, options exchange.OptionsExchange, initialBase, initialQuote float64) *Engine {
	return &Engine{
		cfg:          cfg,
		options:      options,
		initialBase:  initialBase,
		initialQuote: initialQuote,
	}
}

// Realized computes average-cost realized spot PnL over a full trade
// history: the spread between average sell price and average buy price,
// applied to the matched volume. Lots are not matched individually.
func Realized(trades []store.TradeRecord) (realized float64, buyTrades, sellTrades int) {
	var buyBase, buyQuote, sellBase, sellQuote float64
	for _, t := range trades {
		switch t.Side {
		case string(models.Buy):
			buyBase += t.Quantity
			buyQuote += t.Quantity * t.Price
			buyTrades++
		case string(models.Sell):
			sellBase += t.Quantity
			sellQuote += t.Quantity * t.Price
			sellTrades++
		}
	}
	if buyBase <= 0 || sellBase <= 0 {
		return 0, buyTrades, sellTrades
	}

	matched := buyBase
	if sellBase < matched {
		matched = sellBase
	}
	realized = (sellQuote/sellBase - buyQuote/buyBase) * matched
	return realized, buyTrades, sellTrades
}

// Evaluate produces a full PnL snapshot from the run's trade history,
// the current account balances and the current spot orderbook. Spot
// position is marked at mid; option legs convert to quote at the bid.
func (e *Engine) Evaluate(trades []store.TradeRecord, baseBalance, quoteBalance float64, ob *models.Orderbook) Snapshot {
	realized, buys, sells := Realized(trades)

	unrealized := baseBalance*ob.Mid() + quoteBalance -
		(e.initialBase*e.cfg.SpotEntryPrice + e.initialQuote) + realized

	return Snapshot{
		SpotRealized:   realized,
		SpotUnrealized: unrealized,
		CallUnrealized: e.optionLeg(e.cfg.CallOptionName, e.cfg.CallOptionSizeBase, e.cfg.CallOptionInitialCostBase, ob.BidPrice),
		PutUnrealized:  e.optionLeg(e.cfg.PutOptionName, e.cfg.PutOptionSizeBase, e.cfg.PutOptionInitialCostBase, ob.BidPrice),
		BuyTrades:      buys,
		SellTrades:     sells,
	}
}

// optionLeg marks one option leg to its current executable exit price.
// Option prices are quoted in base currency, so the result is converted
// to quote at the spot bid. A quote failure contributes zero.
func (e *Engine) optionLeg(instrument string, size, initialCostBase, spotBid float64) float64 {
	if instrument == "" || size <= 0 {
		return 0
	}

	exitPrice, err := e.options.PriceForVolume(instrument, size, models.Sell)
	if err != nil {
		logger.S().Warnf("failed to quote option %s, counting leg as zero: %v", instrument, err)
		return 0
	}

	pnlBase := (exitPrice - initialCostBase/size) * size
	return pnlBase * spotBid
}

// DailyROI normalizes run PnL to a per-day return on the initial
// investment. Elapsed time is truncated to whole days, and runs younger
// than a day count as one day old so a lucky first hour cannot trigger
// the exit.
func DailyROI(totalPnl float64, elapsed time.Duration, initialInvestment float64) float64 {
	if initialInvestment <= 0 {
		return 0
	}
	days := int(elapsed.Hours() / 24)
	if days < 1 {
		days = 1
	}
	return (totalPnl / float64(days)) / initialInvestment
}
