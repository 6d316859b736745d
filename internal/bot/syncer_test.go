package bot

import (
	"errors"
	"testing"

	"grid-hedge-bot-go/internal/exchange"
	"grid-hedge-bot-go/internal/grid"
	"grid-hedge-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSpotExchange is a hand mock of the spot venue client.
type fakeSpotExchange struct {
	priceTick float64
	sizeTick  float64
	ob        *models.Orderbook
	obErr     error
	balances  map[string]float64
	balErr    error

	placed    []exchange.PlaceOrderRequest
	placeErr  error
	cancelled []int64
	cancelErr error
	venueOpen []models.Order
	openErr   error
	nextID    int64
}

func newFakeSpotExchange() *fakeSpotExchange {
	return &fakeSpotExchange{
		priceTick: 0.01,
		sizeTick:  0.000001,
		ob:        &models.Orderbook{Symbol: "BTCFDUSD", BidPrice: 99.9, BidQty: 1, AskPrice: 100.1, AskQty: 1},
		balances:  map[string]float64{},
	}
}

func (f *fakeSpotExchange) GetPriceTick(symbol string) (float64, error) { return f.priceTick, nil }
func (f *fakeSpotExchange) GetSizeTick(symbol string) (float64, error)  { return f.sizeTick, nil }

func (f *fakeSpotExchange) GetOrderbook(symbol string) (*models.Orderbook, error) {
	if f.obErr != nil {
		return nil, f.obErr
	}
	return f.ob, nil
}

func (f *fakeSpotExchange) GetAccountBalance() (map[string]float64, error) {
	if f.balErr != nil {
		return nil, f.balErr
	}
	out := make(map[string]float64, len(f.balances))
	for k, v := range f.balances {
		out[k] = v
	}
	return out, nil
}

func (f *fakeSpotExchange) PlaceOrder(req exchange.PlaceOrderRequest) (*models.Order, error) {
	if f.placeErr != nil {
		return nil, f.placeErr
	}
	f.placed = append(f.placed, req)
	f.nextID++
	return &models.Order{
		OrderID:       f.nextID,
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Price:         req.Price,
		Quantity:      req.Quantity,
		Status:        models.OrderStatusNew,
	}, nil
}

func (f *fakeSpotExchange) CancelOrder(symbol string, orderID int64) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

func (f *fakeSpotExchange) GetOpenOrders(symbol string) ([]models.Order, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.venueOpen, nil
}

func syncerConfig(mode string) *models.Config {
	return &models.Config{
		BotName:               "test_bot",
		TradingMode:           mode,
		SpotMarket:            "BTCFDUSD",
		BaseAsset:             "BTC",
		QuoteAsset:            "FDUSD",
		SpotEntryPrice:        100.0,
		SpotDownRangePercent:  10.0,
		SpotUpRangePercent:    10.0,
		SpotOrdersDiffPercent: 1.0,
		SpotOrderSizeQuote:    100.0,
		GridMaxOpenOrders:     2,
	}
}

func buildLadder(t *testing.T, cfg *models.Config) *grid.Ladder {
	t.Helper()
	ladder, err := grid.NewCalculator(cfg, 0.01, 0.000001).Calculate()
	require.NoError(t, err)
	return ladder
}

func orderbook(bid, ask float64) *models.Orderbook {
	return &models.Orderbook{Symbol: "BTCFDUSD", BidPrice: bid, BidQty: 1, AskPrice: ask, AskQty: 1}
}

func TestSyncPlacesOrdersOnBothSides(t *testing.T) {
	cfg := syncerConfig("test")
	spot := newFakeSpotExchange()
	syncer := NewOrderSyncer(cfg, spot, buildLadder(t, cfg))

	fills := syncer.Sync(orderbook(99.9, 100.1), 1.0)
	assert.Empty(t, fills)
	require.Len(t, spot.placed, 4)

	var buys, sells int
	for _, req := range spot.placed {
		assert.Equal(t, "LIMIT", req.Type)
		assert.True(t, req.PostOnly)
		assert.NotEmpty(t, req.ClientOrderID)
		if req.Side == models.Buy {
			buys++
		} else {
			sells++
		}
	}
	assert.Equal(t, 2, buys)
	assert.Equal(t, 2, sells)
	assert.Len(t, syncer.OpenOrders(), 4)
}

func TestSyncIsIdempotent(t *testing.T) {
	cfg := syncerConfig("test")
	spot := newFakeSpotExchange()
	syncer := NewOrderSyncer(cfg, spot, buildLadder(t, cfg))

	ob := orderbook(99.9, 100.1)
	syncer.Sync(ob, 1.0)
	placedAfterFirst := len(spot.placed)

	fills := syncer.Sync(ob, 1.0)
	assert.Empty(t, fills)
	assert.Len(t, spot.placed, placedAfterFirst, "unchanged market must produce no new actions")
}

func TestSyncClampsPricesToBook(t *testing.T) {
	cfg := syncerConfig("test")
	spot := newFakeSpotExchange()
	// Grid levels inside the spread: the buy level sits above the bid
	// and the sell level below the ask, so both must be clamped.
	ladder := &grid.Ladder{Levels: []grid.Level{
		{Price: 99.995, OrderSizeBase: 1.0, OrderSizeQuote: 99.995},
		{Price: 100.005, OrderSizeBase: 1.0, OrderSizeQuote: 100.005},
	}}
	syncer := NewOrderSyncer(cfg, spot, ladder)

	syncer.Sync(orderbook(99.99, 100.01), 1.0)
	require.Len(t, spot.placed, 2)

	for _, req := range spot.placed {
		if req.Side == models.Buy {
			assert.Equal(t, 99.99, req.Price, "buy clamped to the bid")
		} else {
			assert.Equal(t, 100.01, req.Price, "sell clamped to the ask")
		}
	}
}

func TestSyncTracksGridPriceNotClampedPrice(t *testing.T) {
	cfg := syncerConfig("test")
	spot := newFakeSpotExchange()
	ladder := &grid.Ladder{Levels: []grid.Level{
		{Price: 99.995, OrderSizeBase: 1.0, OrderSizeQuote: 99.995},
		{Price: 100.005, OrderSizeBase: 1.0, OrderSizeQuote: 100.005},
	}}
	syncer := NewOrderSyncer(cfg, spot, ladder)

	syncer.Sync(orderbook(99.99, 100.01), 1.0)

	// Even though the venue received clamped prices, the tracked set
	// keys on the grid-level prices.
	tracked := syncer.OpenOrders()
	require.Len(t, tracked, 2)
	for _, o := range tracked {
		assert.Contains(t, []float64{99.995, 100.005}, o.Price)
	}
}

func TestSimulatedFillConsumesBaseDelta(t *testing.T) {
	cfg := syncerConfig("test")
	spot := newFakeSpotExchange()
	syncer := NewOrderSyncer(cfg, spot, buildLadder(t, cfg))

	// First sync establishes the balance baseline and places orders.
	syncer.Sync(orderbook(99.9, 100.1), 1.0)
	require.Len(t, syncer.OpenOrders(), 4)

	var highestBuy models.Order
	var buyCount int
	for _, o := range syncer.OpenOrders() {
		if o.Side == models.Buy {
			buyCount++
			if o.Price > highestBuy.Price {
				highestBuy = o
			}
		}
	}
	require.Equal(t, 2, buyCount)

	// Price dropped below both tracked buys; base grew by exactly one
	// order size, so only the highest-priced buy is considered filled.
	low := orderbook(97.0, 97.2)
	fills := syncer.Sync(low, 1.0+highestBuy.Quantity)

	require.Len(t, fills, 1)
	assert.Equal(t, models.Buy, fills[0].Side)
	assert.Equal(t, highestBuy.Price, fills[0].Price)
	assert.Equal(t, models.OrderStatusFilled, fills[0].Status)
}

func TestSimulatedSellFillsAscending(t *testing.T) {
	cfg := syncerConfig("test")
	spot := newFakeSpotExchange()
	syncer := NewOrderSyncer(cfg, spot, buildLadder(t, cfg))

	syncer.Sync(orderbook(99.9, 100.1), 1.0)

	lowestSell := models.Order{Price: 1e18}
	var sellCount int
	for _, o := range syncer.OpenOrders() {
		if o.Side == models.Sell {
			sellCount++
			if o.Price < lowestSell.Price {
				lowestSell = o
			}
		}
	}
	require.Equal(t, 2, sellCount)

	// Price moved above both tracked sells; base shrank by exactly one
	// order size, so the lowest-priced sell fills first.
	high := orderbook(103.0, 103.2)
	fills := syncer.Sync(high, 1.0-lowestSell.Quantity)

	require.Len(t, fills, 1)
	assert.Equal(t, models.Sell, fills[0].Side)
	assert.Equal(t, lowestSell.Price, fills[0].Price)
}

func TestOrderRestingAtTouchIsNotInferredFilled(t *testing.T) {
	cfg := syncerConfig("test")
	spot := newFakeSpotExchange()
	ladder := &grid.Ladder{Levels: []grid.Level{
		{Price: 99.0, OrderSizeBase: 1.0, OrderSizeQuote: 99.0},
		{Price: 101.0, OrderSizeBase: 1.0, OrderSizeQuote: 101.0},
	}}
	syncer := NewOrderSyncer(cfg, spot, ladder)

	syncer.Sync(orderbook(100.0, 100.2), 1.0)
	require.Len(t, syncer.OpenOrders(), 2)

	// The bid sits exactly on the tracked buy. The order has not crossed
	// the book, so a base increase must not be attributed to it.
	fills := syncer.Sync(orderbook(99.0, 99.2), 2.0)
	assert.Empty(t, fills)
	assert.True(t, syncer.isTracked(99.0, models.Buy))

	// Same on the sell side with the ask exactly on the tracked sell.
	fills = syncer.Sync(orderbook(100.8, 101.0), 1.0)
	assert.Empty(t, fills)
	assert.True(t, syncer.isTracked(101.0, models.Sell))
}

func TestLiveFillDetection(t *testing.T) {
	cfg := syncerConfig("live")
	spot := newFakeSpotExchange()
	syncer := NewOrderSyncer(cfg, spot, buildLadder(t, cfg))

	syncer.Sync(orderbook(99.9, 100.1), 0)
	tracked := syncer.OpenOrders()
	require.Len(t, tracked, 4)

	// The venue reports all but one tracked order still open; the
	// missing one is treated as filled.
	spot.venueOpen = tracked[1:]
	fills := syncer.Sync(orderbook(99.9, 100.1), 0)

	require.Len(t, fills, 1)
	assert.Equal(t, tracked[0].ClientOrderID, fills[0].ClientOrderID)
	assert.Equal(t, models.OrderStatusFilled, fills[0].Status)
}

func TestFailedPlacementIsNotTracked(t *testing.T) {
	cfg := syncerConfig("test")
	spot := newFakeSpotExchange()
	spot.placeErr = errors.New("venue rejected")
	syncer := NewOrderSyncer(cfg, spot, buildLadder(t, cfg))

	fills := syncer.Sync(orderbook(99.9, 100.1), 1.0)
	assert.Empty(t, fills)
	assert.Empty(t, syncer.OpenOrders())

	// Once the venue recovers the same levels are retried.
	spot.placeErr = nil
	syncer.Sync(orderbook(99.9, 100.1), 1.0)
	assert.Len(t, syncer.OpenOrders(), 4)
}

func TestCancelAllBestEffort(t *testing.T) {
	cfg := syncerConfig("live")
	spot := newFakeSpotExchange()
	syncer := NewOrderSyncer(cfg, spot, buildLadder(t, cfg))

	syncer.Sync(orderbook(99.9, 100.1), 0)
	require.Len(t, syncer.OpenOrders(), 4)

	failed := syncer.CancelAll()
	assert.Zero(t, failed)
	assert.Empty(t, syncer.OpenOrders())
	assert.Len(t, spot.cancelled, 4)

	syncer.Sync(orderbook(99.9, 100.1), 0)
	spot.cancelErr = errors.New("venue down")
	failed = syncer.CancelAll()
	assert.Equal(t, 4, failed)
	assert.Len(t, syncer.OpenOrders(), 4, "failed cancels stay tracked")
}

func TestClientOrderIDEmbedsGridPrice(t *testing.T) {
	cfg := syncerConfig("live")
	syncer := NewOrderSyncer(cfg, newFakeSpotExchange(), buildLadder(t, cfg))

	assert.Equal(t, "test_bot_99.5", syncer.ClientOrderID(99.5))
	assert.Equal(t, "test_bot_100", syncer.ClientOrderID(100.0))
}
