package persistence

import (
	"testing"
	"time"

	"grid-hedge-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T, botName string) StateRepository {
	t.Helper()
	repo, err := NewBadgerRepository(t.TempDir(), botName)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sampleState(botName string) *models.BotState {
	return &models.BotState{
		BotName:   botName,
		BotRun:    "20250301_120000",
		Symbol:    "BTCFDUSD",
		StartTime: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		OpenOrders: []models.Order{
			{OrderID: 1, ClientOrderID: botName + "_99.5", Side: models.Buy, Price: 99.5, Quantity: 1.0, Status: models.OrderStatusNew},
			{OrderID: 2, ClientOrderID: botName + "_100.5", Side: models.Sell, Price: 100.5, Quantity: 1.0, Status: models.OrderStatusNew},
		},
		BuyTrades:      3,
		SellTrades:     2,
		LastUpdateTime: time.Date(2025, 3, 1, 13, 0, 0, 0, time.UTC),
	}
}

func TestSaveAndLoadState(t *testing.T) {
	repo := newTestRepo(t, "hedge_bot")
	want := sampleState("hedge_bot")

	require.NoError(t, repo.SaveState(want))

	got, err := repo.LoadState()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.BotRun, got.BotRun)
	assert.Equal(t, want.BuyTrades, got.BuyTrades)
	assert.Equal(t, want.SellTrades, got.SellTrades)
	require.Len(t, got.OpenOrders, 2)
	assert.Equal(t, want.OpenOrders[0].ClientOrderID, got.OpenOrders[0].ClientOrderID)
}

func TestLoadStateWithoutPriorSave(t *testing.T) {
	repo := newTestRepo(t, "hedge_bot")

	got, err := repo.LoadState()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSaveStateOverwrites(t *testing.T) {
	repo := newTestRepo(t, "hedge_bot")

	first := sampleState("hedge_bot")
	require.NoError(t, repo.SaveState(first))

	second := sampleState("hedge_bot")
	second.BuyTrades = 10
	second.OpenOrders = nil
	require.NoError(t, repo.SaveState(second))

	got, err := repo.LoadState()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 10, got.BuyTrades)
	assert.Empty(t, got.OpenOrders)
}
