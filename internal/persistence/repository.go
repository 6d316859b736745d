package persistence

import "grid-hedge-bot-go/internal/models"

// StateRepository persists the bot's recoverable state between process
// restarts. It abstracts the storage engine from the trading loop.
type StateRepository interface {
	// SaveState atomically replaces the stored state.
	SaveState(state *models.BotState) error

	// LoadState returns the stored state, or (nil, nil) when no prior
	// state exists.
	LoadState() (*models.BotState, error)

	// Close releases the underlying storage.
	Close() error
}
