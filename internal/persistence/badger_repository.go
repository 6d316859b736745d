package persistence

import (
	"encoding/json"
	"errors"
	"fmt"

	"grid-hedge-bot-go/internal/models"

	"github.com/dgraph-io/badger/v3"
)

// badgerRepository stores the bot state as a single JSON value in a
// BadgerDB database. The key is derived from the bot name so several
// bots can share one database directory.
type badgerRepository struct {
	db       *badger.DB
	stateKey []byte
}

// NewBadgerRepository opens (or creates) the database at dbPath.
func NewBadgerRepository(dbPath, botName string) (StateRepository, error) {
	opts := badger.DefaultOptions(dbPath)
	// Badger's own logger is noisy at INFO level; errors still surface
	// through the returned error values.
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening state database at %s: %w", dbPath, err)
	}

	return &badgerRepository{
		db:       db,
		stateKey: []byte("bot_state:" + botName),
	}, nil
}

func (r *badgerRepository) SaveState(state *models.BotState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(r.stateKey, data)
	})
}

func (r *badgerRepository) LoadState() (*models.BotState, error) {
	var state models.BotState

	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(r.stateKey)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				return errors.New("stored state is empty")
			}
			return json.Unmarshal(val, &state)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (r *badgerRepository) Close() error {
	return r.db.Close()
}
