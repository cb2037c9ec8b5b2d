package badger

import (
	"github.com/ternarybob/arbor"

	"github.com/ihaichao/stock-pulse/internal/common"
	"github.com/ihaichao/stock-pulse/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db           *BadgerDB
	event        interfaces.EventStorage
	task         interfaces.TaskStorage
	subscription interfaces.SubscriptionStorage
	kv           interfaces.KeyValueStorage
	lock         interfaces.LockProvider
	logger       arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:           db,
		event:        NewEventStorage(db, logger),
		task:         NewTaskStorage(db, logger),
		subscription: NewSubscriptionStorage(db, logger),
		kv:           NewKVStorage(db, logger),
		lock:         NewLockProvider(db, logger),
		logger:       logger,
	}

	logger.Info().Msg("Badger storage manager initialized")

	return manager, nil
}

// EventStorage returns the Event storage interface
func (m *Manager) EventStorage() interfaces.EventStorage {
	return m.event
}

// TaskStorage returns the Task storage interface
func (m *Manager) TaskStorage() interfaces.TaskStorage {
	return m.task
}

// SubscriptionStorage returns the Subscription storage interface
func (m *Manager) SubscriptionStorage() interfaces.SubscriptionStorage {
	return m.subscription
}

// KeyValueStorage returns the KeyValue storage interface
func (m *Manager) KeyValueStorage() interfaces.KeyValueStorage {
	return m.kv
}

// LockProvider returns the lock provider
func (m *Manager) LockProvider() interfaces.LockProvider {
	return m.lock
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
