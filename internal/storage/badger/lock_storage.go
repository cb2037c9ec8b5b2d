package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/ihaichao/stock-pulse/internal/common"
	"github.com/ihaichao/stock-pulse/internal/interfaces"
)

const lockKeyPrefix = "lock:"

// lockRecord is the serialized lease value stored under the lock key. The
// lease duration is stored so renewals extend by the original grant.
type lockRecord struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
	Lease     time.Duration `json:"lease"`
}

// LockProvider hands out per-key leases backed by raw Badger transactions.
// Badger runs update transactions with serializable snapshot isolation, so
// the read-check-write inside Acquire is atomic: two workers racing for the
// same key cannot both see it free.
type LockProvider struct {
	db     *BadgerDB
	logger arbor.ILogger
	now    func() time.Time
}

// NewLockProvider creates a new lock provider
func NewLockProvider(db *BadgerDB, logger arbor.ILogger) *LockProvider {
	return &LockProvider{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// Acquire obtains the lease for a key. A held, unexpired lease owned by
// someone else yields ErrLockBusy; an expired lease is reclaimed in place.
func (p *LockProvider) Acquire(ctx context.Context, key string, lease time.Duration) (*interfaces.Lease, error) {
	now := p.now().UTC()
	record := lockRecord{
		Token:     common.NewLockToken(),
		ExpiresAt: now.Add(lease),
		Lease:     lease,
	}

	err := p.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		storageKey := []byte(lockKeyPrefix + key)

		item, err := txn.Get(storageKey)
		if err == nil {
			var existing lockRecord
			if verr := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &existing)
			}); verr == nil && existing.ExpiresAt.After(now) {
				return interfaces.ErrLockBusy
			}
			// Expired or unreadable lease: fall through and reclaim.
		} else if err != badgerdb.ErrKeyNotFound {
			return fmt.Errorf("failed to read lock: %w", err)
		}

		value, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("failed to encode lock: %w", err)
		}
		return txn.Set(storageKey, value)
	})
	if err != nil {
		return nil, err
	}

	return &interfaces.Lease{
		Key:       key,
		Token:     record.Token,
		ExpiresAt: record.ExpiresAt,
	}, nil
}

// Renew extends a held lease by its original duration. A lease that expired
// or was taken over by another holder cannot be renewed.
func (p *LockProvider) Renew(ctx context.Context, lease *interfaces.Lease) error {
	now := p.now().UTC()

	return p.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		storageKey := []byte(lockKeyPrefix + lease.Key)

		item, err := txn.Get(storageKey)
		if err == badgerdb.ErrKeyNotFound {
			return fmt.Errorf("lease lost for key %s", lease.Key)
		}
		if err != nil {
			return fmt.Errorf("failed to read lock: %w", err)
		}

		var existing lockRecord
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &existing)
		}); err != nil {
			return fmt.Errorf("failed to decode lock: %w", err)
		}

		if existing.Token != lease.Token {
			return fmt.Errorf("lease taken over for key %s", lease.Key)
		}
		if !existing.ExpiresAt.After(now) {
			return fmt.Errorf("lease expired for key %s", lease.Key)
		}

		renewed := lockRecord{
			Token:     existing.Token,
			ExpiresAt: now.Add(existing.Lease),
			Lease:     existing.Lease,
		}
		value, err := json.Marshal(renewed)
		if err != nil {
			return fmt.Errorf("failed to encode lock: %w", err)
		}
		if err := txn.Set(storageKey, value); err != nil {
			return err
		}

		lease.ExpiresAt = renewed.ExpiresAt
		return nil
	})
}

// Release frees the lease. Releasing an expired or lost lease is a no-op so
// cleanup paths never fail.
func (p *LockProvider) Release(ctx context.Context, lease *interfaces.Lease) error {
	return p.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		storageKey := []byte(lockKeyPrefix + lease.Key)

		item, err := txn.Get(storageKey)
		if err == badgerdb.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read lock: %w", err)
		}

		var existing lockRecord
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &existing)
		}); err != nil {
			return nil
		}
		if existing.Token != lease.Token {
			return nil
		}

		return txn.Delete(storageKey)
	})
}

var _ interfaces.LockProvider = (*LockProvider)(nil)
