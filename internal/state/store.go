package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/gratbox/graph-csv-sync/internal/metrics"
)

const (
	runPrefix   = "run:"
	cachePrefix = "ap:"
)

// Store persists run history and the Autopilot serial lookup cache. The
// cache lifetime is one run: Reset is called at run start unless the caller
// opts into keeping it.
type Store interface {
	SaveRun(run RunRecord) error
	Runs() ([]RunRecord, error)
	PutCacheEntry(entry CacheEntry) error
	GetCacheEntry(serial string) (CacheEntry, bool, error)
	ResetCache() error
	Close() error
}

type badgerStore struct {
	db      *badger.DB
	metrics *metrics.Metrics
}

func New(path string, metrics *metrics.Metrics) (Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable Badger's internal logger

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	s := &badgerStore{db: db, metrics: metrics}
	return s, nil
}

func (s *badgerStore) SaveRun(run RunRecord) error {
	data, err := json.Marshal(run)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%s%d:%s", runPrefix, run.StartedAt.UnixNano(), run.Task)

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	s.metrics.IncBadgerRequest("create", err == nil)
	return err
}

func (s *badgerStore) Runs() ([]RunRecord, error) {
	var runs []RunRecord

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(runPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var run RunRecord
				if err := json.Unmarshal(val, &run); err != nil {
					return err
				}
				runs = append(runs, run)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	s.metrics.IncBadgerRequest("read", err == nil)
	return runs, err
}

func (s *badgerStore) PutCacheEntry(entry CacheEntry) error {
	if entry.CachedAt.IsZero() {
		entry.CachedAt = time.Now()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	key := cachePrefix + entry.Serial

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	s.metrics.IncBadgerRequest("update", err == nil)
	return err
}

func (s *badgerStore) GetCacheEntry(serial string) (CacheEntry, bool, error) {
	var entry CacheEntry
	found := false

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(cachePrefix + serial))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	s.metrics.IncBadgerRequest("read", err == nil)
	s.metrics.IncCacheRequest(found)
	return entry, found, err
}

// ResetCache drops every cached serial lookup, run history stays.
func (s *badgerStore) ResetCache() error {
	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	var keys [][]byte
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	prefix := []byte(cachePrefix)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	it.Close()

	for _, key := range keys {
		if err := txn.Delete(key); err != nil {
			s.metrics.IncBadgerRequest("delete", false)
			return err
		}
	}
	err := txn.Commit()
	s.metrics.IncBadgerRequest("delete", err == nil)
	return err
}

func (s *badgerStore) Close() error {
	return s.db.Close()
}
