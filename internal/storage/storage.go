// Package storage persists the user-owned collections (price alerts,
// watchlist entries and the risk-score cache) in an embedded BoltDB
// database, so a restart does not lose alerts or force a cold score
// cache.
package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"go.etcd.io/bbolt"

	"github.com/anny-whatever/vcpTrader-sub000/internal/alert"
	"github.com/anny-whatever/vcpTrader-sub000/internal/portfolio"
	"github.com/anny-whatever/vcpTrader-sub000/internal/risk"
)

const (
	alertsBucket    = "alerts"
	watchlistBucket = "watchlist"
	scoresBucket    = "risk_scores"
)

// Store wraps the BoltDB database.
type Store struct {
	db *bbolt.DB
}

// New opens (or creates) the database under dataPath and ensures all
// buckets exist.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, "dashboard.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{alertsBucket, watchlistBucket, scoresBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveAlert stores or replaces a price alert, keyed by its ID.
func (s *Store) SaveAlert(a alert.PriceAlert) error {
	return s.put(alertsBucket, []byte(a.ID), a)
}

// DeleteAlert removes a price alert by ID. Deleting a missing alert is a
// no-op.
func (s *Store) DeleteAlert(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(alertsBucket)).Delete([]byte(id))
	})
}

// Alerts returns all stored price alerts.
func (s *Store) Alerts() ([]alert.PriceAlert, error) {
	var alerts []alert.PriceAlert
	err := s.forEach(alertsBucket, func(v []byte) error {
		var a alert.PriceAlert
		if err := json.Unmarshal(v, &a); err != nil {
			return err
		}
		alerts = append(alerts, a)
		return nil
	})
	return alerts, err
}

// SaveWatchlistEntry stores or replaces a watchlist entry, keyed by
// instrument token.
func (s *Store) SaveWatchlistEntry(e portfolio.WatchlistEntry) error {
	return s.put(watchlistBucket, tokenKey(e.InstrumentToken), e)
}

// DeleteWatchlistEntry removes a watchlist entry by token.
func (s *Store) DeleteWatchlistEntry(token int64) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(watchlistBucket)).Delete(tokenKey(token))
	})
}

// WatchlistEntries returns all stored watchlist entries.
func (s *Store) WatchlistEntries() ([]portfolio.WatchlistEntry, error) {
	var entries []portfolio.WatchlistEntry
	err := s.forEach(watchlistBucket, func(v []byte) error {
		var e portfolio.WatchlistEntry
		if err := json.Unmarshal(v, &e); err != nil {
			return err
		}
		entries = append(entries, e)
		return nil
	})
	return entries, err
}

// SaveScore stores or replaces a cached risk score, keyed by symbol.
func (s *Store) SaveScore(sc risk.Score) error {
	return s.put(scoresBucket, []byte(sc.Symbol), sc)
}

// Scores returns all persisted risk scores, for warming the cache at
// startup.
func (s *Store) Scores() ([]risk.Score, error) {
	var scores []risk.Score
	err := s.forEach(scoresBucket, func(v []byte) error {
		var sc risk.Score
		if err := json.Unmarshal(v, &sc); err != nil {
			return err
		}
		scores = append(scores, sc)
		return nil
	})
	return scores, err
}

func (s *Store) put(bucket string, key []byte, v any) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal %s record: %w", bucket, err)
		}
		return tx.Bucket([]byte(bucket)).Put(key, data)
	})
}

func (s *Store) forEach(bucket string, fn func(v []byte) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucket)).ForEach(func(_, v []byte) error {
			return fn(v)
		})
	})
}

func tokenKey(token int64) []byte {
	return []byte(strconv.FormatInt(token, 10))
}
