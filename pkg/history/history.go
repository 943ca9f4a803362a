// Package history persists a durable local record of completed gaggle
// runs: final aggregate stats, configuration, and timing, so an
// operator can compare one run against a previous baseline without
// having kept the stats log around.
package history

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuemby/gaggle/pkg/metrics"
	bolt "go.etcd.io/bbolt"
)

var bucketRuns = []byte("runs")

// RunSummary is the durable record of one completed run.
type RunSummary struct {
	ID         uint64        `json:"id"`
	Label      string        `json:"label"`
	Host       string        `json:"host"`
	Users      int           `json:"users"`
	HatchRate  float64       `json:"hatch_rate"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Aggregate  metrics.MetricsBucket `json:"aggregate"`
	ByName     map[string]*metrics.MetricsBucket `json:"by_name"`
}

// Store is a BoltDB-backed store of RunSummary records, keyed by an
// auto-incrementing run ID so List returns runs in the order they
// completed.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) a history database at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRuns)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("history: init buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores a new RunSummary, assigning it the next run ID.
func (s *Store) Save(run RunSummary) (uint64, error) {
	var id uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		next, err := b.NextSequence()
		if err != nil {
			return err
		}
		id = next
		run.ID = id
		data, err := json.Marshal(run)
		if err != nil {
			return err
		}
		return b.Put(runKey(id), data)
	})
	return id, err
}

// Get retrieves one run by ID.
func (s *Store) Get(id uint64) (*RunSummary, error) {
	var run RunSummary
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		data := b.Get(runKey(id))
		if data == nil {
			return fmt.Errorf("history: run %d not found", id)
		}
		return json.Unmarshal(data, &run)
	})
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// List returns every stored run, oldest first.
func (s *Store) List() ([]*RunSummary, error) {
	var runs []*RunSummary
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		return b.ForEach(func(k, v []byte) error {
			var run RunSummary
			if err := json.Unmarshal(v, &run); err != nil {
				return err
			}
			runs = append(runs, &run)
			return nil
		})
	})
	return runs, err
}

// Delete removes one run by ID.
func (s *Store) Delete(id uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRuns).Delete(runKey(id))
	})
}

// runKey encodes a run ID as big-endian bytes so BoltDB's natural
// byte-ordered iteration yields ascending run order.
func runKey(id uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, id)
	return key
}

// SummaryFromSnapshot builds a RunSummary ready to Save from a
// completed run's final metrics snapshot and configuration.
func SummaryFromSnapshot(label, host string, users int, hatchRate float64, snap metrics.Snapshot) RunSummary {
	return RunSummary{
		Label:     label,
		Host:      host,
		Users:     users,
		HatchRate: hatchRate,
		StartedAt: snap.Taken.Add(-snap.Elapsed),
		Duration:  snap.Elapsed,
		Aggregate: snap.Aggregate,
		ByName:    snap.ByName,
	}
}
