package events

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketEntries = []byte("journal_entries")
	bucketPending = []byte("journal_pending")

	pendingMark = []byte{1}
)

// BoltJournal is a single-node journal kept in a bbolt file. Entry ids are
// UUIDv7, so the pending index iterates in creation order.
type BoltJournal struct {
	db  *bolt.DB
	now func() time.Time
}

// OpenBoltJournal opens (or creates) the journal file at path.
func OpenBoltJournal(path string) (*BoltJournal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("events: create journal directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("events: open journal: %w", err)
	}
	j, err := NewBoltJournal(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

// NewBoltJournal uses an already open database.
func NewBoltJournal(db *bolt.DB) (*BoltJournal, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketEntries, bucketPending} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("events: create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &BoltJournal{db: db, now: time.Now}, nil
}

// Close releases the database file.
func (j *BoltJournal) Close() error {
	return j.db.Close()
}

func (j *BoltJournal) Record(ctx context.Context, entry Entry) (uuid.UUID, error) {
	entry, err := prepare(entry, j.now())
	if err != nil {
		return uuid.Nil, fmt.Errorf("events: new journal id: %w", err)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return uuid.Nil, fmt.Errorf("events: marshal entry: %w", err)
	}
	key := entry.ID[:]

	err = j.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketEntries).Put(key, data); err != nil {
			return fmt.Errorf("events: store entry: %w", err)
		}
		if err := tx.Bucket(bucketPending).Put(key, pendingMark); err != nil {
			return fmt.Errorf("events: index entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return entry.ID, nil
}

func (j *BoltJournal) Pending(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []Entry
	err := j.db.View(func(tx *bolt.Tx) error {
		stored := tx.Bucket(bucketEntries)
		c := tx.Bucket(bucketPending).Cursor()
		for k, _ := c.First(); k != nil && len(entries) < limit; k, _ = c.Next() {
			data := stored.Get(k)
			if data == nil {
				continue
			}
			var entry Entry
			if err := json.Unmarshal(data, &entry); err != nil {
				return fmt.Errorf("events: decode entry: %w", err)
			}
			entries = append(entries, entry)
		}
		return nil
	})
	return entries, err
}

func (j *BoltJournal) MarkProcessed(ctx context.Context, id uuid.UUID) (bool, error) {
	key := id[:]
	marked := false
	err := j.db.Update(func(tx *bolt.Tx) error {
		stored := tx.Bucket(bucketEntries)
		data := stored.Get(key)
		if data == nil {
			return ErrNotFound
		}
		pending := tx.Bucket(bucketPending)
		if pending.Get(key) == nil {
			return nil
		}

		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			return fmt.Errorf("events: decode entry: %w", err)
		}
		processed := j.now().UTC()
		entry.ProcessedAt = &processed
		updated, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("events: marshal entry: %w", err)
		}
		if err := stored.Put(key, updated); err != nil {
			return err
		}
		if err := pending.Delete(key); err != nil {
			return err
		}
		marked = true
		return nil
	})
	return marked, err
}

var _ Journal = (*BoltJournal)(nil)
