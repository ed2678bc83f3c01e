package webhooks

import (
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"
)

// DeliveryStatus is the journalled lifecycle of one delivery.
type DeliveryStatus string

const (
	// StatusPending marks a delivery that has not completed yet.
	StatusPending DeliveryStatus = "pending"
	// StatusDelivered marks a delivery acknowledged by the destination.
	StatusDelivered DeliveryStatus = "delivered"
	// StatusAbandoned marks a delivery dropped after exhausting retries.
	StatusAbandoned DeliveryStatus = "abandoned"
)

var journalBucket = []byte("deliveries")

// JournalEntry is one persisted delivery record.
type JournalEntry struct {
	ID        string         `json:"id"`
	URL       string         `json:"url"`
	EventType string         `json:"eventType"`
	Body      []byte         `json:"body"`
	Status    DeliveryStatus `json:"status"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Journal persists delivery state in a bbolt file so deliveries survive
// daemon restarts.
type Journal struct {
	db *bolt.DB
}

// OpenJournal opens or creates the journal at path.
func OpenJournal(path string) (*Journal, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(journalBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

// Close releases the underlying file.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Record upserts a delivery entry.
func (j *Journal) Record(entry JournalEntry) error {
	entry.UpdatedAt = time.Now().UTC()
	encoded, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return j.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(journalBucket).Put([]byte(entry.ID), encoded)
	})
}

// SetStatus updates the status of an existing entry. Missing entries are
// ignored; the journal is advisory, not authoritative.
func (j *Journal) SetStatus(id string, status DeliveryStatus) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(journalBucket)
		raw := bucket.Get([]byte(id))
		if raw == nil {
			return nil
		}
		var entry JournalEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return err
		}
		entry.Status = status
		entry.UpdatedAt = time.Now().UTC()
		encoded, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(id), encoded)
	})
}

// Pending returns every entry still awaiting delivery.
func (j *Journal) Pending() ([]JournalEntry, error) {
	var entries []JournalEntry
	err := j.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(journalBucket).ForEach(func(_, value []byte) error {
			var entry JournalEntry
			if err := json.Unmarshal(value, &entry); err != nil {
				return err
			}
			if entry.Status == StatusPending {
				entries = append(entries, entry)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
