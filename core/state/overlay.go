package state

import (
	"errors"
	"sync"

	"colend/storage"
)

// Overlay is a copy-on-write transaction over a base store. Writes accumulate
// in memory; reads fall through to the base until shadowed. Commit flushes
// the write set in one atomic batch, Discard drops it. A discarded or failed
// transaction leaves the base byte-for-byte unchanged.
type Overlay struct {
	base storage.Database

	mu     sync.Mutex
	writes map[string][]byte
	done   bool
}

// ErrOverlayClosed rejects use of a committed or discarded overlay.
var ErrOverlayClosed = errors.New("state: overlay already closed")

// NewOverlay opens a transaction over base.
func NewOverlay(base storage.Database) *Overlay {
	return &Overlay{
		base:   base,
		writes: make(map[string][]byte),
	}
}

// Get returns the pending write for key when present, otherwise the committed
// value.
func (o *Overlay) Get(key []byte) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.done {
		return nil, ErrOverlayClosed
	}
	if value, ok := o.writes[string(key)]; ok {
		if value == nil {
			return nil, storage.ErrNotFound
		}
		return append([]byte(nil), value...), nil
	}
	return o.base.Get(key)
}

// Put records a pending write.
func (o *Overlay) Put(key []byte, value []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.done {
		return ErrOverlayClosed
	}
	o.writes[string(key)] = append([]byte(nil), value...)
	return nil
}

// Delete records a pending deletion.
func (o *Overlay) Delete(key []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.done {
		return ErrOverlayClosed
	}
	o.writes[string(key)] = nil
	return nil
}

// Commit flushes the write set to the base store in one atomic batch and
// closes the overlay.
func (o *Overlay) Commit() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.done {
		return ErrOverlayClosed
	}
	o.done = true
	if len(o.writes) == 0 {
		return nil
	}
	ops := make([]storage.BatchOp, 0, len(o.writes))
	for key, value := range o.writes {
		ops = append(ops, storage.BatchOp{Key: []byte(key), Value: value})
	}
	return o.base.Write(ops)
}

// Discard drops the write set and closes the overlay.
func (o *Overlay) Discard() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.done = true
	o.writes = nil
}
