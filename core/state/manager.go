package state

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"ecomchain/storage"
)

// Manager exposes typed access to state for a single transition. Writes are
// buffered in an overlay and land in the database only on Commit.
type Manager struct {
	overlay *Overlay
}

// NewManager opens a manager over a fresh overlay of db.
func NewManager(db storage.Database) *Manager {
	return &Manager{overlay: NewOverlay(db)}
}

// Commit persists every change made through the manager as one batch.
func (m *Manager) Commit() error { return m.overlay.Commit() }

// Discard drops every change made through the manager.
func (m *Manager) Discard() { m.overlay.Discard() }

// Pending reports the number of buffered writes.
func (m *Manager) Pending() int { return m.overlay.Pending() }

// KVPut stores the provided value under the supplied key using RLP encoding.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.overlay.Put(key, encoded)
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, ok, err := m.overlay.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes key from state.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	m.overlay.Delete(key)
	return nil
}

// NextSequence increments and returns the named counter.
func (m *Manager) NextSequence(name string) (uint64, error) {
	key := sequenceKey(name)
	raw, ok, err := m.overlay.Get(key)
	if err != nil {
		return 0, err
	}
	var current uint64
	if ok {
		if len(raw) != 8 {
			return 0, fmt.Errorf("state: corrupt sequence %q", name)
		}
		current = binary.BigEndian.Uint64(raw)
	}
	current++
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, current)
	m.overlay.Put(key, buf)
	return current, nil
}
