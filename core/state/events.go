package state

import (
	"encoding/binary"
	"sort"

	"github.com/ethereum/go-ethereum/rlp"

	"ecomchain/core/types"
)

const eventSequence = "event"

type storedAttribute struct {
	Key   string
	Value string
}

type storedEvent struct {
	Type       string
	Attributes []storedAttribute
}

func eventKey(seq uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return prefixed(eventPrefix, buf)
}

// AppendEvent assigns the next sequence number to evt and stores it in the
// log. The event becomes visible with the rest of the transition on Commit.
func (m *Manager) AppendEvent(evt *types.Event) (uint64, error) {
	seq, err := m.NextSequence(eventSequence)
	if err != nil {
		return 0, err
	}
	stored := storedEvent{Type: evt.Type}
	keys := make([]string, 0, len(evt.Attributes))
	for k := range evt.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		stored.Attributes = append(stored.Attributes, storedAttribute{Key: k, Value: evt.Attributes[k]})
	}
	evt.Sequence = seq
	return seq, m.KVPut(eventKey(seq), stored)
}

// Events returns up to limit events with a sequence greater than after.
func (m *Manager) Events(after uint64, limit int) ([]*types.Event, error) {
	var (
		out     []*types.Event
		iterErr error
	)
	err := m.overlay.Iterate(eventPrefix, func(key, value []byte) bool {
		if len(key) != len(eventPrefix)+8 {
			return true
		}
		seq := binary.BigEndian.Uint64(key[len(eventPrefix):])
		if seq <= after {
			return true
		}
		var stored storedEvent
		if err := rlp.DecodeBytes(value, &stored); err != nil {
			iterErr = err
			return false
		}
		evt := &types.Event{Sequence: seq, Type: stored.Type, Attributes: make(map[string]string, len(stored.Attributes))}
		for _, attr := range stored.Attributes {
			evt.Attributes[attr.Key] = attr.Value
		}
		out = append(out, evt)
		return limit <= 0 || len(out) < limit
	})
	if err != nil {
		return nil, err
	}
	return out, iterErr
}
