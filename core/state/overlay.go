package state

import (
	"errors"
	"sort"
	"strings"

	"ecomchain/storage"
)

// Overlay buffers writes on top of a database until Commit. Reads observe the
// buffered writes first, so a transition sees its own effects while other
// readers of the database see nothing until the batch lands.
//
// Overlay is not safe for concurrent use; the node serialises transitions.
type Overlay struct {
	db      storage.Database
	dirty   map[string][]byte
	deleted map[string]struct{}
	done    bool
}

// NewOverlay opens an empty overlay over db.
func NewOverlay(db storage.Database) *Overlay {
	return &Overlay{
		db:      db,
		dirty:   make(map[string][]byte),
		deleted: make(map[string]struct{}),
	}
}

func (o *Overlay) Get(key []byte) ([]byte, bool, error) {
	k := string(key)
	if _, gone := o.deleted[k]; gone {
		return nil, false, nil
	}
	if value, ok := o.dirty[k]; ok {
		return append([]byte(nil), value...), true, nil
	}
	value, err := o.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (o *Overlay) Put(key, value []byte) {
	k := string(key)
	delete(o.deleted, k)
	o.dirty[k] = append([]byte(nil), value...)
}

func (o *Overlay) Delete(key []byte) {
	k := string(key)
	delete(o.dirty, k)
	o.deleted[k] = struct{}{}
}

// Iterate walks the merged view of committed and buffered keys under prefix
// in key order. Committed keys stream straight from the database; only the
// buffered keys under prefix are sorted up front.
func (o *Overlay) Iterate(prefix []byte, fn func(key, value []byte) bool) error {
	p := string(prefix)
	buffered := make([]string, 0)
	for k := range o.dirty {
		if strings.HasPrefix(k, p) {
			buffered = append(buffered, k)
		}
	}
	sort.Strings(buffered)

	stopped := false
	next := 0
	// flush emits buffered keys ordered before limit, or all of them when
	// limit is empty.
	flush := func(limit string, all bool) {
		for next < len(buffered) && !stopped && (all || buffered[next] < limit) {
			k := buffered[next]
			next++
			if !fn([]byte(k), append([]byte(nil), o.dirty[k]...)) {
				stopped = true
			}
		}
	}
	err := o.db.Iterate(prefix, func(key, value []byte) bool {
		k := string(key)
		flush(k, false)
		if stopped {
			return false
		}
		if next < len(buffered) && buffered[next] == k {
			next++
			if !fn(key, append([]byte(nil), o.dirty[k]...)) {
				stopped = true
			}
			return !stopped
		}
		if _, gone := o.deleted[k]; gone {
			return true
		}
		if !fn(key, value) {
			stopped = true
		}
		return !stopped
	})
	if err != nil {
		return err
	}
	flush("", true)
	return nil
}

// Pending reports the number of buffered writes and deletes.
func (o *Overlay) Pending() int {
	return len(o.dirty) + len(o.deleted)
}

// Commit flushes every buffered change in one atomic batch.
func (o *Overlay) Commit() error {
	if o.done {
		return errors.New("state: overlay already finalised")
	}
	batch := storage.NewBatch()
	keys := make([]string, 0, len(o.dirty))
	for k := range o.dirty {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		batch.Put([]byte(k), o.dirty[k])
	}
	removed := make([]string, 0, len(o.deleted))
	for k := range o.deleted {
		removed = append(removed, k)
	}
	sort.Strings(removed)
	for _, k := range removed {
		batch.Delete([]byte(k))
	}
	if err := o.db.Write(batch); err != nil {
		return err
	}
	o.done = true
	return nil
}

// Discard drops every buffered change.
func (o *Overlay) Discard() {
	o.dirty = make(map[string][]byte)
	o.deleted = make(map[string]struct{})
	o.done = true
}
