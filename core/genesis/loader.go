package genesis

import (
	"fmt"

	"ecomchain/core/state"
	"ecomchain/storage"
)

var appliedKey = []byte("genesis/applied")

type appliedMarker struct {
	Timestamp uint64
	Accounts  uint64
}

// Apply credits the genesis allocation into db once. Later calls against the
// same database are no-ops and report false.
func Apply(spec *GenesisSpec, db storage.Database) (bool, error) {
	if spec == nil {
		return false, fmt.Errorf("genesis spec must not be nil")
	}
	if db == nil {
		return false, fmt.Errorf("database must not be nil")
	}
	manager := state.NewManager(db)
	var marker appliedMarker
	ok, err := manager.KVGet(appliedKey, &marker)
	if err != nil {
		manager.Discard()
		return false, err
	}
	if ok {
		manager.Discard()
		return false, nil
	}
	for _, alloc := range spec.Allocations() {
		if err := manager.Credit(alloc.Address, alloc.Amount); err != nil {
			manager.Discard()
			return false, fmt.Errorf("credit genesis alloc: %w", err)
		}
	}
	marker = appliedMarker{Timestamp: uint64(spec.GenesisTimestamp().Unix()), Accounts: uint64(len(spec.Allocations()))}
	if err := manager.KVPut(appliedKey, marker); err != nil {
		manager.Discard()
		return false, err
	}
	if err := manager.Commit(); err != nil {
		return false, err
	}
	return true, nil
}
