// Package trie commits the contents of a key range to a Merkle Patricia root so
// two replicas, or one replica over time, can be compared with a single hash.
package trie

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/rawdb"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	gethtrie "github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/triedb"

	"ecomchain/storage"
)

// EmptyRoot is the root of a range with no keys.
var EmptyRoot = gethtypes.EmptyRootHash

// Trie accumulates key/value pairs in an in-memory go-ethereum trie. Keys are
// hashed with keccak256 before insertion.
//
// Trie is not safe for concurrent use.
type Trie struct {
	trie *gethtrie.Trie
}

// New returns an empty trie backed by a throwaway node database.
func New() (*Trie, error) {
	trieDB := triedb.NewDatabase(rawdb.NewMemoryDatabase(), nil)
	underlying, err := gethtrie.New(gethtrie.TrieID(gethtypes.EmptyRootHash), trieDB)
	if err != nil {
		return nil, err
	}
	return &Trie{trie: underlying}, nil
}

// Update inserts or replaces the value stored for key.
func (t *Trie) Update(key, value []byte) error {
	return t.trie.Update(crypto.Keccak256(key), value)
}

// Get returns the value stored for key, or nil.
func (t *Trie) Get(key []byte) ([]byte, error) {
	return t.trie.Get(crypto.Keccak256(key))
}

// Hash returns the root over every inserted pair.
func (t *Trie) Hash() common.Hash {
	return t.trie.Hash()
}

// Root commits every key under the given prefixes of db.
func Root(db storage.Database, prefixes ...[]byte) (common.Hash, error) {
	t, err := New()
	if err != nil {
		return common.Hash{}, err
	}
	for _, prefix := range prefixes {
		var updateErr error
		err := db.Iterate(prefix, func(key, value []byte) bool {
			updateErr = t.Update(key, value)
			return updateErr == nil
		})
		if err != nil {
			return common.Hash{}, err
		}
		if updateErr != nil {
			return common.Hash{}, updateErr
		}
	}
	return t.Hash(), nil
}
