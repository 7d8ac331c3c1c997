package genesis

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"ecomchain/core/state"
	"ecomchain/crypto"
	"ecomchain/storage"
)

func TestParseAndApplyGenesis(t *testing.T) {
	addr1 := crypto.MustNewAddress(crypto.ECMPrefix, bytes.Repeat([]byte{0x01}, 20))
	addr2 := crypto.MustNewAddress(crypto.ECMPrefix, bytes.Repeat([]byte{0x02}, 20))
	raw := fmt.Sprintf("genesisTime: \"2024-01-01T00:00:00Z\"\nalloc:\n  %s: 5000000\n  %s: 42\n", addr2, addr1)

	spec, err := ParseGenesisSpec([]byte(raw))
	require.NoError(t, err)
	require.Equal(t, int64(1704067200), spec.GenesisTimestamp().Unix())
	allocs := spec.Allocations()
	require.Len(t, allocs, 2)
	require.Equal(t, addr1.Array(), allocs[0].Address)

	db := storage.NewMemDB()
	applied, err := Apply(spec, db)
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = Apply(spec, db)
	require.NoError(t, err)
	require.False(t, applied)

	balance, err := state.NewManager(db).Balance(addr2.Array())
	require.NoError(t, err)
	require.Equal(t, uint64(5_000_000), balance)
}

func TestParseGenesisRejectsBadInput(t *testing.T) {
	_, err := ParseGenesisSpec([]byte("alloc: {}\n"))
	require.Error(t, err)

	_, err = ParseGenesisSpec([]byte("genesisTime: \"2024-01-01T00:00:00Z\"\nchainId: 5\n"))
	require.Error(t, err)

	_, err = ParseGenesisSpec([]byte("genesisTime: \"2024-01-01T00:00:00Z\"\nalloc:\n  abc1qqqq: 5\n"))
	require.Error(t, err)
}
