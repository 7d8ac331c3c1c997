package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	"ecomchain/storage"
)

func TestOverlayIsolatesUntilCommit(t *testing.T) {
	db := storage.NewMemDB()
	require.NoError(t, db.Put([]byte("k/1"), []byte("old")))
	require.NoError(t, db.Put([]byte("k/2"), []byte("gone")))

	o := NewOverlay(db)
	o.Put([]byte("k/1"), []byte("new"))
	o.Put([]byte("k/3"), []byte("added"))
	o.Delete([]byte("k/2"))

	value, ok, err := o.Get([]byte("k/1"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("new"), value)
	_, ok, err = o.Get([]byte("k/2"))
	require.NoError(t, err)
	require.False(t, ok)

	raw, err := db.Get([]byte("k/1"))
	require.NoError(t, err)
	require.Equal(t, []byte("old"), raw)

	var keys []string
	require.NoError(t, o.Iterate([]byte("k/"), func(key, _ []byte) bool {
		keys = append(keys, string(key))
		return true
	}))
	require.Equal(t, []string{"k/1", "k/3"}, keys)
	require.Equal(t, 3, o.Pending())

	require.NoError(t, o.Commit())
	has, err := db.Has([]byte("k/2"))
	require.NoError(t, err)
	require.False(t, has)
	raw, err = db.Get([]byte("k/3"))
	require.NoError(t, err)
	require.Equal(t, []byte("added"), raw)
}

func TestOverlayIterateMergesInOrderAndStops(t *testing.T) {
	db := storage.NewMemDB()
	for _, k := range []string{"k/b", "k/d", "k/f"} {
		require.NoError(t, db.Put([]byte(k), []byte("db")))
	}
	o := NewOverlay(db)
	o.Put([]byte("k/a"), []byte("buf"))
	o.Put([]byte("k/d"), []byte("buf"))
	o.Put([]byte("k/g"), []byte("buf"))
	o.Delete([]byte("k/f"))

	var seen []string
	require.NoError(t, o.Iterate([]byte("k/"), func(key, value []byte) bool {
		seen = append(seen, string(key)+"="+string(value))
		return true
	}))
	require.Equal(t, []string{"k/a=buf", "k/b=db", "k/d=buf", "k/g=buf"}, seen)

	seen = nil
	require.NoError(t, o.Iterate([]byte("k/"), func(key, _ []byte) bool {
		seen = append(seen, string(key))
		return len(seen) < 2
	}))
	require.Equal(t, []string{"k/a", "k/b"}, seen)
}
