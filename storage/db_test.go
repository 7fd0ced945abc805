package storage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevelDBPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	db1, err := NewLevelDB(dir)
	require.NoError(t, err)
	require.NoError(t, db1.Put([]byte("acct/1"), []byte("value")))
	db1.Close()

	db2, err := NewLevelDB(dir)
	require.NoError(t, err)
	defer db2.Close()

	got, err := db2.Get([]byte("acct/1"))
	require.NoError(t, err)
	require.Equal(t, []byte("value"), got)
}

func TestMemDBMissingKey(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	_, err := db.Get([]byte("missing"))
	require.True(t, errors.Is(err, ErrNotFound))

	ok, err := db.Has([]byte("missing"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBatchWriteAndPrefixIterate(t *testing.T) {
	db := NewMemDB()
	defer db.Close()

	require.NoError(t, db.Put([]byte("acct/stale"), []byte("x")))

	batch := NewBatch()
	batch.Put([]byte("acct/b"), []byte("2"))
	batch.Put([]byte("acct/a"), []byte("1"))
	batch.Put([]byte("mint/a"), []byte("m"))
	batch.Delete([]byte("acct/stale"))
	require.Equal(t, 4, batch.Len())
	require.NoError(t, db.Write(batch))

	var keys []string
	err := db.Iterate([]byte("acct/"), func(key, value []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"acct/a", "acct/b"}, keys)

	stop := errors.New("stop")
	calls := 0
	err = db.Iterate([]byte("acct/"), func(key, value []byte) error {
		calls++
		return stop
	})
	require.ErrorIs(t, err, stop)
	require.Equal(t, 1, calls)
}
