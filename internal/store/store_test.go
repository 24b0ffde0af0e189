package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDimension = 3

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func openBackends(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	sqlite, err := OpenSQLite(filepath.Join(dir, "relay.db"), testDimension, zerolog.Nop())
	require.NoError(t, err)
	badgerStore, err := OpenBadger(filepath.Join(dir, "badger"), zerolog.Nop())
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, sqlite.Close())
		assert.NoError(t, badgerStore.Close())
	})
	return map[string]Store{
		BackendSQLite: sqlite,
		BackendBadger: badgerStore,
	}
}

func record(i int, body string, vec []float32) Record {
	return Record{
		ID:        fmt.Sprintf("id-%02d", i),
		Sender:    fmt.Sprintf("user%d", i%2),
		Body:      body,
		Timestamp: base.Add(time.Duration(i) * time.Second),
		Embedding: vec,
	}
}

func TestStoreRecent(t *testing.T) {
	for name, st := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 0; i < 5; i++ {
				require.NoError(t, st.Append(ctx, record(i, fmt.Sprintf("message %d", i), nil)))
			}

			recent, err := st.Recent(ctx, 3)
			require.NoError(t, err)
			require.Len(t, recent, 3)
			assert.Equal(t, "message 2", recent[0].Body)
			assert.Equal(t, "message 3", recent[1].Body)
			assert.Equal(t, "message 4", recent[2].Body)
			assert.True(t, recent[2].Timestamp.Equal(base.Add(4*time.Second)))
			assert.Equal(t, "user0", recent[2].Sender)

			all, err := st.Recent(ctx, 100)
			require.NoError(t, err)
			assert.Len(t, all, 5)

			none, err := st.Recent(ctx, 0)
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestStoreSimilar(t *testing.T) {
	for name, st := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, st.Append(ctx, record(0, "about cats", []float32{1, 0, 0})))
			require.NoError(t, st.Append(ctx, record(1, "about dogs", []float32{0, 1, 0})))
			require.NoError(t, st.Append(ctx, record(2, "cats and dogs", []float32{0.7, 0.7, 0})))
			require.NoError(t, st.Append(ctx, record(3, "no vector", nil)))

			similar, err := st.Similar(ctx, []float32{0.9, 0.1, 0}, 2)
			require.NoError(t, err)
			require.Len(t, similar, 2)
			assert.Equal(t, "about cats", similar[0].Body)
			assert.Equal(t, "cats and dogs", similar[1].Body)

			all, err := st.Similar(ctx, []float32{0, 1, 0}, 10)
			require.NoError(t, err)
			require.Len(t, all, 3, "records without a vector are never returned")
			assert.Equal(t, "about dogs", all[0].Body)
		})
	}
}

func TestStoreEmpty(t *testing.T) {
	for name, st := range openBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			recent, err := st.Recent(ctx, 10)
			require.NoError(t, err)
			assert.Empty(t, recent)

			similar, err := st.Similar(ctx, []float32{1, 0, 0}, 5)
			require.NoError(t, err)
			assert.Empty(t, similar)
		})
	}
}

func TestSQLiteDimensionMismatch(t *testing.T) {
	st, err := OpenSQLite(filepath.Join(t.TempDir(), "relay.db"), testDimension, zerolog.Nop())
	require.NoError(t, err)
	defer st.Close()
	ctx := context.Background()

	// A wrong-sized embedding is dropped; the message is kept.
	require.NoError(t, st.Append(ctx, record(0, "odd vector", []float32{1, 2})))
	recent, err := st.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)

	_, err = st.Similar(ctx, []float32{1, 2}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestSQLiteReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "relay.db")
	ctx := context.Background()

	st, err := OpenSQLite(path, testDimension, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, st.Append(ctx, record(0, "persisted", []float32{1, 0, 0})))
	require.NoError(t, st.Close())

	st, err = OpenSQLite(path, testDimension, zerolog.Nop())
	require.NoError(t, err)
	defer st.Close()

	recent, err := st.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "persisted", recent[0].Body)
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	st, err := Open(Config{Backend: BackendNone})
	require.NoError(t, err)
	assert.Nil(t, st)

	st, err = Open(Config{Backend: "postgres", Path: dir})
	assert.ErrorIs(t, err, ErrUnknownBackend)
	assert.Nil(t, st)

	st, err = Open(Config{Backend: BackendBadger, Path: filepath.Join(dir, "b"), Logger: zerolog.Nop()})
	require.NoError(t, err)
	assert.IsType(t, &Badger{}, st)
	require.NoError(t, st.Close())

	st, err = Open(Config{Path: filepath.Join(dir, "s.db"), Dimension: testDimension, Logger: zerolog.Nop()})
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, st)
	require.NoError(t, st.Close())

	_, err = Open(Config{Backend: BackendSQLite})
	assert.Error(t, err)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2, 3}, []float32{2, 4, 6}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-9)
	assert.Equal(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}
