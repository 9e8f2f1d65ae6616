package numberfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(filepath.Join(t.TempDir(), "data", FileName))
	require.NoError(t, err)
	return st
}

func TestNew_CreatesEmptyFile(t *testing.T) {
	st := newStore(t)

	b, err := os.ReadFile(st.Path())
	require.NoError(t, err)
	require.JSONEq(t, `{"tracking_numbers":[]}`, string(b))

	got, err := st.List(context.Background())
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestStore_AddRemove(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	added, err := st.Add(ctx, []string{"B2", " A1 ", "", "B2"})
	require.NoError(t, err)
	require.Equal(t, []string{"B2", "A1"}, added)

	added, err = st.Add(ctx, []string{"A1", "C3"})
	require.NoError(t, err)
	require.Equal(t, []string{"C3"}, added)

	got, err := st.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"B2", "A1", "C3"}, got)

	ok, err := st.Remove(ctx, "A1")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = st.Remove(ctx, "A1")
	require.NoError(t, err)
	require.False(t, ok)

	got, err = st.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"B2", "C3"}, got)
}

func TestStore_SaveAndReopen(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	require.NoError(t, st.Save(ctx, []string{"X", "Y"}))

	again, err := New(st.Path())
	require.NoError(t, err)
	got, err := again.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"X", "Y"}, got)
}

func TestStore_CorruptFile(t *testing.T) {
	st := newStore(t)
	require.NoError(t, os.WriteFile(st.Path(), []byte("{not json"), 0o644))

	_, err := st.List(context.Background())
	require.Error(t, err)
}
