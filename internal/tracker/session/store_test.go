package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreRoundTrip(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "nested", "session.json"))

	blob := &Blob{
		Cookies:   map[string]string{".ASPXAUTH": "tok", "cf_clearance": "cleared"},
		Expiry:    time.Now().Add(12 * time.Hour).Truncate(time.Second),
		UserAgent: "test-ua",
	}
	require.NoError(t, store.Save(context.Background(), blob))

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, blob.Cookies, got.Cookies)
	assert.True(t, blob.Expiry.Equal(got.Expiry))
	assert.Equal(t, "test-ua", got.UserAgent)
}

func TestFileStoreMissing(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "absent.json"))

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFileStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	got, err := NewFileStore(path).Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFileStorePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store := NewFileStore(path)
	require.NoError(t, store.Save(context.Background(), &Blob{Expiry: time.Now()}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
