package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vpsdash/internal/logger"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "local.tar.gz")
	require.NoError(t, os.WriteFile(p, []byte(content), 0600))
	return p
}

func TestDirStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := DirStore{Root: filepath.Join(t.TempDir(), "target")}
	local := writeTemp(t, "hello backup")

	require.NoError(t, store.Put(ctx, "vps-backup-20240101T030000Z.tar.gz", local))

	objects, err := store.List(ctx, "vps-backup-")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "vps-backup-20240101T030000Z.tar.gz", objects[0].Key)
	assert.Equal(t, int64(12), objects[0].Size)

	want, err := sha256File(local)
	require.NoError(t, err)
	sum, err := store.Checksum(ctx, "vps-backup-20240101T030000Z.tar.gz")
	require.NoError(t, err)
	assert.Equal(t, want, sum)

	sidecar, err := os.ReadFile(filepath.Join(store.Root, "vps-backup-20240101T030000Z.tar.gz.sha256"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(sidecar), want+"  "))

	require.NoError(t, store.Delete(ctx, "vps-backup-20240101T030000Z.tar.gz"))
	require.NoError(t, store.Delete(ctx, "vps-backup-20240101T030000Z.tar.gz"))
	objects, err = store.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestDirStoreDetectsCorruption(t *testing.T) {
	ctx := context.Background()
	store := DirStore{Root: t.TempDir()}
	require.NoError(t, store.Put(ctx, "a.tar.gz", writeTemp(t, "original")))

	require.NoError(t, os.WriteFile(filepath.Join(store.Root, "a.tar.gz"), []byte("tampered"), 0600))
	_, err := store.Checksum(ctx, "a.tar.gz")
	assert.ErrorIs(t, err, ErrVerificationMismatch)
}

func TestDirStoreRejectsPathKeys(t *testing.T) {
	store := DirStore{Root: t.TempDir()}
	assert.Error(t, store.Put(context.Background(), "../escape", writeTemp(t, "x")))
	assert.Error(t, store.Delete(context.Background(), "sub/dir"))
}

func TestDirStoreFailedPutLeavesNoObject(t *testing.T) {
	store := DirStore{Root: t.TempDir()}
	err := store.Put(context.Background(), "a.tar.gz", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)

	entries, _ := os.ReadDir(store.Root)
	assert.Empty(t, entries)
}

func TestDirStoreListMissingRoot(t *testing.T) {
	objects, err := DirStore{Root: filepath.Join(t.TempDir(), "nope")}.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestRcloneStoreCommands(t *testing.T) {
	var calls [][]string
	store := NewRcloneStore("", "b2:bucket/vps/")
	store.run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		calls = append(calls, append([]string{name}, args...))
		switch args[0] {
		case "lsjson":
			return []byte(`[
				{"Path":"vps-backup-20240101T030000Z.tar.gz","Name":"vps-backup-20240101T030000Z.tar.gz","Size":42,"ModTime":"2024-01-01T03:00:10Z","IsDir":false},
				{"Path":"notes.txt","Name":"notes.txt","Size":1,"ModTime":"2024-01-01T03:00:10Z","IsDir":false}
			]`), nil
		case "hashsum":
			return []byte("ABCDEF0123  vps-backup-20240101T030000Z.tar.gz\n"), nil
		}
		return nil, nil
	}

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "k.tar.gz", "/tmp/k.tar.gz"))
	assert.Equal(t, []string{"rclone", "copyto", "/tmp/k.tar.gz", "b2:bucket/vps/k.tar.gz"}, calls[0])

	objects, err := store.List(ctx, "vps-backup-")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, int64(42), objects[0].Size)
	assert.Equal(t, time.Date(2024, 1, 1, 3, 0, 10, 0, time.UTC), objects[0].ModTime.UTC())

	sum, err := store.Checksum(ctx, "vps-backup-20240101T030000Z.tar.gz")
	require.NoError(t, err)
	assert.Equal(t, "abcdef0123", sum)

	require.NoError(t, store.Delete(ctx, "old.tar.gz"))
	assert.Equal(t, []string{"rclone", "deletefile", "b2:bucket/vps/old.tar.gz"}, calls[len(calls)-1])
}

func TestRcloneTargetForBareRemote(t *testing.T) {
	assert.Equal(t, "s3:key", NewRcloneStore("rclone", "s3:").target("key"))
}

type failingStore struct {
	fakeStore
	err   error
	calls int
}

func (f *failingStore) Put(ctx context.Context, key, localPath string) error {
	f.calls++
	return f.err
}

func TestBreakerStoreWrapsAndTrips(t *testing.T) {
	inner := &failingStore{err: errors.New("connection reset")}
	store := NewBreakerStore(inner, 2, time.Minute, logger.Nop())
	ctx := context.Background()

	err := store.Put(ctx, "k", "p")
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.Contains(t, err.Error(), "connection reset")

	_ = store.Put(ctx, "k", "p")
	assert.Equal(t, "open", store.State())

	err = store.Put(ctx, "k", "p")
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.Equal(t, 2, inner.calls, "open breaker short-circuits the store")
}

func TestBreakerStorePassesResults(t *testing.T) {
	inner := newFakeStore()
	store := NewBreakerStore(inner, 3, time.Minute, logger.Nop())
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "vps-backup-1", writeTemp(t, "abc")))
	objects, err := store.List(ctx, "vps-backup-")
	require.NoError(t, err)
	assert.Len(t, objects, 1)

	sum, err := store.Checksum(ctx, "vps-backup-1")
	require.NoError(t, err)
	assert.Equal(t, "abc123", sum)
	assert.Equal(t, "closed", store.State())
}
