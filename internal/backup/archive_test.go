package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"app/config.yml":     "listen: 8080\n",
		"app/data/world.dat": "chunks",
		"app/cache/tmp.bin":  "skip me",
		"app/debug.log":      "noise",
	}
	for name, content := range files {
		p := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
	return root
}

func TestFSEnumeratorExcludes(t *testing.T) {
	root := makeTree(t)
	e := FSEnumerator{Sources: []string{filepath.Join(root, "app")}, Excludes: []string{"cache", "*.log"}}

	m, err := e.Enumerate(context.Background())
	require.NoError(t, err)

	var names []string
	for _, f := range m.Files {
		names = append(names, filepath.Base(f.Path))
	}
	sort.Strings(names)
	assert.Equal(t, []string{"config.yml", "world.dat"}, names)
	assert.Equal(t, int64(len("listen: 8080\n")+len("chunks")), m.TotalBytes)
	assert.NotEqual(t, '/', m.Files[0].Name[0])
}

func TestFSEnumeratorMissingSource(t *testing.T) {
	_, err := FSEnumerator{Sources: []string{filepath.Join(t.TempDir(), "gone")}}.Enumerate(context.Background())
	assert.Error(t, err)

	_, err = FSEnumerator{}.Enumerate(context.Background())
	assert.Error(t, err)

	_, err = FSEnumerator{Sources: []string{t.TempDir()}, Excludes: []string{"["}}.Enumerate(context.Background())
	assert.Error(t, err)
}

func TestTarGzArchiver(t *testing.T) {
	root := makeTree(t)
	m, err := FSEnumerator{Sources: []string{filepath.Join(root, "app")}}.Enumerate(context.Background())
	require.NoError(t, err)

	work := t.TempDir()
	key := ArchiveKey("vps-backup", 7, time.Date(2024, 5, 6, 3, 0, 0, 0, time.UTC))
	art, err := TarGzArchiver{WorkDir: work}.Archive(context.Background(), m, key)
	require.NoError(t, err)

	assert.Equal(t, "vps-backup-20240506T030000Z-r7.tar.gz", art.Key)
	assert.Equal(t, filepath.Join(work, key), art.Path)

	info, err := os.Stat(art.Path)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), art.Size)

	sum, err := sha256File(art.Path)
	require.NoError(t, err)
	assert.Equal(t, sum, art.SHA256)

	_, err = os.Stat(art.Path + ".partial")
	assert.True(t, os.IsNotExist(err))

	f, err := os.Open(art.Path)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	count := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		assert.NotEmpty(t, hdr.Name)
		count++
	}
	assert.Equal(t, len(m.Files), count)
}

func TestArchiveFailureRemovesPartial(t *testing.T) {
	work := t.TempDir()
	m := Manifest{Files: []FileEntry{{Path: filepath.Join(work, "vanished"), Name: "vanished"}}}

	_, err := TarGzArchiver{WorkDir: work}.Archive(context.Background(), m, "k.tar.gz")
	require.Error(t, err)

	entries, _ := os.ReadDir(work)
	assert.Empty(t, entries)
}

func TestParseArchiveKey(t *testing.T) {
	want := time.Date(2024, 5, 6, 3, 0, 0, 0, time.UTC)

	at, id, ok := parseArchiveKey("vps-backup", ArchiveKey("vps-backup", 12, want))
	require.True(t, ok)
	assert.Equal(t, want, at)
	assert.Equal(t, int64(12), id)

	// keys written before run ids were part of the name
	at, id, ok = parseArchiveKey("vps-backup", "vps-backup-20240506T030000Z.tar.gz")
	require.True(t, ok)
	assert.Equal(t, want, at)
	assert.Equal(t, int64(0), id)

	for _, bad := range []string{
		"vps-backup-latest.tar.gz",
		"other-20240506T030000Z.tar.gz",
		"vps-backup-20240506T030000Z-rx.tar.gz",
		"vps-backup-20240506T030000Z-r0.tar.gz",
	} {
		_, _, ok = parseArchiveKey("vps-backup", bad)
		assert.False(t, ok, bad)
	}
}
