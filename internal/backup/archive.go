package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	archiveSuffix   = ".tar.gz"
	timestampLayout = "20060102T150405Z"
)

// ArchiveKey names the archive of run id started at t. The run id keeps
// keys of runs started within the same second apart.
func ArchiveKey(prefix string, id int64, t time.Time) string {
	return fmt.Sprintf("%s-%s-r%d%s", prefix, t.UTC().Format(timestampLayout), id, archiveSuffix)
}

// parseArchiveKey extracts the timestamp and run id from a key built by
// ArchiveKey. Keys without a run id parse with id 0.
func parseArchiveKey(prefix, key string) (time.Time, int64, bool) {
	stamp, ok := strings.CutPrefix(key, prefix+"-")
	if !ok {
		return time.Time{}, 0, false
	}
	stamp, ok = strings.CutSuffix(stamp, archiveSuffix)
	if !ok {
		return time.Time{}, 0, false
	}

	if stamp, rest, found := strings.Cut(stamp, "-r"); found {
		n, err := strconv.ParseInt(rest, 10, 64)
		if err != nil || n < 1 {
			return time.Time{}, 0, false
		}
		t, err := time.Parse(timestampLayout, stamp)
		return t, n, err == nil
	}
	t, err := time.Parse(timestampLayout, stamp)
	return t, 0, err == nil
}

// TarGzArchiver writes gzip-compressed tarballs into WorkDir
type TarGzArchiver struct {
	WorkDir string
}

// Archive streams every manifest file into WorkDir/key. The archive is
// written under a .partial name and renamed when complete, and its SHA-256
// is computed while writing.
func (a TarGzArchiver) Archive(ctx context.Context, m Manifest, key string) (Artifact, error) {
	if err := os.MkdirAll(a.WorkDir, 0750); err != nil {
		return Artifact{}, err
	}

	final := filepath.Join(a.WorkDir, key)
	partial := final + ".partial"

	f, err := os.OpenFile(partial, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return Artifact{}, err
	}

	sum, size, err := writeTarGz(ctx, f, m)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(partial)
		return Artifact{}, err
	}

	if err := os.Rename(partial, final); err != nil {
		os.Remove(partial)
		return Artifact{}, err
	}
	return Artifact{Path: final, Key: key, Size: size, SHA256: sum}, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func writeTarGz(ctx context.Context, out io.Writer, m Manifest) (string, int64, error) {
	h := sha256.New()
	cw := &countingWriter{w: io.MultiWriter(out, h)}
	gz := gzip.NewWriter(cw)
	tw := tar.NewWriter(gz)

	for _, fe := range m.Files {
		if ctx.Err() != nil {
			return "", 0, ctx.Err()
		}
		if err := addFile(tw, fe); err != nil {
			return "", 0, fmt.Errorf("add %s: %w", fe.Path, err)
		}
	}

	if err := tw.Close(); err != nil {
		return "", 0, err
	}
	if err := gz.Close(); err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), cw.n, nil
}

func addFile(tw *tar.Writer, fe FileEntry) error {
	f, err := os.Open(fe.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = fe.Name

	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	// The file may shrink between stat and read; tar requires exactly Size bytes.
	_, err = io.CopyN(tw, f, hdr.Size)
	return err
}

// sha256File hashes a file on disk
func sha256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
