package backup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	checksumSuffix = ".sha256"
	tempPrefix     = ".upload-"
)

// DirStore keeps objects as files in a mounted directory, each with a
// "<sha256>  <key>" sidecar.
type DirStore struct {
	Root string
}

func (s DirStore) path(key string) (string, error) {
	if key == "" || filepath.Base(key) != key || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(s.Root, key), nil
}

// Put copies localPath to a temp file in Root and renames it into place, so
// a failed upload never leaves a partial object under key.
func (s DirStore) Put(ctx context.Context, key, localPath string) error {
	dst, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.Root, 0750); err != nil {
		return err
	}

	src, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer src.Close()

	tmp, err := os.CreateTemp(s.Root, tempPrefix+"*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	h := sha256.New()
	_, err = io.Copy(io.MultiWriter(tmp, h), readerWithContext(ctx, src))
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	sum := hex.EncodeToString(h.Sum(nil))
	if err := os.WriteFile(dst+checksumSuffix, []byte(sum+"  "+key+"\n"), 0640); err != nil {
		return err
	}
	return os.Rename(tmpName, dst)
}

func (s DirStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var out []ObjectInfo
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, ".") || strings.HasSuffix(name, checksumSuffix) {
			continue
		}
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, ObjectInfo{Key: name, Size: info.Size(), ModTime: info.ModTime()})
	}
	return out, nil
}

// Delete removes the object and its sidecar. Missing objects are not an error.
func (s DirStore) Delete(ctx context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if err := os.Remove(p + checksumSuffix); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Checksum rehashes the stored object rather than trusting the sidecar, and
// fails when the two disagree.
func (s DirStore) Checksum(ctx context.Context, key string) (string, error) {
	p, err := s.path(key)
	if err != nil {
		return "", err
	}
	sum, err := sha256File(p)
	if err != nil {
		return "", err
	}

	if data, err := os.ReadFile(p + checksumSuffix); err == nil {
		recorded, _, _ := strings.Cut(strings.TrimSpace(string(data)), " ")
		if !strings.EqualFold(recorded, sum) {
			return "", fmt.Errorf("%w: %s sidecar %s, content %s", ErrVerificationMismatch, key, recorded, sum)
		}
	}
	return sum, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return ctxReader{ctx: ctx, r: r}
}
