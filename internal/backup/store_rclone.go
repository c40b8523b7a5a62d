package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	constants "vpsdash/config"
)

// commandFunc runs a binary and returns its stdout
type commandFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w: %s", name, args[0], err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// RcloneStore drives an rclone remote ("b2:bucket/vps", "s3:bucket") through
// the rclone binary.
type RcloneStore struct {
	Bin    string
	Remote string
	run    commandFunc
}

func NewRcloneStore(bin, remote string) *RcloneStore {
	if bin == "" {
		bin = constants.DEFAULT_RCLONE_BIN
	}
	return &RcloneStore{Bin: bin, Remote: remote, run: execOutput}
}

func (s *RcloneStore) target(key string) string {
	if strings.HasSuffix(s.Remote, ":") {
		return s.Remote + key
	}
	return strings.TrimRight(s.Remote, "/") + "/" + key
}

// Put uses copyto, which uploads to a temporary name on backends that
// support it and only exposes the object once complete.
func (s *RcloneStore) Put(ctx context.Context, key, localPath string) error {
	_, err := s.run(ctx, s.Bin, "copyto", localPath, s.target(key))
	return err
}

type lsjsonEntry struct {
	Path    string    `json:"Path"`
	Name    string    `json:"Name"`
	Size    int64     `json:"Size"`
	ModTime time.Time `json:"ModTime"`
	IsDir   bool      `json:"IsDir"`
}

func (s *RcloneStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	out, err := s.run(ctx, s.Bin, "lsjson", "--files-only", "--no-mimetype", s.Remote)
	if err != nil {
		return nil, err
	}

	var entries []lsjsonEntry
	if err := json.Unmarshal(out, &entries); err != nil {
		return nil, fmt.Errorf("rclone: parse lsjson: %w", err)
	}

	var objects []ObjectInfo
	for _, e := range entries {
		if e.IsDir || !strings.HasPrefix(e.Path, prefix) {
			continue
		}
		objects = append(objects, ObjectInfo{Key: e.Path, Size: e.Size, ModTime: e.ModTime})
	}
	return objects, nil
}

func (s *RcloneStore) Delete(ctx context.Context, key string) error {
	_, err := s.run(ctx, s.Bin, "deletefile", s.target(key))
	return err
}

// Checksum asks rclone for the SHA-256 of the remote object, downloading it
// when the backend cannot hash server side.
func (s *RcloneStore) Checksum(ctx context.Context, key string) (string, error) {
	out, err := s.run(ctx, s.Bin, "hashsum", "sha256", "--download", s.target(key))
	if err != nil {
		return "", err
	}
	fields := strings.Fields(string(out))
	if len(fields) == 0 {
		return "", errors.New("rclone: empty hashsum output")
	}
	return strings.ToLower(fields[0]), nil
}
