package backup

import (
	"context"
	"time"

	"vpsdash/internal/hooks"
)

// FileEntry is one regular file selected for the archive
type FileEntry struct {
	Path string // absolute path on disk
	Name string // path inside the archive
	Size int64
}

// Manifest is the output of ENUMERATE
type Manifest struct {
	Sources    []string
	Files      []FileEntry
	TotalBytes int64
}

// Artifact is a local archive ready for upload
type Artifact struct {
	Path   string
	Key    string
	Size   int64
	SHA256 string
}

// ObjectInfo is one entry of a remote listing
type ObjectInfo struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// Enumerator selects the files to back up
type Enumerator interface {
	Enumerate(ctx context.Context) (Manifest, error)
}

// Archiver packs a manifest into a local archive stored under key
type Archiver interface {
	Archive(ctx context.Context, m Manifest, key string) (Artifact, error)
}

// ObjectStore is the remote side of a backup. Put must not leave a partial
// object under key when it fails.
type ObjectStore interface {
	Put(ctx context.Context, key, localPath string) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	Checksum(ctx context.Context, key string) (string, error)
}

// HookRunner runs the pre and post shell hooks
type HookRunner interface {
	Run(ctx context.Context, command string, env ...string) (*hooks.Result, error)
}

// RunLog durably records run progress
type RunLog interface {
	Append(event string, run Run) error
}

// StatusSink receives every finished run
type StatusSink interface {
	RecordBackupStatus(run Run)
}

// Recorder receives per-attempt and per-run measurements
type Recorder interface {
	StepAttempt(step StepName, outcome StepOutcome, d time.Duration)
	RunFinished(run Run)
}

// Journal events
const (
	EventStart  = "start"
	EventStep   = "step"
	EventState  = "state"
	EventFinish = "finish"
)
