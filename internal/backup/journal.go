package backup

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// InterruptedReason marks runs the journal shows as started but never finished
const InterruptedReason = "interrupted: agent stopped mid-run"

const maxJournalLine = 1 << 20

// journalRecord is one JSONL line
type journalRecord struct {
	Event string    `json:"event"`
	At    time.Time `json:"at"`
	Run   Run       `json:"run"`
}

// Summary is the latest-run document other tools read
type Summary struct {
	Status string `json:"status"`
	Run
}

// Journal appends the full run record on every event to a JSONL file and
// rewrites the summary file when a run finishes
type Journal struct {
	path        string
	summaryPath string
	mu          sync.Mutex
}

func NewJournal(path, summaryPath string) *Journal {
	return &Journal{path: path, summaryPath: summaryPath}
}

// Path returns the journal file path
func (j *Journal) Path() string { return j.path }

func (j *Journal) Append(event string, run Run) error {
	line, err := json.Marshal(journalRecord{Event: event, At: time.Now().UTC(), Run: run})
	if err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(j.path), 0750); err != nil {
		return err
	}
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
	if err != nil {
		return err
	}
	_, err = f.Write(append(line, '\n'))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("append journal: %w", err)
	}

	if event == EventFinish && j.summaryPath != "" {
		if err := j.writeSummary(run); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	return nil
}

func (j *Journal) writeSummary(run Run) error {
	data, err := json.MarshalIndent(Summary{Status: strings.ToLower(string(run.Outcome)), Run: run}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(j.summaryPath), 0750); err != nil {
		return err
	}

	// Write to temp file first, then rename (atomic operation)
	tmpFile := j.summaryPath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpFile, j.summaryPath)
}

// Load replays the journal and returns the last record of each run, oldest
// first, at most limit runs (zero for all). Runs without a finish event are
// returned as FAILED with InterruptedReason. A missing journal is empty.
func (j *Journal) Load(limit int) ([]Run, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	type entry struct {
		run      Run
		lastAt   time.Time
		finished bool
	}
	byID := make(map[int64]*entry)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxJournalLine)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec journalRecord
		if err := json.Unmarshal(line, &rec); err != nil || rec.Run.ID == 0 {
			// torn or foreign line
			continue
		}
		e, ok := byID[rec.Run.ID]
		if !ok {
			e = &entry{}
			byID[rec.Run.ID] = e
		}
		e.run = rec.Run
		e.lastAt = rec.At
		if rec.Event == EventFinish {
			e.finished = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}

	runs := make([]Run, 0, len(byID))
	for _, e := range byID {
		r := e.run
		if !e.finished {
			at := e.lastAt
			r.FinishedAt = &at
			r.Outcome = OutcomeFailed
			r.State = StateFailed
			r.Reason = InterruptedReason
		}
		runs = append(runs, r)
	}
	sort.Slice(runs, func(a, b int) bool { return runs[a].ID < runs[b].ID })

	if limit > 0 && len(runs) > limit {
		runs = runs[len(runs)-limit:]
	}
	return runs, nil
}

// LastID returns the highest run id in runs
func LastID(runs []Run) int64 {
	var id int64
	for _, r := range runs {
		if r.ID > id {
			id = r.ID
		}
	}
	return id
}
