package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	constants "vpsdash/config"
	"vpsdash/pkg/utils"
)

// DefaultLogPatterns flag error-looking lines
var DefaultLogPatterns = []string{
	`(?i)\b(error|err|fail|failed|failure|exception|panic|fatal|critical)\b`,
	`(?i)(timeout|timed out|connection refused|connection reset)`,
	`(?i)(out of memory|oom|killed|segfault)`,
	`(?i)(denied|unauthorized|forbidden|permission)`,
}

const (
	tailBlockSize     = 1024
	maxExcerptLength  = 200
	maxTailReadLength = 4 << 20
)

// LogAnomaly counts pattern matches in the last lines of a log file
type LogAnomaly struct {
	name       string
	path       string
	lines      int
	patterns   []*regexp.Regexp
	thresholds Thresholds
}

// NewLogAnomaly compiles patterns; nil patterns use DefaultLogPatterns
func NewLogAnomaly(name, path string, lines int, patterns []string, t Thresholds) (*LogAnomaly, error) {
	if lines <= 0 {
		lines = constants.DEFAULT_LOG_TAIL_LINES
	}
	if len(patterns) == 0 {
		patterns = DefaultLogPatterns
	}

	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("probe %s: bad pattern %q: %w", name, p, err)
		}
		compiled = append(compiled, re)
	}

	return &LogAnomaly{
		name:       name,
		path:       path,
		lines:      lines,
		patterns:   compiled,
		thresholds: t.orDefault(Thresholds{Warn: constants.DEFAULT_LOG_WARN, Crit: constants.DEFAULT_LOG_CRIT}),
	}, nil
}

func (p *LogAnomaly) Name() string { return p.name }

func (p *LogAnomaly) Sample(ctx context.Context) Result {
	lines, err := TailFile(p.path, p.lines)
	if err != nil {
		return Unknown(p.name, err)
	}
	if ctx.Err() != nil {
		return Unknown(p.name, ctx.Err())
	}

	matches := 0
	last := ""
	for _, line := range lines {
		text := logMessage(line)
		if p.matches(text) {
			matches++
			last = text
		}
	}

	count := float64(matches)
	msg := fmt.Sprintf("%d of last %d lines matched", matches, len(lines))
	if last != "" {
		msg += ": " + utils.TruncateString(last, maxExcerptLength)
	}
	return NewResult(p.name, p.thresholds.Evaluate(count), count, msg)
}

func (p *LogAnomaly) matches(line string) bool {
	for _, re := range p.patterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// logMessage pulls the message out of JSON log lines and returns other lines as is
func logMessage(line string) string {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return line
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(trimmed), &entry); err != nil {
		return line
	}
	level, _ := entry["level"].(string)
	for _, key := range []string{"message", "msg"} {
		if msg, ok := entry[key].(string); ok && msg != "" {
			if level != "" {
				return level + " " + msg
			}
			return msg
		}
	}
	return line
}

// TailFile returns the last n lines of path, reading backwards in blocks so
// large logs are not loaded whole.
func TailFile(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}

	var data []byte
	offset := size
	for offset > 0 && bytes.Count(data, []byte{'\n'}) <= n && int64(len(data)) < maxTailReadLength {
		step := int64(tailBlockSize)
		if offset < step {
			step = offset
		}
		offset -= step

		block := make([]byte, step)
		if _, err := f.ReadAt(block, offset); err != nil && err != io.EOF {
			return nil, err
		}
		data = append(block, data...)
	}

	text := strings.ToValidUTF8(string(data), "�")
	lines := strings.Split(strings.TrimRight(text, "\r\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		return nil, nil
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}
