// SPDX-License-Identifier: Apache-2.0

package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/jllopis/avalon/pkg/errors"
)

// Format is an on-disk match log format.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatText Format = "text"
)

// ParseFormats parses a list such as "json,text".
func ParseFormats(list []string) ([]Format, error) {
	var out []Format
	for _, raw := range list {
		for _, part := range strings.Split(raw, ",") {
			f := Format(strings.ToLower(strings.TrimSpace(part)))
			switch f {
			case "":
				continue
			case FormatJSON, FormatYAML, FormatText:
				out = append(out, f)
			case "txt":
				out = append(out, FormatText)
			case "yml":
				out = append(out, FormatYAML)
			default:
				return nil, errors.Newf(errors.CodeConfiguration, "unknown log format %q", part)
			}
		}
	}
	return out, nil
}

// FileSink buffers the records of each match and writes one file per
// format when the result arrives, named game_<match id>.<ext>.
type FileSink struct {
	dir     string
	formats []Format
	mu      sync.Mutex
	pending map[string][]Record
}

// NewFileSink creates the directory if needed.
func NewFileSink(dir string, formats ...Format) (*FileSink, error) {
	if dir == "" {
		dir = "logs"
	}
	if len(formats) == 0 {
		formats = []Format{FormatJSON, FormatText}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.New(errors.CodeStorage, "create log directory", err).WithContext("dir", dir)
	}
	return &FileSink{
		dir:     dir,
		formats: formats,
		pending: make(map[string][]Record),
	}, nil
}

// Write buffers a record and flushes the match on its result.
func (s *FileSink) Write(_ context.Context, rec Record) error {
	s.mu.Lock()
	s.pending[rec.MatchID] = append(s.pending[rec.MatchID], rec)
	if rec.Kind != RecordResult {
		s.mu.Unlock()
		return nil
	}
	records := s.pending[rec.MatchID]
	delete(s.pending, rec.MatchID)
	s.mu.Unlock()

	log := BuildLog(records)
	for _, f := range s.formats {
		if err := s.writeFile(log, f); err != nil {
			return err
		}
	}
	return nil
}

// Path returns the file a match log is written to for a format.
func (s *FileSink) Path(matchID string, f Format) string {
	ext := string(f)
	if f == FormatText {
		ext = "txt"
	}
	return filepath.Join(s.dir, fmt.Sprintf("game_%s.%s", matchID, ext))
}

func (s *FileSink) writeFile(log MatchLog, f Format) error {
	var buf bytes.Buffer
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		if err := enc.Encode(log); err != nil {
			return errors.New(errors.CodeStorage, "encode json log", err)
		}
	case FormatYAML:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(log); err != nil {
			return errors.New(errors.CodeStorage, "encode yaml log", err)
		}
		_ = enc.Close()
	case FormatText:
		if err := WriteText(&buf, log); err != nil {
			return errors.New(errors.CodeStorage, "render text log", err)
		}
	}
	path := s.Path(log.MatchID, f)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return errors.New(errors.CodeStorage, "write log file", err).WithContext("path", path)
	}
	return nil
}

// Read loads a match log back from its JSON or YAML file.
func (s *FileSink) Read(matchID string) (MatchLog, error) {
	var log MatchLog
	for _, f := range []Format{FormatJSON, FormatYAML} {
		data, err := os.ReadFile(s.Path(matchID, f))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return log, errors.New(errors.CodeStorage, "read log file", err)
		}
		if f == FormatJSON {
			err = json.Unmarshal(data, &log)
		} else {
			err = yaml.Unmarshal(data, &log)
		}
		if err != nil {
			return log, errors.New(errors.CodeStorage, "decode log file", err).WithContext("path", s.Path(matchID, f))
		}
		return log, nil
	}
	return log, errors.Newf(errors.CodeNotFound, "no json or yaml log for match %s in %s", matchID, s.dir)
}
