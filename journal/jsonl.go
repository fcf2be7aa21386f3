package journal

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"xdao.co/oeuvre/model"
)

// JSONLSink appends one canonical JSON record per line and fsyncs after each.
type JSONLSink struct {
	path string
	mu   sync.Mutex
	f    *os.File
}

// OpenJSONL creates or opens path for appending. Missing directories are created.
func OpenJSONL(path string) (*JSONLSink, error) {
	if path == "" {
		return nil, fs.ErrInvalid
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONLSink{path: path, f: f}, nil
}

func (s *JSONLSink) Append(rec model.ChangeRecord) error {
	data, err := Encode(rec)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return fs.ErrClosed
	}
	if _, err := s.f.Write(data); err != nil {
		return err
	}
	return s.f.Sync()
}

// Load reads the whole file. A malformed line is an error: the journal is
// the source of truth and silently skipping a record would fork history.
func (s *JSONLSink) Load() ([]model.ChangeRecord, error) {
	return LoadJSONL(s.path)
}

// LoadJSONL reads a JSONL journal without opening it for writing.
func LoadJSONL(path string) ([]model.ChangeRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []model.ChangeRecord
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	line := 0
	for sc.Scan() {
		line++
		b := sc.Bytes()
		if len(b) == 0 {
			continue
		}
		rec, err := Decode(b)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
