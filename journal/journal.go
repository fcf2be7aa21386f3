// Package journal persists the registry's change records and rebuilds a
// registry from them.
//
// Every sink stores records in commit order and can load them back; a loaded
// sequence handed to Replay reproduces the registry that emitted it.
package journal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"xdao.co/oeuvre/model"
)

// Sink receives committed change records in order.
type Sink interface {
	Append(rec model.ChangeRecord) error
}

// Source yields a previously written journal in order.
type Source interface {
	Load() ([]model.ChangeRecord, error)
}

// Journal is a sink that can be read back and closed.
type Journal interface {
	Sink
	Source
	io.Closer
}

// Encode returns the canonical JSON form of rec: struct field order, no
// indentation, no trailing newline. Signatures are computed over
// Encode(rec.Unsigned()).
func Encode(rec model.ChangeRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rec); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// Decode parses one record, rejecting unknown fields.
func Decode(b []byte) (model.ChangeRecord, error) {
	var rec model.ChangeRecord
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rec); err != nil {
		return model.ChangeRecord{}, err
	}
	return rec, nil
}

// MemorySink keeps records in memory. The zero value is ready to use.
type MemorySink struct {
	mu   sync.Mutex
	recs []model.ChangeRecord
}

func (m *MemorySink) Append(rec model.ChangeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}

func (m *MemorySink) Load() ([]model.ChangeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.ChangeRecord(nil), m.recs...), nil
}

func (m *MemorySink) Close() error { return nil }

// Fanout delivers each record to every sink in order. A failing sink does not
// stop delivery to the rest; all failures are joined.
type Fanout []Sink

func (f Fanout) Append(rec model.ChangeRecord) error {
	var errs []error
	for i, s := range f {
		if err := s.Append(rec); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Kinds accepted by Open.
const (
	KindMemory = "memory"
	KindJSONL  = "jsonl"
	KindSQLite = "sqlite"
	KindCAS    = "cas"
)

// ParseSpec splits "kind:path". A bare "memory" needs no path.
func ParseSpec(spec string) (kind, path string, err error) {
	kind, path, _ = strings.Cut(spec, ":")
	switch kind {
	case KindMemory:
		return kind, "", nil
	case KindJSONL, KindSQLite, KindCAS:
		if path == "" {
			return "", "", fmt.Errorf("journal %q needs a path", kind)
		}
		return kind, path, nil
	default:
		return "", "", fmt.Errorf("unknown journal kind %q", kind)
	}
}

// Open opens (creating if needed) a journal of the given kind.
// For "cas" the path is a directory holding the object store and its head file.
func Open(kind, path string) (Journal, error) {
	switch kind {
	case KindMemory, "":
		return &MemorySink{}, nil
	case KindJSONL:
		return OpenJSONL(path)
	case KindSQLite:
		return OpenSQLite(path)
	case KindCAS:
		return OpenCASDir(path)
	default:
		return nil, fmt.Errorf("unknown journal kind %q", kind)
	}
}
