package journal

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ipfs/go-cid"

	"xdao.co/oeuvre/model"
	"xdao.co/oeuvre/storage"
	"xdao.co/oeuvre/storage/localfs"
)

// CASSink stores each record as an immutable CAS object and keeps the ordered
// list of their CIDs (the head). When a head file is configured the list is
// appended to it, one CID per line, so the journal survives restarts.
type CASSink struct {
	cas storage.CAS

	mu       sync.Mutex
	head     []cid.Cid
	headPath string
	f        *os.File
}

// NewCASSink keeps the head in memory only.
func NewCASSink(cas storage.CAS) *CASSink {
	return &CASSink{cas: cas}
}

// OpenCAS uses cas for objects and headPath for the head, loading any CIDs
// already listed there.
func OpenCAS(cas storage.CAS, headPath string) (*CASSink, error) {
	head, err := readHead(headPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(headPath), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(headPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &CASSink{cas: cas, head: head, headPath: headPath, f: f}, nil
}

// OpenCASDir lays a journal out under dir: objects/ for the store, HEAD for
// the ordered CID list.
func OpenCASDir(dir string) (*CASSink, error) {
	store, err := localfs.New(filepath.Join(dir, "objects"))
	if err != nil {
		return nil, err
	}
	return OpenCAS(store, filepath.Join(dir, "HEAD"))
}

func readHead(path string) ([]cid.Cid, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var head []cid.Cid
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		id, err := cid.Decode(line)
		if err != nil {
			return nil, fmt.Errorf("%s: entry %d: %w", path, len(head)+1, err)
		}
		head = append(head, id)
	}
	return head, sc.Err()
}

func (s *CASSink) Append(rec model.ChangeRecord) error {
	b, err := Encode(rec)
	if err != nil {
		return err
	}
	id, err := s.cas.Put(b)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f != nil {
		if _, err := s.f.WriteString(id.String() + "\n"); err != nil {
			return err
		}
		if err := s.f.Sync(); err != nil {
			return err
		}
	}
	s.head = append(s.head, id)
	return nil
}

// Head returns the CIDs of the stored records in order.
func (s *CASSink) Head() []cid.Cid {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]cid.Cid(nil), s.head...)
}

func (s *CASSink) Load() ([]model.ChangeRecord, error) {
	head := s.Head()
	out := make([]model.ChangeRecord, 0, len(head))
	for _, id := range head {
		b, err := s.cas.Get(id)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", id, err)
		}
		rec, err := Decode(b)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", id, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *CASSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
