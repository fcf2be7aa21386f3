// Package renderer follows "delegate to X" answers from the registry.
//
// The registry only says where metadata lives. When an entry has an enabled
// renderer delegate and its window is open, a caller may ask that external
// renderer for the live pointer. That call happens here, outside the
// registry and outside any of its locks.
package renderer

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

// ErrNoRenderer is returned when no renderer is registered for a delegate ref.
var ErrNoRenderer = errors.New("renderer: no renderer for delegate")

// Renderer produces the current metadata pointer for an entry.
type Renderer interface {
	Render(ctx context.Context, ref string, id uint64) (string, error)
}

// Func adapts a function to Renderer.
type Func func(ctx context.Context, ref string, id uint64) (string, error)

func (f Func) Render(ctx context.Context, ref string, id uint64) (string, error) {
	return f(ctx, ref, id)
}

// Directory maps delegate refs to renderers by longest matching prefix.
type Directory struct {
	mu       sync.RWMutex
	prefixes []string
	byPrefix map[string]Renderer
}

func NewDirectory() *Directory {
	return &Directory{byPrefix: make(map[string]Renderer)}
}

// Register routes refs starting with prefix to r. An empty prefix matches
// every ref. Registering a prefix again replaces its renderer.
func (d *Directory) Register(prefix string, r Renderer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byPrefix[prefix]; !ok {
		d.prefixes = append(d.prefixes, prefix)
		sort.Slice(d.prefixes, func(i, j int) bool { return len(d.prefixes[i]) > len(d.prefixes[j]) })
	}
	d.byPrefix[prefix] = r
}

// Lookup returns the renderer for ref.
func (d *Directory) Lookup(ref string) (Renderer, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, p := range d.prefixes {
		if strings.HasPrefix(ref, p) {
			return d.byPrefix[p], true
		}
	}
	return nil, false
}
