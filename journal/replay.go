package journal

import (
	"fmt"

	"xdao.co/oeuvre/registry"
)

// Replay loads src and restores it into a new registry built with opts. The
// result is checked with Verify before it is returned.
func Replay(src Source, opts ...registry.Option) (*registry.Registry, error) {
	recs, err := src.Load()
	if err != nil {
		return nil, fmt.Errorf("load journal: %w", err)
	}
	r := registry.New(opts...)
	if err := r.Restore(recs); err != nil {
		return nil, err
	}
	if err := r.Verify(); err != nil {
		return nil, err
	}
	return r, nil
}
