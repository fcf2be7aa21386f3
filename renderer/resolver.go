package renderer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"xdao.co/oeuvre/registry"
)

const DefaultTTL = time.Minute

// Source answers metadata resolution questions. *registry.Registry satisfies
// it through Local; rpc.Client satisfies it directly.
type Source interface {
	Resolve(ctx context.Context, id uint64) (registry.Resolution, error)
}

// Local adapts an in-process registry to Source.
func Local(r *registry.Registry) Source { return localSource{r} }

type localSource struct{ r *registry.Registry }

func (l localSource) Resolve(_ context.Context, id uint64) (registry.Resolution, error) {
	return l.r.Resolve(id)
}

// Result is a resolution with the delegate followed.
type Result struct {
	registry.Resolution
	// Rendered is the pointer the renderer returned, when one was consulted.
	Rendered string
	// Cached is set when Rendered came from the cache.
	Cached bool
	// Fallback is set when the renderer failed and the stored pointer is
	// returned instead.
	Fallback bool
	Err      error
}

// Effective is the pointer a caller should use.
func (r Result) Effective() string {
	if r.Delegated && !r.Fallback {
		return r.Rendered
	}
	return r.Pointer
}

// Resolver asks Source where metadata lives and follows delegates through
// Directory. Renderer answers are cached for TTL per (delegate, id).
type Resolver struct {
	source          Source
	dir             *Directory
	cache           *gocache.Cache
	ttl             time.Duration
	fallbackOnError bool
	logger          *slog.Logger
}

type ResolverOption func(*Resolver)

// WithTTL sets how long renderer answers are reused. Zero disables caching.
func WithTTL(d time.Duration) ResolverOption { return func(r *Resolver) { r.ttl = d } }

// FallbackOnError returns the stored pointer when the renderer fails.
func FallbackOnError() ResolverOption { return func(r *Resolver) { r.fallbackOnError = true } }

func WithLogger(l *slog.Logger) ResolverOption { return func(r *Resolver) { r.logger = l } }

func NewResolver(source Source, dir *Directory, opts ...ResolverOption) *Resolver {
	r := &Resolver{source: source, dir: dir, ttl: DefaultTTL}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.dir == nil {
		r.dir = NewDirectory()
	}
	if r.logger == nil {
		r.logger = slog.New(slog.DiscardHandler)
	}
	if r.ttl > 0 {
		r.cache = gocache.New(r.ttl, 2*r.ttl)
	}
	return r
}

// Resolve returns the stored pointer, or, if the entry is delegated, the
// renderer's answer.
func (r *Resolver) Resolve(ctx context.Context, id uint64) (Result, error) {
	res, err := r.source.Resolve(ctx, id)
	if err != nil {
		return Result{}, err
	}
	out := Result{Resolution: res}
	if !res.Delegated {
		return out, nil
	}

	key := fmt.Sprintf("%s\x00%d", res.Delegate, id)
	if r.cache != nil {
		if v, ok := r.cache.Get(key); ok {
			if s, ok := v.(string); ok {
				out.Rendered = s
				out.Cached = true
				return out, nil
			}
		}
	}

	rendered, err := r.render(ctx, res.Delegate, id)
	if err != nil {
		if !r.fallbackOnError {
			return Result{}, err
		}
		r.logger.Warn("renderer failed, using stored pointer", "id", id, "delegate", res.Delegate, "err", err)
		out.Fallback = true
		out.Err = err
		return out, nil
	}
	if r.cache != nil {
		r.cache.Set(key, rendered, gocache.DefaultExpiration)
	}
	out.Rendered = rendered
	return out, nil
}

func (r *Resolver) render(ctx context.Context, ref string, id uint64) (string, error) {
	rd, ok := r.dir.Lookup(ref)
	if !ok {
		return "", fmt.Errorf("%w %q", ErrNoRenderer, ref)
	}
	s, err := rd.Render(ctx, ref, id)
	if err != nil {
		return "", fmt.Errorf("render entry %d via %q: %w", id, ref, err)
	}
	if s == "" || len(s) > registry.MaxPayloadBytes {
		return "", fmt.Errorf("render entry %d via %q: pointer of %d bytes is out of bounds", id, ref, len(s))
	}
	return s, nil
}

// Forget drops cached answers for id under delegate ref.
func (r *Resolver) Forget(ref string, id uint64) {
	if r.cache != nil {
		r.cache.Delete(fmt.Sprintf("%s\x00%d", ref, id))
	}
}
