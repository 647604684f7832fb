package content

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/eringen/storefront/poll"
)

// AssetLocator looks up the public URL of an asset by reference id. ready is
// false while the platform is still processing the asset.
type AssetLocator interface {
	LocateAsset(ctx context.Context, id string) (url string, ready bool, err error)
}

// ResolveObserver receives one call per distinct reference resolution.
type ResolveObserver interface {
	ObserveResolution(outcome string, elapsed time.Duration)
}

// Resolution outcomes reported to ResolveObserver.
const (
	OutcomeResolved  = "resolved"
	OutcomeExhausted = "exhausted"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

type noopResolveObserver struct{}

func (noopResolveObserver) ObserveResolution(string, time.Duration) {}

// ResolverOptions tunes the request-path polling budget. References are
// expected to be materialized already, so the defaults are short.
type ResolverOptions struct {
	Convention  Convention
	MaxAttempts int
	Interval    time.Duration
	Logger      *slog.Logger
	Observer    ResolveObserver
}

// Resolver turns unresolved asset references inside section settings into
// URLs.
type Resolver struct {
	locator     AssetLocator
	convention  Convention
	maxAttempts int
	interval    time.Duration
	logger      *slog.Logger
	observer    ResolveObserver
}

// NewResolver returns a Resolver polling locator. Zero options fall back to
// DefaultConvention and the request-path budget.
func NewResolver(locator AssetLocator, opts ResolverOptions) *Resolver {
	if opts.Convention.Prefix == "" && len(opts.Convention.Pairs) == 0 {
		opts.Convention = DefaultConvention()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 4
	}
	if opts.Interval <= 0 {
		opts.Interval = 250 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Observer == nil {
		opts.Observer = noopResolveObserver{}
	}
	return &Resolver{
		locator:     locator,
		convention:  opts.Convention,
		maxAttempts: opts.MaxAttempts,
		interval:    opts.Interval,
		logger:      opts.Logger,
		observer:    opts.Observer,
	}
}

// Pending is an actionable reference: the target leaf at Path inside
// Sections[Section].Settings should receive the URL of Reference.
type Pending struct {
	Section   int
	Path      Path
	Reference string
}

// Pending walks every section's settings, through nested objects and arrays,
// and returns the actionable references in document order.
func (r *Resolver) Pending(doc PageContent) []Pending {
	var out []Pending
	for i, section := range doc.Sections {
		if section.Settings == nil {
			continue
		}
		ObjectValue(section.Settings).Walk(func(path Path, v Value) {
			obj, ok := v.AsObject()
			if !ok {
				return
			}
			for _, f := range r.convention.pending(obj) {
				out = append(out, Pending{
					Section:   i,
					Path:      path.Append(Key(f.target)),
					Reference: f.reference,
				})
			}
		})
	}
	return out
}

// Resolve returns doc with every resolvable reference target filled in. doc
// is never modified. References that cannot be resolved within the attempt
// budget are logged and left as they are; Resolve itself never fails. When
// nothing is actionable doc is returned as is.
func (r *Resolver) Resolve(ctx context.Context, doc PageContent) PageContent {
	if r == nil || r.locator == nil {
		return doc
	}
	pending := r.Pending(doc)
	if len(pending) == 0 {
		return doc
	}

	var ids []string
	seen := make(map[string]struct{}, len(pending))
	for _, p := range pending {
		if _, ok := seen[p.Reference]; ok {
			continue
		}
		seen[p.Reference] = struct{}{}
		ids = append(ids, p.Reference)
	}

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		urls = make(map[string]string, len(ids))
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if url, ok := r.resolveOne(ctx, id); ok {
				mu.Lock()
				urls[id] = url
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()

	if len(urls) == 0 {
		return doc
	}
	out := doc.Clone()
	for _, p := range pending {
		url, ok := urls[p.Reference]
		if !ok {
			continue
		}
		if p.Section >= len(out.Sections) || !out.Sections[p.Section].Settings.SetPath(p.Path, StringValue(url)) {
			r.logger.Debug("skipping unaddressable reference target",
				"section", p.Section, "path", p.Path.String(), "reference", p.Reference)
		}
	}
	return out
}

func (r *Resolver) resolveOne(ctx context.Context, id string) (string, bool) {
	start := time.Now()
	url, err := poll.Until(ctx, r.maxAttempts, r.interval, func(ctx context.Context) (string, bool, error) {
		url, ready, err := r.locator.LocateAsset(ctx, id)
		if err != nil {
			return "", false, err
		}
		return url, ready && url != "", nil
	})
	elapsed := time.Since(start)
	switch {
	case err == nil:
		r.observer.ObserveResolution(OutcomeResolved, elapsed)
		return url, true
	case errors.Is(err, poll.ErrExhausted):
		r.observer.ObserveResolution(OutcomeExhausted, elapsed)
		r.logger.Warn("asset reference not ready", "reference", id, "attempts", r.maxAttempts)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		r.observer.ObserveResolution(OutcomeCancelled, elapsed)
		r.logger.Warn("asset reference resolution cancelled", "reference", id, "error", err)
	default:
		r.observer.ObserveResolution(OutcomeFailed, elapsed)
		r.logger.Warn("asset reference resolution failed", "reference", id, "error", err)
	}
	return "", false
}
