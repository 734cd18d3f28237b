package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Sumatoshi-tech/descinject/pkg/jsx"
	"github.com/Sumatoshi-tech/descinject/pkg/verdict"
)

// DefaultProviderCacheSize is the number of resolved modules whose marker
// verdict is memoised.
const DefaultProviderCacheSize = 512

// ErrResolutionMiss reports an import specifier the host could not resolve.
var ErrResolutionMiss = errors.New("import not resolved")

// Resolver resolves a module specifier relative to an importing file, the
// way the host build tool would. found is false when the specifier does not
// resolve; err is reserved for resolver failures.
type Resolver interface {
	Resolve(ctx context.Context, specifier, importer string) (path string, found bool, err error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, specifier, importer string) (string, bool, error)

// Resolve implements Resolver.
func (f ResolverFunc) Resolve(ctx context.Context, specifier, importer string) (string, bool, error) {
	return f(ctx, specifier, importer)
}

// IndirectConfig configures an IndirectResolver.
type IndirectConfig struct {
	Resolver Resolver
	Parser   *jsx.Parser
	Marker   string
	// ReadFile loads resolved modules. Nil uses os.ReadFile.
	ReadFile func(path string) ([]byte, error)
	// Logger receives per-candidate diagnostics. Nil uses slog.Default().
	Logger *slog.Logger
	// Parallelism bounds concurrent candidate resolution. Values below 2
	// resolve sequentially.
	Parallelism int
	// CacheSize bounds the provider memo. Zero uses DefaultProviderCacheSize.
	CacheSize int
	// OnMiss, when set, is called for every unresolved candidate.
	OnMiss func(ctx context.Context)
}

type providerEntry struct {
	digest   uint64
	provides bool
}

// IndirectResolver decides whether imported wrapper components render the
// marker somewhere in their module.
type IndirectResolver struct {
	cfg       IndirectConfig
	providers *lru.Cache[string, providerEntry]
}

// NewIndirectResolver creates an IndirectResolver.
func NewIndirectResolver(cfg IndirectConfig) (*IndirectResolver, error) {
	if cfg.ReadFile == nil {
		cfg.ReadFile = os.ReadFile
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if cfg.Parser == nil {
		cfg.Parser = jsx.NewParser()
	}

	size := cfg.CacheSize
	if size <= 0 {
		size = DefaultProviderCacheSize
	}

	providers, err := lru.New[string, providerEntry](size)
	if err != nil {
		return nil, fmt.Errorf("create provider cache: %w", err)
	}

	return &IndirectResolver{cfg: cfg, providers: providers}, nil
}

// Resolve resolves every candidate that has an import source, sets its
// ResolvedPath and ProvidesMarker, and reports whether any of them provides
// the marker. A failing candidate is logged and counts as not providing the
// marker; it never affects its siblings. The only error returned is the
// context's, in which case the result must be discarded.
func (r *IndirectResolver) Resolve(ctx context.Context, candidates []*Candidate, fromFile string) (bool, error) {
	pending := make([]*Candidate, 0, len(candidates))

	for _, c := range candidates {
		if c.ImportSource != "" {
			pending = append(pending, c)
		}
	}

	errs := make([]error, len(pending))

	if r.cfg.Parallelism < 2 || len(pending) < 2 {
		for i, c := range pending {
			errs[i] = r.resolveOne(ctx, c, fromFile)
		}
	} else {
		var group errgroup.Group

		group.SetLimit(r.cfg.Parallelism)

		for i, c := range pending {
			group.Go(func() error {
				errs[i] = r.resolveOne(ctx, c, fromFile)

				return nil
			})
		}

		_ = group.Wait()
	}

	ctxErr := ctx.Err()
	if ctxErr != nil {
		return false, fmt.Errorf("resolve candidates of %s: %w", fromFile, ctxErr)
	}

	provided := false

	for i, c := range pending {
		if errs[i] != nil {
			r.logFailure(ctx, c, fromFile, errs[i])
		}

		provided = provided || c.ProvidesMarker
	}

	return provided, nil
}

func (r *IndirectResolver) resolveOne(ctx context.Context, c *Candidate, fromFile string) error {
	c.ProvidesMarker = false

	ctxErr := ctx.Err()
	if ctxErr != nil {
		return ctxErr
	}

	path, found, err := r.cfg.Resolver.Resolve(ctx, c.ImportSource, fromFile)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", c.ImportSource, err)
	}

	if !found || path == "" {
		if r.cfg.OnMiss != nil {
			r.cfg.OnMiss(ctx)
		}

		return fmt.Errorf("%w: %q from %s", ErrResolutionMiss, c.ImportSource, fromFile)
	}

	c.ResolvedPath = path

	src, err := r.cfg.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	digest := verdict.Digest(src)

	if cached, ok := r.providers.Get(path); ok && cached.digest == digest {
		c.ProvidesMarker = cached.provides

		return nil
	}

	file, err := r.cfg.Parser.Parse(ctx, path, src)
	if err != nil {
		return fmt.Errorf("parse candidate module: %w", err)
	}

	c.ProvidesMarker = SearchUnscoped(file.Root, r.cfg.Marker)
	r.providers.Add(path, providerEntry{digest: digest, provides: c.ProvidesMarker})

	return nil
}

func (r *IndirectResolver) logFailure(ctx context.Context, c *Candidate, fromFile string, err error) {
	attrs := []any{"candidate", c.Name, "source", c.ImportSource, "importer", fromFile, "error", err}

	if errors.Is(err, ErrResolutionMiss) {
		r.cfg.Logger.DebugContext(ctx, "candidate import not resolved", attrs...)

		return
	}

	r.cfg.Logger.WarnContext(ctx, "candidate module skipped", attrs...)
}
