// Package plugin implements the two build hooks: discovery on load, which
// decides whether each container's description marker is rendered and
// caches the verdict, and rewriting on transform, which injects that
// verdict into the lowered container calls.
package plugin

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/descinject/pkg/analysis"
	"github.com/Sumatoshi-tech/descinject/pkg/config"
	"github.com/Sumatoshi-tech/descinject/pkg/jsx"
	"github.com/Sumatoshi-tech/descinject/pkg/observability"
	"github.com/Sumatoshi-tech/descinject/pkg/verdict"
)

// Sentinel errors.
var (
	// ErrCacheMiss reports a transform for a file discovery never analysed.
	ErrCacheMiss = errors.New("no discovery verdict cached")

	errNoResolver = errors.New("plugin requires a module resolver")
)

// State is the outcome of a load hook.
type State string

// Load hook outcomes.
const (
	// StateSkipped means the file failed the path gate; the cache is untouched.
	StateSkipped State = "skipped"
	// StateFailed means the file could not be read or parsed; the cache is untouched.
	StateFailed State = "failed"
	// StateCached means a verdict was written.
	StateCached State = "cached"
)

// Deps are the collaborators a Plugin is built from.
type Deps struct {
	// Resolver resolves candidate imports. Required.
	Resolver analysis.Resolver
	// Store holds verdicts between the hooks. Nil creates a private MemoryStore.
	Store verdict.Store
	// Parser is shared with the indirect resolver. Nil creates one.
	Parser *jsx.Parser
	// ReadFile loads sources. Nil uses os.ReadFile.
	ReadFile func(path string) ([]byte, error)
	Logger   *slog.Logger
	Tracer   trace.Tracer
	Metrics  *observability.PluginMetrics
}

// Plugin runs discovery and rewriting with one configuration.
type Plugin struct {
	cfg       config.PluginConfig
	filter    Filter
	factories map[string]struct{}
	flagKey   string

	store    verdict.Store
	parser   *jsx.Parser
	indirect *analysis.IndirectResolver
	readFile func(path string) ([]byte, error)
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *observability.PluginMetrics
}

// New creates a Plugin.
func New(cfg config.PluginConfig, deps Deps) (*Plugin, error) {
	if deps.Resolver == nil {
		return nil, errNoResolver
	}

	if deps.Store == nil {
		deps.Store = verdict.NewMemoryStore()
	}

	if deps.Parser == nil {
		deps.Parser = jsx.NewParser()
	}

	if deps.ReadFile == nil {
		deps.ReadFile = os.ReadFile
	}

	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	if deps.Tracer == nil {
		deps.Tracer = nooptrace.NewTracerProvider().Tracer("")
	}

	p := &Plugin{
		cfg:       cfg,
		filter:    NewFilter(cfg.IncludePrefix, cfg.IncludeSuffixes),
		factories: make(map[string]struct{}, len(cfg.FactoryNames)),
		flagKey:   propertyKey(cfg.FlagKey),
		store:     deps.Store,
		parser:    deps.Parser,
		readFile:  deps.ReadFile,
		logger:    deps.Logger,
		tracer:    deps.Tracer,
		metrics:   deps.Metrics,
	}

	for _, name := range cfg.FactoryNames {
		p.factories[normalizeFactory(name)] = struct{}{}
	}

	indirect, err := analysis.NewIndirectResolver(analysis.IndirectConfig{
		Resolver:    deps.Resolver,
		Parser:      deps.Parser,
		Marker:      cfg.MarkerName,
		ReadFile:    deps.ReadFile,
		Logger:      deps.Logger,
		Parallelism: cfg.Parallelism,
		CacheSize:   cfg.ProviderCacheSize,
		OnMiss:      deps.Metrics.ResolutionMiss,
	})
	if err != nil {
		return nil, fmt.Errorf("create indirect resolver: %w", err)
	}

	p.indirect = indirect

	return p, nil
}

// Filter returns the path gate both hooks apply.
func (p *Plugin) Filter() Filter {
	return p.filter
}

// Store returns the verdict store shared by the hooks.
func (p *Plugin) Store() verdict.Store {
	return p.store
}

// Config returns the plugin configuration.
func (p *Plugin) Config() config.PluginConfig {
	return p.cfg
}

// Verdict returns the cached verdict for id, or an error wrapping
// ErrCacheMiss when discovery has not run for it.
func (p *Plugin) Verdict(id string) (bool, error) {
	path := CanonicalPath(id)

	entry, ok := p.store.Get(path)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrCacheMiss, path)
	}

	return entry.Verdict, nil
}

// normalizeFactory drops the underscore and dollar prefixes compilers add
// when they import runtime helpers (`_$createComponent`, `_jsx`).
func normalizeFactory(name string) string {
	return strings.TrimLeft(name, "_$")
}

// propertyKey renders key as an object literal key, quoting it unless it is
// a plain identifier.
func propertyKey(key string) string {
	for i, r := range key {
		ident := r == '_' || r == '$' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(i > 0 && r >= '0' && r <= '9')
		if !ident {
			return fmt.Sprintf("%q", key)
		}
	}

	return key
}
