package plugin

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/descinject/pkg/analysis"
	"github.com/Sumatoshi-tech/descinject/pkg/jsx"
	"github.com/Sumatoshi-tech/descinject/pkg/observability"
	"github.com/Sumatoshi-tech/descinject/pkg/verdict"
)

// Discovery is the full outcome of analysing one source file.
type Discovery struct {
	Path string `json:"path"`
	// Verdict is FoundDirectly || Indirect.
	Verdict bool `json:"verdict"`
	// ImportsPackage is false when the package gate short-circuited analysis.
	ImportsPackage bool                  `json:"imports_package"`
	FoundDirectly  bool                  `json:"found_directly"`
	Indirect       bool                  `json:"indirect"`
	Containers     int                   `json:"containers"`
	Candidates     []*analysis.Candidate `json:"candidates,omitempty"`
	// Descriptors describe the candidates, in the same order.
	Descriptors []jsx.Descriptor `json:"descriptors,omitempty"`
	Digest      uint64           `json:"digest"`
}

// Load is the load hook. It analyses the file behind id and caches the
// verdict under the canonical path. It never returns content; failures are
// logged and leave the cache untouched.
func (p *Plugin) Load(ctx context.Context, id string) State {
	start := time.Now()
	path := CanonicalPath(id)

	if !p.filter.Match(path) {
		p.metrics.RecordHook(ctx, observability.HookLoad, string(StateSkipped), time.Since(start))

		return StateSkipped
	}

	ctx = observability.WithHook(ctx, observability.HookLoad, path)

	ctx, span := p.tracer.Start(ctx, "descinject.load",
		trace.WithAttributes(attribute.String("file.path", path)))
	defer span.End()

	done := p.metrics.TrackInflight(ctx, observability.HookLoad)
	defer done()

	state := p.load(ctx, path)

	span.SetAttributes(attribute.String("load.state", string(state)))
	p.metrics.RecordHook(ctx, observability.HookLoad, string(state), time.Since(start))

	return state
}

func (p *Plugin) load(ctx context.Context, path string) State {
	src, err := p.readFile(path)
	if err != nil {
		p.logger.WarnContext(ctx, "read source failed", "path", path, "error", err)

		return StateFailed
	}

	disc, err := p.Discover(ctx, path, src)
	if err != nil {
		p.logger.WarnContext(ctx, "discovery failed", "path", path, "error", err)

		return StateFailed
	}

	p.store.Put(path, verdict.Entry{Verdict: disc.Verdict, Digest: disc.Digest})

	p.logger.DebugContext(ctx, "verdict cached",
		"path", path, "verdict", disc.Verdict, "direct", disc.FoundDirectly, "candidates", len(disc.Candidates))

	return StateCached
}

// Discover analyses src as the contents of path without touching the
// cache. Parse failures are returned wrapping jsx.ErrParse; a cancelled
// context is returned as is. Candidate failures never surface here.
func (p *Plugin) Discover(ctx context.Context, path string, src []byte) (*Discovery, error) {
	ctx, span := p.tracer.Start(ctx, "descinject.discover")
	defer span.End()

	disc := &Discovery{Path: path, Digest: verdict.Digest(src)}

	file, err := p.parser.Parse(ctx, path, src)
	if err != nil {
		span.SetStatus(codes.Error, "parse failed")

		return nil, err
	}

	disc.ImportsPackage = p.cfg.PackageSpecifier == "" ||
		analysis.ImportsPackage(file.Root, p.cfg.PackageSpecifier)
	if !disc.ImportsPackage {
		return disc, nil
	}

	result := analysis.Search(file.Root, p.cfg.ContainerName, p.cfg.MarkerName)
	disc.FoundDirectly = result.FoundDirectly
	disc.Containers = result.Containers
	disc.Candidates = result.Candidates

	analysis.BindImports(file.Root, disc.Candidates)

	disc.Indirect, err = p.indirect.Resolve(ctx, disc.Candidates, path)
	if err != nil {
		span.SetStatus(codes.Error, "candidate resolution aborted")

		return nil, err
	}

	disc.Verdict = disc.FoundDirectly || disc.Indirect

	for _, c := range disc.Candidates {
		desc, _ := file.Describe(c.Node)
		disc.Descriptors = append(disc.Descriptors, desc)

		if p.cfg.Debug {
			p.logger.DebugContext(ctx, "candidate",
				"path", path, "descriptor", desc, "source", c.ImportSource,
				"resolved", c.ResolvedPath, "provides_marker", c.ProvidesMarker)
		}
	}

	span.SetAttributes(
		attribute.Bool("discover.verdict", disc.Verdict),
		attribute.Int("discover.candidates", len(disc.Candidates)),
	)

	return disc, nil
}
