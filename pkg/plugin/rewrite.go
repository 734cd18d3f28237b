package plugin

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/descinject/pkg/editor"
	"github.com/Sumatoshi-tech/descinject/pkg/jsx"
	"github.com/Sumatoshi-tech/descinject/pkg/observability"
)

// Transform outcomes recorded in metrics.
const (
	outcomeSkipped   = "skipped"
	outcomeCacheMiss = "cache_miss"
	outcomeFailed    = "failed"
	outcomeUnchanged = "unchanged"
	outcomeRewritten = "rewritten"
)

// Output is rewritten code with a source map back to the transform input.
type Output struct {
	Code string
	Map  *editor.SourceMap
	// Calls is the number of factory calls whose props were edited.
	Calls int
}

// Transform is the transform hook. It injects the cached verdict for id
// into every lowered container call of code. A nil Output means no
// transform applies: the file is filtered out, discovery has not run,
// the code does not parse, or every call already carries the verdict.
// Analysis problems are logged and never returned.
func (p *Plugin) Transform(ctx context.Context, code, id string) *Output {
	start := time.Now()
	path := CanonicalPath(id)

	if !p.filter.Match(path) {
		p.metrics.RecordHook(ctx, observability.HookTransform, outcomeSkipped, time.Since(start))

		return nil
	}

	ctx = observability.WithHook(ctx, observability.HookTransform, path)

	ctx, span := p.tracer.Start(ctx, "descinject.transform",
		trace.WithAttributes(attribute.String("file.path", path)))
	defer span.End()

	done := p.metrics.TrackInflight(ctx, observability.HookTransform)
	defer done()

	out, outcome := p.transform(ctx, code, path)

	span.SetAttributes(attribute.String("transform.outcome", outcome))
	p.metrics.RecordHook(ctx, observability.HookTransform, outcome, time.Since(start))

	return out
}

func (p *Plugin) transform(ctx context.Context, code, path string) (*Output, string) {
	value, err := p.Verdict(path)
	if err != nil {
		p.metrics.CacheMiss(ctx)
		p.logger.WarnContext(ctx, "transform before discovery, flag not injected", "path", path, "error", err)

		return nil, outcomeCacheMiss
	}

	out, err := p.Rewrite(ctx, path, code, value)
	if err != nil {
		p.logger.WarnContext(ctx, "rewrite failed", "path", path, "error", err)

		return nil, outcomeFailed
	}

	if out == nil {
		return nil, outcomeUnchanged
	}

	p.metrics.RewrittenCalls(ctx, out.Calls)
	p.logger.DebugContext(ctx, "flag injected", "path", path, "verdict", value, "calls", out.Calls)

	return out, outcomeRewritten
}

// Rewrite sets the flag property of every container factory call in code
// to value. It returns nil when no call needed an edit, and an error
// wrapping jsx.ErrParse when code does not parse.
func (p *Plugin) Rewrite(ctx context.Context, path, code string, value bool) (*Output, error) {
	file, err := p.parser.Parse(ctx, path, []byte(code))
	if err != nil {
		return nil, err
	}

	ed := editor.New(code)
	literal := strconv.FormatBool(value)
	calls := 0

	var editErr error

	jsx.Walk(file.Root, jsx.VisitorFuncs{EnterFunc: func(n jsx.Node) jsx.Action {
		call, ok := n.(*jsx.Call)
		if !ok {
			return jsx.Continue
		}

		props, ok := p.containerProps(call)
		if !ok {
			return jsx.Continue
		}

		edited, err := p.setFlag(file, ed, props, literal)
		if err != nil {
			editErr = err

			return jsx.Stop
		}

		if edited {
			calls++
		}

		return jsx.Continue
	}})

	if editErr != nil {
		return nil, editErr
	}

	if calls == 0 {
		return nil, nil //nolint:nilnil // nil output means no transform.
	}

	rendered, err := ed.Render(path)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", path, err)
	}

	return &Output{Code: rendered.Code, Map: rendered.Map, Calls: calls}, nil
}

// containerProps returns the props object of a `factory(Container, {...})`
// call. Anything else is a structural mismatch and reports false.
func (p *Plugin) containerProps(call *jsx.Call) (*jsx.Object, bool) {
	if _, ok := p.factories[normalizeFactory(calleeName(call.Callee))]; !ok {
		return nil, false
	}

	if len(call.Args) < 2 {
		return nil, false
	}

	name, ok := jsx.DottedName(call.Args[0])
	if !ok || name != p.cfg.ContainerName {
		return nil, false
	}

	props, ok := call.Args[1].(*jsx.Object)

	return props, ok
}

// setFlag edits props so the flag property holds literal. It reports
// whether an edit was queued.
func (p *Plugin) setFlag(file *jsx.File, ed *editor.Editor, props *jsx.Object, literal string) (bool, error) {
	edited := false

	for _, prop := range props.Props {
		if prop.Spread || prop.Computed || prop.Method || prop.Key != p.cfg.FlagKey {
			continue
		}

		if prop.Shorthand {
			err := ed.Replace(prop.Span.Start, prop.Span.End, p.flagKey+": "+literal)
			if err != nil {
				return false, fmt.Errorf("replace shorthand flag: %w", err)
			}

			edited = true

			continue
		}

		if prop.Value == nil || file.Text(prop.Value) == literal {
			continue
		}

		valueSpan := prop.Value.Span()

		err := ed.Replace(valueSpan.Start, valueSpan.End, literal)
		if err != nil {
			return false, fmt.Errorf("replace flag value: %w", err)
		}

		edited = true
	}

	if edited || hasFlag(props, p.cfg.FlagKey) {
		return edited, nil
	}

	var err error

	if n := len(props.Props); n > 0 {
		err = ed.Insert(props.Props[n-1].End, ", "+p.flagKey+": "+literal)
	} else {
		err = ed.Insert(props.Span().Start+1, p.flagKey+": "+literal)
	}

	if err != nil {
		return false, fmt.Errorf("insert flag: %w", err)
	}

	return true, nil
}

func hasFlag(props *jsx.Object, key string) bool {
	for _, prop := range props.Props {
		if !prop.Spread && !prop.Computed && !prop.Method && prop.Key == key {
			return true
		}
	}

	return false
}

// calleeName returns the name a call is made through: an identifier, the
// property of a member access, or the last operand of a parenthesized
// sequence such as `(0, _runtime.jsx)`.
func calleeName(n jsx.Node) string {
	switch v := n.(type) {
	case *jsx.Ident:
		return v.Name
	case *jsx.Member:
		return v.Property
	case *jsx.Other:
		if v.Type != "parenthesized_expression" && v.Type != "sequence_expression" {
			return ""
		}

		kids := v.Children()
		if len(kids) == 0 {
			return ""
		}

		return calleeName(kids[len(kids)-1])
	default:
		return ""
	}
}
