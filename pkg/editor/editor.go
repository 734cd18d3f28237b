// Package editor applies batches of non-overlapping text edits to a source
// string and renders the result together with a source map.
package editor

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Sentinel errors for edit validation.
var (
	// ErrOutOfRange reports an edit outside the source.
	ErrOutOfRange = errors.New("edit out of range")
	// ErrOverlap reports two edits touching the same bytes.
	ErrOverlap = errors.New("overlapping edits")
)

// Edit replaces source bytes [Start, End) with Replacement. Start == End
// inserts.
type Edit struct {
	Start       int
	End         int
	Replacement string
}

// Editor collects edits over an immutable original source.
type Editor struct {
	source string
	edits  []Edit
}

// Rendered is the edited text and a source map from it back to the original.
type Rendered struct {
	Code string
	Map  *SourceMap
}

// New creates an Editor over source.
func New(source string) *Editor {
	return &Editor{source: source}
}

// Add queues an edit. Range errors are reported immediately; overlaps are
// detected by Render because they depend on the whole batch.
func (e *Editor) Add(edit Edit) error {
	if edit.Start < 0 || edit.End > len(e.source) || edit.Start > edit.End {
		return fmt.Errorf("%w: [%d,%d) in %d bytes", ErrOutOfRange, edit.Start, edit.End, len(e.source))
	}

	e.edits = append(e.edits, edit)

	return nil
}

// Replace queues a replacement of [start, end).
func (e *Editor) Replace(start, end int, replacement string) error {
	return e.Add(Edit{Start: start, End: end, Replacement: replacement})
}

// Insert queues an insertion at offset.
func (e *Editor) Insert(offset int, text string) error {
	return e.Add(Edit{Start: offset, End: offset, Replacement: text})
}

// Len returns the number of queued edits.
func (e *Editor) Len() int {
	return len(e.edits)
}

// Render applies all queued edits. sourceName is recorded in the map as the
// single original source.
func (e *Editor) Render(sourceName string) (Rendered, error) {
	edits := slices.Clone(e.edits)
	slices.SortStableFunc(edits, func(a, b Edit) int {
		return cmp.Compare(a.Start, b.Start)
	})

	for i := 1; i < len(edits); i++ {
		prev, cur := edits[i-1], edits[i]
		if cur.Start < prev.End {
			return Rendered{}, fmt.Errorf("%w: [%d,%d) and [%d,%d)",
				ErrOverlap, prev.Start, prev.End, cur.Start, cur.End)
		}
	}

	var out strings.Builder

	out.Grow(len(e.source) + e.growth(edits))

	mapper := newMapBuilder(e.source)
	cursor := 0

	for _, edit := range edits {
		mapper.copyOriginal(&out, cursor, edit.Start)
		mapper.writeReplacement(&out, edit.Start, edit.Replacement)
		cursor = edit.End
	}

	mapper.copyOriginal(&out, cursor, len(e.source))

	return Rendered{
		Code: out.String(),
		Map:  mapper.build(sourceName),
	}, nil
}

func (e *Editor) growth(edits []Edit) int {
	total := 0

	for _, edit := range edits {
		total += len(edit.Replacement) - (edit.End - edit.Start)
	}

	return max(total, 0)
}
