package editor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"unicode/utf16"
)

const (
	sourceMapVersion = 3
	vlqBaseShift     = 5
	vlqBaseMask      = 1<<vlqBaseShift - 1
	vlqContinuation  = 1 << vlqBaseShift
	base64Alphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"
	dataURLPrefix    = "data:application/json;charset=utf-8;base64,"
)

// SourceMap is a revision 3 source map with a single source.
type SourceMap struct {
	Version        int      `json:"version"`
	File           string   `json:"file,omitempty"`
	Sources        []string `json:"sources"`
	SourcesContent []string `json:"sourcesContent,omitempty"`
	Names          []string `json:"names"`
	Mappings       string   `json:"mappings"`
}

// JSON encodes the map.
func (m *SourceMap) JSON() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode source map: %w", err)
	}

	return data, nil
}

// DataURL encodes the map as an inline base64 data URL.
func (m *SourceMap) DataURL() (string, error) {
	data, err := m.JSON()
	if err != nil {
		return "", err
	}

	return dataURLPrefix + base64.StdEncoding.EncodeToString(data), nil
}

type segment struct {
	genLine  int
	genCol   int
	origLine int
	origCol  int
}

// mapBuilder tracks generated positions while the editor writes output and
// records a segment at every point where original text resumes or a
// replacement starts. Columns are counted in UTF-16 code units.
type mapBuilder struct {
	source     string
	lineStarts []int
	genLine    int
	genCol     int
	segments   []segment
}

func newMapBuilder(source string) *mapBuilder {
	starts := []int{0}

	for i := range len(source) {
		if source[i] == '\n' {
			starts = append(starts, i+1)
		}
	}

	return &mapBuilder{source: source, lineStarts: starts}
}

func (b *mapBuilder) copyOriginal(out *strings.Builder, from, to int) {
	if from >= to {
		return
	}

	text := b.source[from:to]
	out.WriteString(text)
	b.mark(from)

	for i, r := range text {
		if r != '\n' {
			b.genCol += runeWidth(r)

			continue
		}

		b.genLine++
		b.genCol = 0

		if next := from + i + 1; next < to {
			b.mark(next)
		}
	}
}

func (b *mapBuilder) writeReplacement(out *strings.Builder, origOffset int, text string) {
	if text == "" {
		return
	}

	out.WriteString(text)
	b.mark(origOffset)

	for _, r := range text {
		if r == '\n' {
			b.genLine++
			b.genCol = 0

			continue
		}

		b.genCol += runeWidth(r)
	}
}

func (b *mapBuilder) mark(origOffset int) {
	line, col := b.originalPosition(origOffset)
	seg := segment{genLine: b.genLine, genCol: b.genCol, origLine: line, origCol: col}

	if n := len(b.segments); n > 0 {
		last := b.segments[n-1]
		if last.genLine == seg.genLine && last.genCol == seg.genCol {
			b.segments[n-1] = seg

			return
		}
	}

	b.segments = append(b.segments, seg)
}

func (b *mapBuilder) originalPosition(offset int) (line, col int) {
	idx, found := slices.BinarySearch(b.lineStarts, offset)
	if !found {
		idx--
	}

	lineStart := b.lineStarts[idx]

	for _, r := range b.source[lineStart:offset] {
		col += runeWidth(r)
	}

	return idx, col
}

func (b *mapBuilder) build(sourceName string) *SourceMap {
	var mappings strings.Builder

	line, prevGenCol, prevOrigLine, prevOrigCol := 0, 0, 0, 0
	firstInLine := true

	for _, seg := range b.segments {
		for line < seg.genLine {
			mappings.WriteByte(';')

			line++
			prevGenCol = 0
			firstInLine = true
		}

		if !firstInLine {
			mappings.WriteByte(',')
		}

		writeVLQ(&mappings, seg.genCol-prevGenCol)
		writeVLQ(&mappings, 0)
		writeVLQ(&mappings, seg.origLine-prevOrigLine)
		writeVLQ(&mappings, seg.origCol-prevOrigCol)

		prevGenCol, prevOrigLine, prevOrigCol = seg.genCol, seg.origLine, seg.origCol
		firstInLine = false
	}

	return &SourceMap{
		Version:        sourceMapVersion,
		File:           sourceName,
		Sources:        []string{sourceName},
		SourcesContent: []string{b.source},
		Names:          []string{},
		Mappings:       mappings.String(),
	}
}

func writeVLQ(out *strings.Builder, value int) {
	vlq := value << 1
	if value < 0 {
		vlq = (-value)<<1 | 1
	}

	for {
		digit := vlq & vlqBaseMask
		vlq >>= vlqBaseShift

		if vlq > 0 {
			digit |= vlqContinuation
		}

		out.WriteByte(base64Alphabet[digit])

		if vlq == 0 {
			return
		}
	}
}

func runeWidth(r rune) int {
	return max(utf16.RuneLen(r), 1)
}
