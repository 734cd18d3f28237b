package jsx

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sitter "github.com/alexaandru/go-tree-sitter-bare"
)

// Sentinel errors for parser operations.
var (
	// ErrParse reports a source that could not be parsed cleanly.
	ErrParse = errors.New("parse error")

	errGrammarNotAvailable = errors.New("grammar not available")
	errPoolType            = errors.New("unexpected parser pool entry")
	errNoRootNode          = errors.New("no root node")
)

// File is a parsed source file.
type File struct {
	Path    string
	Grammar string
	Source  []byte
	Root    Node
	// Errors lists the spans of syntax error nodes. A file with errors is
	// still returned by Parse alongside an ErrParse-wrapped error.
	Errors []Span
}

// Text returns the source text covered by n.
func (f *File) Text(n Node) string {
	if n == nil {
		return ""
	}

	return f.slice(n.Span())
}

func (f *File) slice(s Span) string {
	if s.Start < 0 || s.End > len(f.Source) || s.Start > s.End {
		return ""
	}

	return string(f.Source[s.Start:s.End])
}

// Parser parses JSX-bearing sources. It is safe for concurrent use; each
// grammar keeps a pool of tree-sitter parsers.
type Parser struct {
	pools sync.Map // grammar name -> *sync.Pool
}

// NewParser creates a Parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse parses src, choosing the grammar from path. When the tree contains
// syntax errors the partially converted File is returned together with an
// error wrapping ErrParse.
func (p *Parser) Parse(ctx context.Context, path string, src []byte) (*File, error) {
	grammar := GrammarFor(path)

	pool, err := p.pool(grammar)
	if err != nil {
		return nil, err
	}

	tsParser, ok := pool.Get().(*sitter.Parser)
	if !ok {
		return nil, errPoolType
	}

	defer pool.Put(tsParser)

	tree, err := tsParser.ParseString(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrParse, path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.IsNull() {
		return nil, fmt.Errorf("%w: %s: %w", ErrParse, path, errNoRootNode)
	}

	conv := &converter{src: src}
	file := &File{
		Path:    path,
		Grammar: grammar,
		Source:  src,
		Root:    conv.convert(root),
	}

	conv.collectErrors(root)
	file.Errors = conv.errs

	if len(file.Errors) > 0 {
		first := file.Errors[0]

		return file, fmt.Errorf("%w: %s: %d syntax error(s), first at byte %d",
			ErrParse, path, len(file.Errors), first.Start)
	}

	return file, nil
}

func (p *Parser) pool(grammar string) (*sync.Pool, error) {
	if cached, ok := p.pools.Load(grammar); ok {
		pool, castOK := cached.(*sync.Pool)
		if castOK {
			return pool, nil
		}
	}

	lang := language(grammar)
	if lang == nil {
		return nil, fmt.Errorf("%w: %s", errGrammarNotAvailable, grammar)
	}

	pool := &sync.Pool{
		New: func() any {
			tsParser := sitter.NewParser()
			tsParser.SetLanguage(lang)

			return tsParser
		},
	}

	actual, _ := p.pools.LoadOrStore(grammar, pool)

	stored, ok := actual.(*sync.Pool)
	if !ok {
		return nil, errPoolType
	}

	return stored, nil
}
