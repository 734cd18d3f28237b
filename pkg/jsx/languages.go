package jsx

import (
	"path/filepath"
	"slices"
	"sync"
	"unsafe"

	sitter "github.com/alexaandru/go-tree-sitter-bare"
	"github.com/src-d/enry/v2"

	"github.com/alexaandru/go-sitter-forest/javascript"
	"github.com/alexaandru/go-sitter-forest/tsx"
	"github.com/alexaandru/go-sitter-forest/typescript"
)

// Grammar names.
const (
	GrammarTSX        = "tsx"
	GrammarTypeScript = "typescript"
	GrammarJavaScript = "javascript"
)

// grammarFuncs maps grammar names to their tree-sitter GetLanguage functions.
var grammarFuncs = map[string]func() unsafe.Pointer{
	GrammarTSX:        tsx.GetLanguage,
	GrammarTypeScript: typescript.GetLanguage,
	GrammarJavaScript: javascript.GetLanguage,
}

var languageCache sync.Map

// language returns the tree-sitter Language for the given grammar, or nil.
func language(name string) *sitter.Language {
	if cached, ok := languageCache.Load(name); ok {
		lang, castOK := cached.(*sitter.Language)
		if castOK {
			return lang
		}
	}

	fn, ok := grammarFuncs[name]
	if !ok {
		return nil
	}

	lang := sitter.NewLanguage(fn())
	languageCache.Store(name, lang)

	return lang
}

// GrammarFor picks the grammar used to parse path. Detection goes through
// enry so that .jsx, .mjs and .cjs land on the JavaScript grammar;
// anything unrecognised is parsed as TSX, which accepts plain JavaScript too.
func GrammarFor(path string) string {
	langs := enry.GetLanguagesByExtension(filepath.Base(path), nil, nil)

	switch {
	case slices.Contains(langs, "TSX"):
		return GrammarTSX
	case slices.Contains(langs, "TypeScript"):
		return GrammarTypeScript
	case slices.Contains(langs, "JavaScript"), slices.Contains(langs, "JSX"):
		return GrammarJavaScript
	default:
		return GrammarTSX
	}
}
