package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
)

var errInvalidUTF8 = errors.New("content is not valid UTF-8")

// langSpec describes how to read one language's syntax tree.
type langSpec struct {
	name     string
	exts     []string
	edgeKind string

	// decls maps declaration node types to symbol kinds.
	decls map[string]string
	// containers are declaration node types whose name becomes the
	// Container of declarations nested inside them.
	containers map[string]bool
	// nested rewrites a kind for declarations that have a container,
	// typically function to method.
	nested map[string]string
	// idents are node types recorded as references.
	idents map[string]bool

	// refine may adjust the kind for a declaration node. Returning ""
	// skips the node.
	refine func(n *sitter.Node, kind string, src []byte) string
	// nameOf overrides the default name lookup.
	nameOf func(n *sitter.Node) *sitter.Node
	// containerOf supplies a container for declarations that name it
	// themselves, such as Go methods and their receivers.
	containerOf func(n *sitter.Node, src []byte) string
	visibility  func(n *sitter.Node, name string, src []byte) string
	imports     func(n *sitter.Node, src []byte) []string
	resolve     func(from, target string, ws Workspace) []string
}

// treeSitterExtractor is the Extractor for every built-in language.
type treeSitterExtractor struct {
	spec *langSpec
}

func (x *treeSitterExtractor) Language() string     { return x.spec.name }
func (x *treeSitterExtractor) Extensions() []string { return x.spec.exts }

func (x *treeSitterExtractor) Resolve(from string, imp Import, ws Workspace) []string {
	if x.spec.resolve == nil {
		return nil
	}
	return x.spec.resolve(from, imp.Target, ws)
}

func (x *treeSitterExtractor) Extract(ctx context.Context, path string, content []byte) (*Result, error) {
	if !utf8.Valid(content) {
		return nil, &ExtractionError{Path: path, Err: errInvalidUTF8}
	}
	lang, ok := GrammarFor(x.spec.name)
	if !ok {
		return nil, &ExtractionError{Path: path, Err: fmt.Errorf("no grammar for %s", x.spec.name)}
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, &ExtractionError{Path: path, Err: fmt.Errorf("tree-sitter parse: %w", err)}
	}
	defer tree.Close()

	w := &walker{
		spec:      x.spec,
		src:       content,
		res:       &Result{},
		declNames: make(map[uint32]bool),
	}
	w.walk(tree.RootNode(), "", false)
	return w.res, nil
}

type walker struct {
	spec      *langSpec
	src       []byte
	res       *Result
	declNames map[uint32]bool // start bytes of identifiers that name a declaration
}

func (w *walker) walk(n *sitter.Node, container string, inFunc bool) {
	typ := n.Type()
	childContainer, childInFunc := container, inFunc

	if kind, ok := w.spec.decls[typ]; ok {
		if sym, ok := w.declare(n, kind, container, inFunc); ok {
			switch {
			case w.spec.containers[typ]:
				childContainer = sym.Name
			default:
				childContainer = ""
			}
			if sym.Kind == KindFunction || sym.Kind == KindMethod {
				childInFunc = true
			}
		}
	}

	if w.spec.imports != nil {
		for _, target := range w.spec.imports(n, w.src) {
			if target != "" {
				w.res.Imports = append(w.res.Imports, Import{Target: target, Kind: w.spec.edgeKind})
			}
		}
	}

	if w.spec.idents[typ] && !w.declNames[n.StartByte()] {
		w.res.References = append(w.res.References, Reference{
			Name:  n.Content(w.src),
			Start: int(n.StartByte()),
			End:   int(n.EndByte()),
		})
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.walk(n.NamedChild(i), childContainer, childInFunc)
	}
}

func (w *walker) declare(n *sitter.Node, kind, container string, inFunc bool) (Symbol, bool) {
	if w.spec.refine != nil {
		kind = w.spec.refine(n, kind, w.src)
		if kind == "" {
			return Symbol{}, false
		}
	}
	if inFunc && (kind == KindConst || kind == KindVar) {
		return Symbol{}, false
	}

	var nameNode *sitter.Node
	if w.spec.nameOf != nil {
		nameNode = w.spec.nameOf(n)
	}
	if nameNode == nil {
		nameNode = declName(n)
	}
	if nameNode == nil {
		return Symbol{}, false
	}
	name := strings.TrimSpace(nameNode.Content(w.src))
	if name == "" {
		return Symbol{}, false
	}

	if w.spec.containerOf != nil {
		if c := w.spec.containerOf(n, w.src); c != "" {
			container = c
		}
	}
	if container != "" {
		if k, ok := w.spec.nested[kind]; ok {
			kind = k
		}
	}

	vis := ""
	if w.spec.visibility != nil {
		vis = w.spec.visibility(n, name, w.src)
	}

	sym := Symbol{
		Name:       name,
		Kind:       kind,
		Start:      int(n.StartByte()),
		End:        int(n.EndByte()),
		Visibility: vis,
		Container:  container,
	}
	w.res.Symbols = append(w.res.Symbols, sym)
	w.declNames[nameNode.StartByte()] = true
	return sym, true
}

// declName finds the identifier naming a declaration: the "name" field, or
// the innermost identifier along a chain of "declarator" fields as used by
// the C family grammars.
func declName(n *sitter.Node) *sitter.Node {
	if name := n.ChildByFieldName("name"); name != nil {
		return name
	}
	d := n.ChildByFieldName("declarator")
	for d != nil {
		switch d.Type() {
		case "identifier", "field_identifier", "type_identifier", "destructor_name", "operator_name":
			return d
		case "qualified_identifier":
			if name := d.ChildByFieldName("name"); name != nil {
				return name
			}
		}
		if name := d.ChildByFieldName("name"); name != nil && d.Type() != "function_declarator" {
			return name
		}
		d = d.ChildByFieldName("declarator")
	}
	return nil
}

// firstDescendant returns the first node of type typ in a breadth-first walk
// below n, or nil.
func firstDescendant(n *sitter.Node, typ string) *sitter.Node {
	if n == nil {
		return nil
	}
	queue := []*sitter.Node{n}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.Type() == typ {
			return cur
		}
		for i := 0; i < int(cur.NamedChildCount()); i++ {
			queue = append(queue, cur.NamedChild(i))
		}
	}
	return nil
}

// childOfType returns the first direct child of n with type typ, or nil.
func childOfType(n *sitter.Node, typ string) *sitter.Node {
	for i := 0; i < int(n.ChildCount()); i++ {
		if c := n.Child(i); c != nil && c.Type() == typ {
			return c
		}
	}
	return nil
}

// unquote strips the quotes around a string literal.
func unquote(s string) string {
	return strings.Trim(strings.TrimSpace(s), "\"'`")
}
