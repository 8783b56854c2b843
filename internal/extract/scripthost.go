package extract

import (
	"context"
	"sync"
	"unsafe"

	"github.com/risor-io/risor/object"
	sitter "github.com/smacker/go-tree-sitter"
)

// sourceStore remembers the bytes and grammar behind every tree a script
// parses. Nodes do not expose their tree, so lookups go through the root
// node pointer.
type sourceStore struct {
	mu      sync.RWMutex
	sources map[uintptr][]byte
	langs   map[uintptr]*sitter.Language
	trees   []*sitter.Tree
}

func newSourceStore() *sourceStore {
	return &sourceStore{
		sources: make(map[uintptr][]byte),
		langs:   make(map[uintptr]*sitter.Language),
	}
}

func (s *sourceStore) add(tree *sitter.Tree, src []byte, lang *sitter.Language) {
	key := uintptr(unsafe.Pointer(tree.RootNode()))
	s.mu.Lock()
	s.sources[key] = src
	s.langs[key] = lang
	s.trees = append(s.trees, tree)
	s.mu.Unlock()
}

// close releases every tree parsed during the run.
func (s *sourceStore) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.trees {
		t.Close()
	}
	s.trees = nil
}

func rootOf(n *sitter.Node) *sitter.Node {
	for n.Parent() != nil {
		n = n.Parent()
	}
	return n
}

func (s *sourceStore) lookup(n *sitter.Node) ([]byte, *sitter.Language, bool) {
	key := uintptr(unsafe.Pointer(rootOf(n)))
	s.mu.RLock()
	defer s.mu.RUnlock()
	src, ok := s.sources[key]
	return src, s.langs[key], ok
}

func nodeArg(fn string, obj object.Object) (*sitter.Node, *object.Error) {
	p, ok := obj.(*object.Proxy)
	if !ok {
		return nil, object.Errorf("%s: expected node, got %s", fn, obj.Type())
	}
	n, ok := p.Interface().(*sitter.Node)
	if !ok {
		return nil, object.Errorf("%s: expected node, got %T", fn, p.Interface())
	}
	return n, nil
}

// parse_src(source, language) returns the parsed tree.
func makeParseSrcFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("parse_src", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("parse_src", 2, len(args))
		}
		src, err := toString(args[0])
		if err != nil {
			return object.Errorf("parse_src: source: %v", err)
		}
		langName, err := toString(args[1])
		if err != nil {
			return object.Errorf("parse_src: language: %v", err)
		}
		lang, ok := GrammarFor(langName)
		if !ok {
			return object.Errorf("parse_src: unsupported language %q", langName)
		}

		parser := sitter.NewParser()
		defer parser.Close()
		parser.SetLanguage(lang)

		buf := []byte(src)
		tree, err := parser.ParseCtx(ctx, nil, buf)
		if err != nil {
			return object.Errorf("parse_src: %v", err)
		}
		ss.add(tree, buf, lang)

		p, err := object.NewProxy(tree)
		if err != nil {
			return object.Errorf("parse_src: %v", err)
		}
		return p
	})
}

// node_text(node) returns the source covered by node.
func makeNodeTextFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("node_text", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("node_text", 1, len(args))
		}
		n, errObj := nodeArg("node_text", args[0])
		if errObj != nil {
			return errObj
		}
		src, _, ok := ss.lookup(n)
		if !ok {
			return object.Errorf("node_text: node does not belong to a parsed tree")
		}
		return object.NewString(n.Content(src))
	})
}

// node_child(node, field) returns the named child or nil.
func makeNodeChildFn() *object.Builtin {
	return object.NewBuiltin("node_child", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("node_child", 2, len(args))
		}
		n, errObj := nodeArg("node_child", args[0])
		if errObj != nil {
			return errObj
		}
		field, err := toString(args[1])
		if err != nil {
			return object.Errorf("node_child: field: %v", err)
		}
		child := n.ChildByFieldName(field)
		if child == nil {
			return object.Nil
		}
		p, err := object.NewProxy(child)
		if err != nil {
			return object.Errorf("node_child: %v", err)
		}
		return p
	})
}

// query(pattern, node) returns one map per match, capture name to node.
func makeQueryFn(ss *sourceStore) *object.Builtin {
	return object.NewBuiltin("query", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("query", 2, len(args))
		}
		pattern, err := toString(args[0])
		if err != nil {
			return object.Errorf("query: pattern: %v", err)
		}
		n, errObj := nodeArg("query", args[1])
		if errObj != nil {
			return errObj
		}
		src, lang, ok := ss.lookup(n)
		if !ok {
			return object.Errorf("query: node does not belong to a parsed tree")
		}

		q, err := sitter.NewQuery([]byte(pattern), lang)
		if err != nil {
			return object.Errorf("query: invalid pattern: %v", err)
		}
		defer q.Close()

		cursor := sitter.NewQueryCursor()
		defer cursor.Close()
		cursor.Exec(q, n)

		results := []object.Object{}
		for {
			match, ok := cursor.NextMatch()
			if !ok {
				break
			}
			match = cursor.FilterPredicates(match, src)
			captures := make(map[string]object.Object, len(match.Captures))
			for _, c := range match.Captures {
				name := q.CaptureNameForId(c.Index)
				p, err := object.NewProxy(c.Node)
				if err != nil {
					return object.Errorf("query: capture %q: %v", name, err)
				}
				captures[name] = p
			}
			results = append(results, object.NewMap(captures))
		}
		return object.NewList(results)
	})
}
