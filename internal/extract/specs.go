package extract

import (
	"strings"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"
)

func builtinExtractors() []Extractor {
	specs := []*langSpec{
		goSpec(), pythonSpec(), javascriptSpec(), typescriptSpec(), rustSpec(),
		cSpec(), cppSpec(), javaSpec(), phpSpec(), rubySpec(),
	}
	out := make([]Extractor, len(specs))
	for i, s := range specs {
		out[i] = &treeSitterExtractor{spec: s}
	}
	return out
}

func set(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}

var methodWhenNested = map[string]string{KindFunction: KindMethod}

// =============================================================================
// Go
// =============================================================================

func goSpec() *langSpec {
	return &langSpec{
		name:     "go",
		exts:     []string{".go"},
		edgeKind: "import",
		decls: map[string]string{
			"function_declaration": KindFunction,
			"method_declaration":   KindMethod,
			"type_spec":            KindType,
			"type_alias":           KindType,
			"const_spec":           KindConst,
			"var_spec":             KindVar,
		},
		idents: set("identifier", "type_identifier", "field_identifier"),
		refine: func(n *sitter.Node, kind string, _ []byte) string {
			if n.Type() != "type_spec" {
				return kind
			}
			if t := n.ChildByFieldName("type"); t != nil {
				switch t.Type() {
				case "struct_type":
					return KindStruct
				case "interface_type":
					return KindInterface
				}
			}
			return kind
		},
		containerOf: func(n *sitter.Node, src []byte) string {
			if n.Type() != "method_declaration" {
				return ""
			}
			if id := firstDescendant(n.ChildByFieldName("receiver"), "type_identifier"); id != nil {
				return id.Content(src)
			}
			return ""
		},
		visibility: func(_ *sitter.Node, name string, _ []byte) string {
			for _, r := range name {
				if unicode.IsUpper(r) {
					return "public"
				}
				return "private"
			}
			return ""
		},
		imports: func(n *sitter.Node, src []byte) []string {
			if n.Type() != "import_spec" {
				return nil
			}
			if p := n.ChildByFieldName("path"); p != nil {
				return []string{unquote(p.Content(src))}
			}
			return nil
		},
		resolve: resolveGo,
	}
}

// =============================================================================
// Python
// =============================================================================

func pythonSpec() *langSpec {
	return &langSpec{
		name:     "python",
		exts:     []string{".py", ".pyi"},
		edgeKind: "import",
		decls: map[string]string{
			"function_definition": KindFunction,
			"class_definition":    KindClass,
		},
		containers: set("class_definition"),
		nested:     methodWhenNested,
		idents:     set("identifier"),
		visibility: func(_ *sitter.Node, name string, _ []byte) string {
			if strings.HasPrefix(name, "_") && !strings.HasSuffix(name, "__") {
				return "private"
			}
			return "public"
		},
		imports: pythonImports,
		resolve: resolvePython,
	}
}

func pythonImports(n *sitter.Node, src []byte) []string {
	switch n.Type() {
	case "import_statement":
		var out []string
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			switch c.Type() {
			case "dotted_name":
				out = append(out, c.Content(src))
			case "aliased_import":
				if name := c.ChildByFieldName("name"); name != nil {
					out = append(out, name.Content(src))
				}
			}
		}
		return out
	case "import_from_statement":
		mod := n.ChildByFieldName("module_name")
		if mod == nil {
			return nil
		}
		modText := mod.Content(src)
		if strings.Trim(modText, ".") != "" {
			return []string{modText}
		}
		// "from . import a, b" names sibling modules.
		var out []string
		for i := 0; i < int(n.NamedChildCount()); i++ {
			c := n.NamedChild(i)
			if c.StartByte() == mod.StartByte() {
				continue
			}
			switch c.Type() {
			case "dotted_name":
				out = append(out, modText+c.Content(src))
			case "aliased_import":
				if name := c.ChildByFieldName("name"); name != nil {
					out = append(out, modText+name.Content(src))
				}
			}
		}
		return out
	}
	return nil
}

// =============================================================================
// JavaScript / TypeScript
// =============================================================================

func javascriptSpec() *langSpec {
	return &langSpec{
		name:     "javascript",
		exts:     []string{".js", ".jsx", ".mjs", ".cjs"},
		edgeKind: "import",
		decls: map[string]string{
			"function_declaration":           KindFunction,
			"generator_function_declaration": KindFunction,
			"class_declaration":              KindClass,
			"method_definition":              KindMethod,
			"variable_declarator":            KindFunction,
		},
		containers: set("class_declaration"),
		idents:     set("identifier", "property_identifier"),
		refine:     jsRefine,
		visibility: jsVisibility,
		imports:    jsImports,
		resolve:    resolveJS(".js"),
	}
}

func typescriptSpec() *langSpec {
	spec := javascriptSpec()
	spec.name = "typescript"
	spec.exts = []string{".ts", ".tsx", ".mts", ".cts"}
	spec.decls["interface_declaration"] = KindInterface
	spec.decls["type_alias_declaration"] = KindType
	spec.decls["enum_declaration"] = KindEnum
	spec.decls["abstract_class_declaration"] = KindClass
	spec.decls["method_signature"] = KindMethod
	spec.decls["abstract_method_signature"] = KindMethod
	spec.containers = set("class_declaration", "abstract_class_declaration", "interface_declaration")
	spec.idents = set("identifier", "property_identifier", "type_identifier")
	spec.resolve = resolveJS(".ts")
	return spec
}

// jsRefine keeps a variable declarator only when it binds a function.
func jsRefine(n *sitter.Node, kind string, _ []byte) string {
	if n.Type() != "variable_declarator" {
		return kind
	}
	v := n.ChildByFieldName("value")
	if v == nil {
		return ""
	}
	switch v.Type() {
	case "arrow_function", "function", "function_expression", "generator_function":
		return KindFunction
	}
	return ""
}

func jsVisibility(n *sitter.Node, name string, src []byte) string {
	if strings.HasPrefix(name, "#") {
		return "private"
	}
	if n.Type() == "method_definition" || n.Type() == "method_signature" {
		if acc := childOfType(n, "accessibility_modifier"); acc != nil {
			return strings.TrimSpace(acc.Content(src))
		}
		return "public"
	}
	for p, depth := n.Parent(), 0; p != nil && depth < 3; p, depth = p.Parent(), depth+1 {
		if p.Type() == "export_statement" {
			return "public"
		}
	}
	return "private"
}

func jsImports(n *sitter.Node, src []byte) []string {
	switch n.Type() {
	case "import_statement", "export_statement":
		if s := n.ChildByFieldName("source"); s != nil {
			return []string{unquote(s.Content(src))}
		}
	case "call_expression":
		fn := n.ChildByFieldName("function")
		if fn == nil || fn.Type() != "identifier" || fn.Content(src) != "require" {
			return nil
		}
		args := n.ChildByFieldName("arguments")
		if args != nil && args.NamedChildCount() > 0 {
			if first := args.NamedChild(0); first.Type() == "string" {
				return []string{unquote(first.Content(src))}
			}
		}
	}
	return nil
}

// =============================================================================
// Rust
// =============================================================================

func rustSpec() *langSpec {
	return &langSpec{
		name:     "rust",
		exts:     []string{".rs"},
		edgeKind: "import",
		decls: map[string]string{
			"function_item":           KindFunction,
			"function_signature_item": KindFunction,
			"struct_item":             KindStruct,
			"union_item":              KindStruct,
			"enum_item":               KindEnum,
			"trait_item":              KindTrait,
			"impl_item":               KindImpl,
			"mod_item":                KindModule,
			"const_item":              KindConst,
			"static_item":             KindVar,
			"type_item":               KindType,
		},
		containers: set("impl_item", "trait_item"),
		nested:     methodWhenNested,
		idents:     set("identifier", "type_identifier", "field_identifier"),
		nameOf: func(n *sitter.Node) *sitter.Node {
			if n.Type() != "impl_item" {
				return nil
			}
			t := n.ChildByFieldName("type")
			for t != nil {
				switch t.Type() {
				case "generic_type":
					t = t.ChildByFieldName("type")
				case "scoped_type_identifier":
					t = t.ChildByFieldName("name")
				default:
					return t
				}
			}
			return nil
		},
		visibility: func(n *sitter.Node, _ string, _ []byte) string {
			if childOfType(n, "visibility_modifier") != nil {
				return "public"
			}
			return "private"
		},
		imports: func(n *sitter.Node, src []byte) []string {
			switch n.Type() {
			case "mod_item":
				if n.ChildByFieldName("body") != nil {
					return nil
				}
				if name := n.ChildByFieldName("name"); name != nil {
					return []string{"mod:" + name.Content(src)}
				}
			case "use_declaration":
				arg := n.ChildByFieldName("argument")
				if arg == nil {
					return nil
				}
				text := arg.Content(src)
				for _, prefix := range []string{"crate::", "self::", "super::"} {
					if strings.HasPrefix(text, prefix) {
						return []string{"use:" + text}
					}
				}
			}
			return nil
		},
		resolve: resolveRust,
	}
}

// =============================================================================
// C / C++
// =============================================================================

func cSpec() *langSpec {
	return &langSpec{
		name:     "c",
		exts:     []string{".c", ".h"},
		edgeKind: "include",
		decls: map[string]string{
			"function_definition": KindFunction,
			"declaration":         KindFunction,
			"struct_specifier":    KindStruct,
			"union_specifier":     KindStruct,
			"enum_specifier":      KindEnum,
			"type_definition":     KindType,
		},
		idents:  set("identifier", "type_identifier", "field_identifier"),
		refine:  cRefine,
		imports: cIncludes,
		resolve: resolveC,
	}
}

func cppSpec() *langSpec {
	spec := cSpec()
	spec.name = "cpp"
	spec.exts = []string{".cpp", ".cc", ".cxx", ".hpp", ".hh", ".hxx"}
	spec.decls["class_specifier"] = KindClass
	spec.decls["namespace_definition"] = KindModule
	spec.decls["field_declaration"] = KindMethod
	spec.containers = set("class_specifier", "struct_specifier")
	spec.nested = methodWhenNested
	spec.idents = set("identifier", "type_identifier", "field_identifier", "namespace_identifier")
	return spec
}

// cRefine drops forward declarations of aggregates and keeps plain
// declarations only when they declare a function prototype.
func cRefine(n *sitter.Node, kind string, _ []byte) string {
	switch n.Type() {
	case "struct_specifier", "union_specifier", "enum_specifier", "class_specifier":
		if n.ChildByFieldName("body") == nil {
			return ""
		}
	case "declaration", "field_declaration":
		if firstDescendant(n.ChildByFieldName("declarator"), "function_declarator") == nil {
			return ""
		}
	}
	return kind
}

func cIncludes(n *sitter.Node, src []byte) []string {
	if n.Type() != "preproc_include" {
		return nil
	}
	p := n.ChildByFieldName("path")
	if p == nil {
		return nil
	}
	text := strings.TrimSpace(p.Content(src))
	if p.Type() == "system_lib_string" {
		return []string{text}
	}
	return []string{unquote(text)}
}

// =============================================================================
// Java
// =============================================================================

func javaSpec() *langSpec {
	return &langSpec{
		name:     "java",
		exts:     []string{".java"},
		edgeKind: "import",
		decls: map[string]string{
			"class_declaration":           KindClass,
			"record_declaration":          KindClass,
			"interface_declaration":       KindInterface,
			"annotation_type_declaration": KindInterface,
			"enum_declaration":            KindEnum,
			"method_declaration":          KindMethod,
			"constructor_declaration":     KindMethod,
		},
		containers: set("class_declaration", "record_declaration", "interface_declaration", "enum_declaration"),
		idents:     set("identifier", "type_identifier"),
		visibility: func(n *sitter.Node, _ string, src []byte) string {
			mods := childOfType(n, "modifiers")
			if mods == nil {
				return "package"
			}
			text := mods.Content(src)
			for _, v := range []string{"public", "protected", "private"} {
				if strings.Contains(text, v) {
					return v
				}
			}
			return "package"
		},
		imports: func(n *sitter.Node, src []byte) []string {
			if n.Type() != "import_declaration" {
				return nil
			}
			var target string
			for i := 0; i < int(n.NamedChildCount()); i++ {
				c := n.NamedChild(i)
				switch c.Type() {
				case "scoped_identifier", "identifier":
					target = c.Content(src)
				case "asterisk":
					target += ".*"
				}
			}
			if target == "" {
				return nil
			}
			return []string{target}
		},
		resolve: resolveJava,
	}
}

// =============================================================================
// PHP
// =============================================================================

func phpSpec() *langSpec {
	return &langSpec{
		name:     "php",
		exts:     []string{".php"},
		edgeKind: "include",
		decls: map[string]string{
			"function_definition":   KindFunction,
			"class_declaration":     KindClass,
			"interface_declaration": KindInterface,
			"trait_declaration":     KindTrait,
			"enum_declaration":      KindEnum,
			"method_declaration":    KindMethod,
		},
		containers: set("class_declaration", "interface_declaration", "trait_declaration", "enum_declaration"),
		idents:     set("name"),
		visibility: func(n *sitter.Node, _ string, src []byte) string {
			if n.Type() != "method_declaration" {
				return "public"
			}
			if v := childOfType(n, "visibility_modifier"); v != nil {
				return v.Content(src)
			}
			return "public"
		},
		imports: func(n *sitter.Node, src []byte) []string {
			switch n.Type() {
			case "include_expression", "include_once_expression", "require_expression", "require_once_expression":
				if n.NamedChildCount() == 0 {
					return nil
				}
				arg := n.NamedChild(0)
				if arg.Type() == "string" || arg.Type() == "encapsed_string" {
					return []string{unquote(arg.Content(src))}
				}
			}
			return nil
		},
		resolve: resolvePHP,
	}
}

// =============================================================================
// Ruby
// =============================================================================

func rubySpec() *langSpec {
	return &langSpec{
		name:     "ruby",
		exts:     []string{".rb"},
		edgeKind: "import",
		decls: map[string]string{
			"method":           KindFunction,
			"singleton_method": KindMethod,
			"class":            KindClass,
			"module":           KindModule,
		},
		containers: set("class", "module"),
		nested:     methodWhenNested,
		idents:     set("identifier", "constant"),
		imports: func(n *sitter.Node, src []byte) []string {
			if n.Type() != "call" {
				return nil
			}
			m := n.ChildByFieldName("method")
			if m == nil {
				return nil
			}
			var prefix string
			switch m.Content(src) {
			case "require_relative":
				prefix = "rel:"
			case "require", "load":
				prefix = "req:"
			default:
				return nil
			}
			args := n.ChildByFieldName("arguments")
			if args == nil || args.NamedChildCount() == 0 {
				return nil
			}
			if first := args.NamedChild(0); first.Type() == "string" {
				return []string{prefix + unquote(first.Content(src))}
			}
			return nil
		},
		resolve: resolveRuby,
	}
}
