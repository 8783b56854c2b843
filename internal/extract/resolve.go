package extract

import (
	"path"
	"strings"

	"github.com/jward/trellis/internal/pathnorm"
)

// Resolution rules. Relative imports that point at a file that does not exist
// still produce a (dangling) target so that the edge reappears when the file
// is created. Non-relative imports resolve only to files that exist, since
// anything else is an external package.

func resolveGo(_ string, target string, ws Workspace) []string {
	mod := ws.ModulePath()
	if mod == "" {
		return nil
	}
	var dir string
	switch {
	case target == mod:
		dir = ""
	case strings.HasPrefix(target, mod+"/"):
		dir = strings.TrimPrefix(target, mod+"/")
	default:
		return nil
	}
	var out []string
	for _, f := range ws.FilesIn(dir) {
		if strings.HasSuffix(f, ".go") && !strings.HasSuffix(f, "_test.go") {
			out = append(out, f)
		}
	}
	return out
}

func resolvePython(from, target string, ws Workspace) []string {
	if strings.HasPrefix(target, ".") {
		dots := len(target) - len(strings.TrimLeft(target, "."))
		rest := strings.ReplaceAll(target[dots:], ".", "/")
		base := pathnorm.Dir(from)
		for i := 1; i < dots; i++ {
			base = pathnorm.Dir(base)
		}
		if rest == "" {
			return []string{pathnorm.Key(path.Join(base, "__init__.py"))}
		}
		stem := pathnorm.Key(path.Join(base, rest))
		candidates := []string{stem + ".py", stem + "/__init__.py"}
		if hit, ok := firstExisting(ws, candidates...); ok {
			return []string{hit}
		}
		return candidates[:1]
	}

	rel := strings.ReplaceAll(target, ".", "/")
	local := pathnorm.Key(path.Join(pathnorm.Dir(from), rel))
	if hit, ok := firstExisting(ws,
		rel+".py", rel+"/__init__.py",
		"src/"+rel+".py", "src/"+rel+"/__init__.py",
		local+".py",
	); ok {
		return []string{hit}
	}
	return nil
}

var jsExtensions = []string{".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs", ".d.ts"}

func resolveJS(defaultExt string) func(from, target string, ws Workspace) []string {
	return func(from, target string, ws Workspace) []string {
		if !strings.HasPrefix(target, "./") && !strings.HasPrefix(target, "../") && target != "." && target != ".." {
			return nil
		}
		base := pathnorm.Resolve(from, target)

		candidates := []string{base}
		switch ext := path.Ext(base); ext {
		case ".js", ".jsx", ".mjs", ".cjs":
			stem := strings.TrimSuffix(base, ext)
			candidates = append(candidates, stem+".ts", stem+".tsx")
		}
		for _, ext := range jsExtensions {
			candidates = append(candidates, base+ext)
		}
		for _, ext := range []string{".ts", ".tsx", ".js", ".jsx"} {
			candidates = append(candidates, base+"/index"+ext)
		}
		if hit, ok := firstExisting(ws, candidates...); ok {
			return []string{hit}
		}
		if path.Ext(base) != "" {
			return []string{base}
		}
		return []string{base + defaultExt}
	}
}

func resolveRust(from, target string, ws Workspace) []string {
	if name, ok := strings.CutPrefix(target, "mod:"); ok {
		dir := rustModuleDir(from)
		candidates := []string{
			pathnorm.Key(path.Join(dir, name+".rs")),
			pathnorm.Key(path.Join(dir, name, "mod.rs")),
		}
		if hit, ok := firstExisting(ws, candidates...); ok {
			return []string{hit}
		}
		return candidates[:1]
	}

	use, ok := strings.CutPrefix(target, "use:")
	if !ok {
		return nil
	}
	if i := strings.Index(use, "::{"); i >= 0 {
		use = use[:i]
	}
	segs := strings.Split(use, "::")
	var base string
	switch segs[0] {
	case "crate":
		base = rustCrateRoot(from, ws)
	case "self":
		base = rustModuleDir(from)
	case "super":
		base = pathnorm.Dir(rustModuleDir(from))
	default:
		return nil
	}
	segs = segs[1:]
	for n := len(segs); n > 0; n-- {
		p := pathnorm.Key(path.Join(append([]string{base}, segs[:n]...)...))
		if hit, ok := firstExisting(ws, p+".rs", p+"/mod.rs"); ok {
			if hit == from {
				return nil
			}
			return []string{hit}
		}
	}
	return nil
}

// rustModuleDir returns the directory holding the submodules of file from.
func rustModuleDir(from string) string {
	dir := pathnorm.Dir(from)
	switch base := path.Base(from); base {
	case "mod.rs", "lib.rs", "main.rs":
		return dir
	default:
		return pathnorm.Key(path.Join(dir, strings.TrimSuffix(base, ".rs")))
	}
}

// rustCrateRoot walks up from the file to the directory holding lib.rs or
// main.rs, defaulting to src.
func rustCrateRoot(from string, ws Workspace) string {
	for dir := pathnorm.Dir(from); ; dir = pathnorm.Dir(dir) {
		if _, ok := firstExisting(ws, pathnorm.Key(path.Join(dir, "lib.rs")), pathnorm.Key(path.Join(dir, "main.rs"))); ok {
			return dir
		}
		if dir == "" {
			return "src"
		}
	}
}

func resolveC(from, target string, ws Workspace) []string {
	if inner, ok := strings.CutPrefix(target, "<"); ok {
		inner = strings.TrimSuffix(inner, ">")
		if hit, ok := firstExisting(ws, "include/"+inner, inner); ok {
			return []string{hit}
		}
		return nil
	}
	candidates := []string{
		pathnorm.Resolve(from, target),
		pathnorm.Key("include/" + target),
		pathnorm.Key(target),
		pathnorm.Key("src/" + target),
	}
	if hit, ok := firstExisting(ws, candidates...); ok {
		return []string{hit}
	}
	return candidates[:1]
}

var javaSourceRoots = []string{"", "src/main/java/", "src/test/java/", "src/"}

func resolveJava(_ string, target string, ws Workspace) []string {
	if pkg, ok := strings.CutSuffix(target, ".*"); ok {
		dir := strings.ReplaceAll(pkg, ".", "/")
		for _, root := range javaSourceRoots {
			var out []string
			for _, f := range ws.FilesIn(root + dir) {
				if strings.HasSuffix(f, ".java") {
					out = append(out, f)
				}
			}
			if len(out) > 0 {
				return out
			}
		}
		return nil
	}
	// Static imports name a member; retry without the last segment.
	for t := target; t != ""; {
		rel := strings.ReplaceAll(t, ".", "/") + ".java"
		for _, root := range javaSourceRoots {
			if ws.Exists(root + rel) {
				return []string{root + rel}
			}
		}
		i := strings.LastIndex(t, ".")
		if i < 0 {
			break
		}
		t = t[:i]
	}
	return nil
}

func resolvePHP(from, target string, ws Workspace) []string {
	if strings.HasPrefix(target, "/") || strings.Contains(target, "://") {
		return nil
	}
	rel := pathnorm.Resolve(from, target)
	if hit, ok := firstExisting(ws, rel, pathnorm.Key(target)); ok {
		return []string{hit}
	}
	return []string{rel}
}

func resolveRuby(from, target string, ws Workspace) []string {
	if rel, ok := strings.CutPrefix(target, "rel:"); ok {
		p := pathnorm.Resolve(from, rel)
		if path.Ext(p) == "" {
			p += ".rb"
		}
		return []string{p}
	}
	if req, ok := strings.CutPrefix(target, "req:"); ok {
		if path.Ext(req) == "" {
			req += ".rb"
		}
		if hit, ok := firstExisting(ws, "lib/"+req, pathnorm.Key(req)); ok {
			return []string{hit}
		}
	}
	return nil
}
