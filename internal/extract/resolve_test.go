package extract

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTree creates files under a temp dir and returns a workspace on it.
func writeTree(t *testing.T, files map[string]string) *DirWorkspace {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	}
	return NewDirWorkspace(root)
}

func resolveAll(t *testing.T, ws Workspace, from, src string) []string {
	t.Helper()
	ex, ok := DefaultRegistry().ForPath(from)
	require.True(t, ok)
	res, err := ex.Extract(context.Background(), from, []byte(src))
	require.NoError(t, err)
	var out []string
	for _, ri := range ResolveImports(ex, from, res, ws) {
		out = append(out, ri.To)
	}
	return out
}

func TestDirWorkspace(t *testing.T) {
	ws := writeTree(t, map[string]string{
		"go.mod":       "// comment\nmodule \"example.com/m\"\n\ngo 1.22\n",
		"pkg/a.go":     "package pkg",
		"pkg/b.go":     "package pkg",
		"pkg/sub/c.go": "package sub",
	})

	assert.True(t, ws.Exists("pkg/a.go"))
	assert.False(t, ws.Exists("pkg"), "directories are not files")
	assert.False(t, ws.Exists("missing.go"))
	assert.Equal(t, []string{"pkg/a.go", "pkg/b.go"}, ws.FilesIn("pkg"))
	assert.Equal(t, []string{"go.mod"}, ws.FilesIn(""))
	assert.Equal(t, "example.com/m", ws.ModulePath())
}

func TestParseModulePath(t *testing.T) {
	assert.Equal(t, "github.com/x/y", parseModulePath([]byte("module github.com/x/y\n")))
	assert.Equal(t, "", parseModulePath([]byte("go 1.22\n")))
	assert.Equal(t, "", parseModulePath([]byte("modulex foo\n")))
}

func TestResolve_Go(t *testing.T) {
	ws := writeTree(t, map[string]string{
		"go.mod":           "module example.com/m\n",
		"util/run.go":      "package util",
		"util/extra.go":    "package util",
		"util/run_test.go": "package util",
		"cmd/main.go":      "",
	})
	src := "package main\n\nimport (\n\t\"fmt\"\n\t\"example.com/m/util\"\n)\n"
	got := resolveAll(t, ws, "cmd/main.go", src)
	assert.Equal(t, []string{"util/extra.go", "util/run.go"}, got)
}

func TestResolve_Python(t *testing.T) {
	ws := writeTree(t, map[string]string{
		"pkg/svc.py":              "",
		"pkg/models.py":           "",
		"pkg/helpers/__init__.py": "",
		"shared/config.py":        "",
	})
	src := "import os\nimport shared.config\nfrom .models import User\nfrom . import helpers\nfrom .gone import x\n"
	got := resolveAll(t, ws, "pkg/svc.py", src)
	assert.Equal(t, []string{
		"shared/config.py",
		"pkg/models.py",
		"pkg/helpers/__init__.py",
		"pkg/gone.py",
	}, got)
}

func TestResolve_TypeScript(t *testing.T) {
	ws := writeTree(t, map[string]string{
		"src/main.ts":      "",
		"src/util.ts":      "",
		"src/lib/index.ts": "",
		"src/legacy.ts":    "",
	})
	src := `import { a } from "./util";
import { b } from "./lib";
import { c } from "./legacy.js";
import { d } from "./missing";
import React from "react";
`
	got := resolveAll(t, ws, "src/main.ts", src)
	assert.Equal(t, []string{"src/util.ts", "src/lib/index.ts", "src/legacy.ts", "src/missing.ts"}, got)
}

func TestResolve_Rust(t *testing.T) {
	ws := writeTree(t, map[string]string{
		"src/main.rs":    "",
		"src/util.rs":    "",
		"src/net/mod.rs": "",
	})
	src := "mod util;\nmod net;\nmod absent;\nuse crate::util::helper;\nuse std::fmt;\n"
	got := resolveAll(t, ws, "src/main.rs", src)
	assert.Equal(t, []string{"src/util.rs", "src/net/mod.rs", "src/absent.rs"}, got)
}

func TestResolve_RustSubmodule(t *testing.T) {
	ws := writeTree(t, map[string]string{
		"src/lib.rs":     "",
		"src/net.rs":     "",
		"src/net/tcp.rs": "",
	})
	got := resolveAll(t, ws, "src/net.rs", "mod tcp;\nuse super::net;\n")
	assert.Equal(t, []string{"src/net/tcp.rs"}, got, "super::net from net.rs refers to itself")
}

func TestResolve_C(t *testing.T) {
	ws := writeTree(t, map[string]string{
		"src/main.c":      "",
		"include/util.h":  "",
		"include/api/x.h": "",
	})
	src := "#include \"util.h\"\n#include <api/x.h>\n#include <stdio.h>\n#include \"local.h\"\n"
	got := resolveAll(t, ws, "src/main.c", src)
	assert.Equal(t, []string{"include/util.h", "include/api/x.h", "src/local.h"}, got)
}

func TestResolve_Java(t *testing.T) {
	ws := writeTree(t, map[string]string{
		"src/main/java/com/acme/App.java":          "",
		"src/main/java/com/acme/util/Strings.java": "",
		"src/main/java/com/acme/model/A.java":      "",
		"src/main/java/com/acme/model/B.java":      "",
	})
	src := `package com.acme;
import com.acme.util.Strings;
import com.acme.model.*;
import static com.acme.util.Strings.join;
import java.util.List;
`
	got := resolveAll(t, ws, "src/main/java/com/acme/App.java", src)
	assert.Equal(t, []string{
		"src/main/java/com/acme/util/Strings.java",
		"src/main/java/com/acme/model/A.java",
		"src/main/java/com/acme/model/B.java",
	}, got)
}

func TestResolve_Ruby(t *testing.T) {
	ws := writeTree(t, map[string]string{
		"app/main.rb":   "",
		"app/helper.rb": "",
		"lib/tools.rb":  "",
	})
	src := "require_relative 'helper'\nrequire 'tools'\nrequire 'json'\n"
	got := resolveAll(t, ws, "app/main.rb", src)
	assert.Equal(t, []string{"app/helper.rb", "lib/tools.rb"}, got)
}

func TestResolve_PHP(t *testing.T) {
	ws := writeTree(t, map[string]string{
		"web/index.php":  "",
		"web/config.php": "",
	})
	src := "<?php\nrequire_once 'config.php';\ninclude 'nope.php';\n"
	got := resolveAll(t, ws, "web/index.php", src)
	assert.Equal(t, []string{"web/config.php", "web/nope.php"}, got)
}

func TestResolveImports_Deduplicates(t *testing.T) {
	ws := writeTree(t, map[string]string{"src/util.ts": ""})
	src := "import { a } from './util';\nimport { b } from './util';\n"
	got := resolveAll(t, ws, "src/main.ts", src)
	assert.Equal(t, []string{"src/util.ts"}, got)
}
