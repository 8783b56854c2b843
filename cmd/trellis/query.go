package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jward/trellis"
)

// withQuery opens the index read-only, runs fn and closes the index again.
func (a *app) withQuery(cmd *cobra.Command, fn func(q *trellis.QueryBuilder) error) error {
	idx, err := a.openIndex(cmd.Context())
	if err != nil {
		return err
	}
	defer idx.Close()
	return fn(idx.Query())
}

// filePath resolves a file argument. A relative path that exists under the
// working directory is taken from there; anything else is left for the
// index to read relative to the root.
func filePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	if _, err := os.Stat(abs); err != nil {
		return p
	}
	return abs
}

// finish maps an Outcome to the command's error.
func finish(out trellis.Outcome) error {
	if out == trellis.NotFound {
		return errNotFound
	}
	return nil
}

// emit writes a lookup answer and turns NotFound into errNotFound.
func emit[T any](cmd *cobra.Command, a *app, items []T, out trellis.Outcome, t table[T]) error {
	if err := output(cmd.OutOrStdout(), a.format, cmd.Name(), out, items, t); err != nil {
		return err
	}
	return finish(out)
}

// positionFlags are shared by the commands that take a cursor.
type positionFlags struct {
	file      string
	line      int
	character int
}

func (p *positionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.file, "file", "", "file path, optionally as path:line:char")
	cmd.Flags().IntVar(&p.line, "line", 0, "1-based line (overrides the one in --file)")
	cmd.Flags().IntVar(&p.character, "character", 0, "1-based character (overrides the one in --file)")
	_ = cmd.MarkFlagRequired("file")
}

// position merges --file path:line:char with --line and --character.
func (p *positionFlags) position() (trellis.Position, error) {
	pos := trellis.ParseFileArg(p.file)
	pos.File = filePath(pos.File)
	if p.line > 0 {
		pos.Line = p.line
	}
	if p.character > 0 {
		pos.Character = p.character
	}
	if pos.Line < 1 {
		return pos, fmt.Errorf("a line is required: use --file %s:LINE:CHAR or --line", pos.File)
	}
	if pos.Character < 1 {
		pos.Character = 1
	}
	return pos, nil
}

// sourceFlags add declaration or reference text to query results.
type sourceFlags struct {
	enabled bool
	context int
}

func (s *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&s.enabled, "source", false, "include the source text of each result")
	cmd.Flags().IntVarP(&s.context, "context", "C", 0, "lines of context around the source (implies --source)")
}

func (s *sourceFlags) on() bool { return s.enabled || s.context > 0 }

func (s *sourceFlags) symbols(q *trellis.QueryBuilder, res []trellis.SymbolResult) {
	if !s.on() {
		return
	}
	for i := range res {
		res[i].Source = q.Source(res[i].Location, s.context)
	}
}

func (s *sourceFlags) usages(q *trellis.QueryBuilder, res []trellis.Usage) {
	if !s.on() {
		return
	}
	for i := range res {
		res[i].Source = q.Source(res[i].Location, s.context)
	}
}

func (a *app) symbolsCmd() *cobra.Command {
	var (
		filter trellis.SymbolFilter
		fuzzy  bool
		src    sourceFlags
	)
	cmd := &cobra.Command{
		Use:   "symbols",
		Short: "List indexed symbols",
		Long:  "List symbols filtered by name, kind and file. With --fuzzy, --name ranks names by similarity instead of matching exactly.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter.File = filePath(filter.File)
			return a.withQuery(cmd, func(q *trellis.QueryBuilder) error {
				res, out, err := q.ListSymbols(filter, fuzzy)
				if err != nil {
					return err
				}
				src.symbols(q, res)
				return emit(cmd, a, res, out, symbolTable)
			})
		},
	}
	cmd.Flags().StringVar(&filter.Name, "name", "", "symbol name")
	cmd.Flags().StringVar(&filter.Kind, "kind", "", "symbol kind (function, method, class, struct, ...)")
	cmd.Flags().StringVar(&filter.File, "file", "", "only symbols declared in this file")
	cmd.Flags().IntVar(&filter.Limit, "limit", 0, "maximum results (0: no limit)")
	cmd.Flags().IntVar(&filter.Offset, "offset", 0, "skip this many results (for paging)")
	cmd.Flags().BoolVar(&fuzzy, "fuzzy", false, "rank names by similarity to --name")
	src.register(cmd)
	return cmd
}

func (a *app) symbolCmd() *cobra.Command {
	var (
		name string
		src  sourceFlags
	)
	cmd := &cobra.Command{
		Use:   "symbol",
		Short: "Show every symbol with an exact name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withQuery(cmd, func(q *trellis.QueryBuilder) error {
				res, out, err := q.ShowSymbol(name)
				if err != nil {
					return err
				}
				src.symbols(q, res)
				return emit(cmd, a, res, out, symbolTable)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "symbol name")
	_ = cmd.MarkFlagRequired("name")
	src.register(cmd)
	return cmd
}

func (a *app) definitionCmd() *cobra.Command {
	var (
		pf  positionFlags
		src sourceFlags
	)
	cmd := &cobra.Command{
		Use:   "definition",
		Short: "Find the definition of the symbol at a position",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := pf.position()
			if err != nil {
				return err
			}
			return a.withQuery(cmd, func(q *trellis.QueryBuilder) error {
				res, out, err := q.FindDefinition(pos)
				if err != nil {
					return err
				}
				src.symbols(q, res)
				return emit(cmd, a, res, out, symbolTable)
			})
		},
	}
	pf.register(cmd)
	src.register(cmd)
	return cmd
}

func (a *app) usagesCmd() *cobra.Command {
	var (
		pf    positionFlags
		limit int
		src   sourceFlags
	)
	cmd := &cobra.Command{
		Use:   "usages",
		Short: "Find references to the symbol at a position",
		Long:  "Find references in the symbol's file and every file that depends on it. References inside the definition itself are excluded.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := pf.position()
			if err != nil {
				return err
			}
			return a.withQuery(cmd, func(q *trellis.QueryBuilder) error {
				res, out, err := q.FindUsages(pos, limit)
				if err != nil {
					return err
				}
				src.usages(q, res)
				return emit(cmd, a, res, out, usageTable)
			})
		},
	}
	pf.register(cmd)
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum results (0: no limit)")
	src.register(cmd)
	return cmd
}

func (a *app) implementationCmd() *cobra.Command {
	var (
		pf    positionFlags
		kind  string
		limit int
		src   sourceFlags
	)
	cmd := &cobra.Command{
		Use:     "implementation",
		Aliases: []string{"implementations"},
		Short:   "Find declarations sharing the name of the symbol at a position",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := pf.position()
			if err != nil {
				return err
			}
			return a.withQuery(cmd, func(q *trellis.QueryBuilder) error {
				res, out, err := q.FindImplementation(pos, kind, limit)
				if err != nil {
					return err
				}
				src.symbols(q, res)
				return emit(cmd, a, res, out, symbolTable)
			})
		},
	}
	pf.register(cmd)
	cmd.Flags().StringVar(&kind, "kind", "", "only declarations of this kind")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum results (0: no limit)")
	src.register(cmd)
	return cmd
}

func (a *app) includersCmd() *cobra.Command {
	return a.graphCmd("includers", "List files that include or import a file",
		func(q *trellis.QueryBuilder, file string, transitive bool, limit int) ([]string, trellis.Outcome, error) {
			return q.FindIncluders(file, transitive, limit)
		})
}

func (a *app) includesCmd() *cobra.Command {
	return a.graphCmd("includes", "List files a file includes or imports",
		func(q *trellis.QueryBuilder, file string, transitive bool, limit int) ([]string, trellis.Outcome, error) {
			return q.FindIncludes(file, transitive, limit)
		})
}

type graphQuery func(q *trellis.QueryBuilder, file string, transitive bool, limit int) ([]string, trellis.Outcome, error)

func (a *app) graphCmd(use, short string, query graphQuery) *cobra.Command {
	var (
		file       string
		transitive bool
		limit      int
	)
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// A trailing :line:char is accepted and ignored.
			path := filePath(trellis.ParseFileArg(file).File)
			return a.withQuery(cmd, func(q *trellis.QueryBuilder) error {
				res, out, err := query(q, path, transitive, limit)
				if err != nil {
					return err
				}
				return emit(cmd, a, res, out, fileTable)
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "file path")
	cmd.Flags().BoolVar(&transitive, "transitive", false, "follow edges transitively")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum results (0: no limit)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withQuery(cmd, func(q *trellis.QueryBuilder) error {
				s, err := q.Stats()
				if err != nil {
					return err
				}
				return outputStats(cmd.OutOrStdout(), a.format, s)
			})
		},
	}
}

func (a *app) structureCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "structure",
		Short: "Show the declarations of a file as a tree",
		Long:  "Show every symbol declared in a file nested by range, with counts per kind, the line count and the public types with the most methods.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filePath(trellis.ParseFileArg(file).File)
			return a.withQuery(cmd, func(q *trellis.QueryBuilder) error {
				fs, out, err := q.FileStructure(path)
				if err != nil {
					return err
				}
				if err := outputStructure(cmd.OutOrStdout(), a.format, fs); err != nil {
					return err
				}
				return finish(out)
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "file path")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func (a *app) duplicatesCmd() *cobra.Command {
	var (
		filter      trellis.DuplicateFilter
		uncommitted bool
		staged      bool
	)
	cmd := &cobra.Command{
		Use:   "duplicates",
		Short: "Find declarations with identical bodies",
		Long:  "Group declarations whose bodies match once whitespace is normalized. Very short bodies are ignored. --uncommitted and --staged keep only groups touching files git reports as changed.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if uncommitted || staged {
				changed, err := trellis.ChangedFiles(cmd.Context(), a.root, uncommitted, staged)
				if err != nil {
					return err
				}
				if len(changed) == 0 {
					if err := output(cmd.OutOrStdout(), a.format, cmd.Name(), trellis.NotFound, []trellis.DuplicateGroup(nil), duplicateTable); err != nil {
						return err
					}
					return errNotFound
				}
				filter.Files = changed
			}
			return a.withQuery(cmd, func(q *trellis.QueryBuilder) error {
				res, out, err := q.FindDuplicates(filter)
				if err != nil {
					return err
				}
				return emit(cmd, a, res, out, duplicateTable)
			})
		},
	}
	cmd.Flags().StringVar(&filter.Kind, "kind", "", "only declarations of this kind")
	cmd.Flags().IntVar(&filter.MinCount, "min-count", 2, "smallest group to report")
	cmd.Flags().BoolVar(&uncommitted, "uncommitted", false, "only groups touching files changed since HEAD or untracked")
	cmd.Flags().BoolVar(&staged, "staged", false, "only groups touching staged files")
	return cmd
}
