package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/jward/trellis"
	"github.com/jward/trellis/internal/daemon"
)

const (
	formatText  = "text"
	formatJSON  = "json"
	formatJSONL = "jsonl"
	formatCSV   = "csv"
	formatTSV   = "tsv"
)

// validFormats lists accepted values for --format.
var validFormats = []string{formatText, formatJSON, formatJSONL, formatCSV, formatTSV}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be one of %s", format, strings.Join(validFormats, ", "))
}

// CLIResult is the JSON envelope for --format json.
type CLIResult struct {
	Command string `json:"command"`
	Outcome string `json:"outcome,omitempty"`
	Count   int    `json:"count"`
	Results any    `json:"results,omitempty"`
	Error   string `json:"error,omitempty"`
}

// table describes how one result type renders as rows and as text.
type table[T any] struct {
	header []string
	row    func(T) []string
	// rows replaces row for items that expand to several records.
	rows func(T) [][]string
	text func(io.Writer, []T)
}

func (t table[T]) records(it T) [][]string {
	if t.rows != nil {
		return t.rows(it)
	}
	return [][]string{t.row(it)}
}

// output writes items in format. The format never changes which items are
// written.
func output[T any](w io.Writer, format, command string, out trellis.Outcome, items []T, t table[T]) error {
	if items == nil {
		items = []T{}
	}
	switch format {
	case formatJSON:
		return writeJSON(w, CLIResult{Command: command, Outcome: out.String(), Count: len(items), Results: items})
	case formatJSONL:
		enc := json.NewEncoder(w)
		for _, it := range items {
			if err := enc.Encode(it); err != nil {
				return err
			}
		}
		return nil
	case formatCSV, formatTSV:
		cw := csv.NewWriter(w)
		if format == formatTSV {
			cw.Comma = '\t'
		}
		if err := cw.Write(t.header); err != nil {
			return err
		}
		for _, it := range items {
			if err := cw.WriteAll(t.records(it)); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	default:
		t.text(w, items)
		return nil
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var symbolTable = table[trellis.SymbolResult]{
	header: []string{"name", "kind", "visibility", "container", "location", "id"},
	row: func(s trellis.SymbolResult) []string {
		return []string{s.Name, s.Kind, s.Visibility, s.Container, s.Location.String(), s.ID}
	},
	text: formatSymbolsText,
}

// formatSymbolsText formats SymbolResult values as aligned columns, or as
// one block per symbol when source text is attached.
func formatSymbolsText(w io.Writer, syms []trellis.SymbolResult) {
	if len(syms) == 0 {
		return
	}
	if syms[0].Source != "" {
		for _, s := range syms {
			fmt.Fprintf(w, "%s %s %s\n", s.Kind, s.Name, s.Location)
			writeSource(w, s.Source)
		}
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tVISIBILITY\tCONTAINER\tLOCATION")
	for _, s := range syms {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.Name, s.Kind, dash(s.Visibility), dash(s.Container), s.Location)
	}
	tw.Flush()
}

var usageTable = table[trellis.Usage]{
	header: []string{"name", "file", "line", "character", "end_line", "end_character"},
	row: func(u trellis.Usage) []string {
		l := u.Location
		return []string{u.Name, l.File, strconv.Itoa(l.StartLine), strconv.Itoa(l.StartCol), strconv.Itoa(l.EndLine), strconv.Itoa(l.EndCol)}
	},
	text: formatUsagesText,
}

// formatUsagesText formats usages as "file:line:col" lines.
func formatUsagesText(w io.Writer, usages []trellis.Usage) {
	for _, u := range usages {
		fmt.Fprintln(w, u.Location)
		writeSource(w, u.Source)
	}
}

// writeSource indents source under its result line.
func writeSource(w io.Writer, source string) {
	if source == "" {
		return
	}
	for _, line := range strings.Split(source, "\n") {
		fmt.Fprintf(w, "    %s\n", line)
	}
	fmt.Fprintln(w)
}

var duplicateTable = table[trellis.DuplicateGroup]{
	header: []string{"group_hash", "name", "kind", "location", "container"},
	rows:   duplicateRows,
	text:   formatDuplicatesText,
}

// duplicateRows flattens groups into one row per member.
func duplicateRows(g trellis.DuplicateGroup) [][]string {
	rows := make([][]string, 0, len(g.Symbols))
	for _, s := range g.Symbols {
		rows = append(rows, []string{shortHash(g.Hash), s.Name, s.Kind, s.Location.String(), s.Container})
	}
	return rows
}

func formatDuplicatesText(w io.Writer, groups []trellis.DuplicateGroup) {
	if len(groups) == 0 {
		return
	}
	total := 0
	for _, g := range groups {
		total += g.Count
	}
	fmt.Fprintf(w, "Found %d duplicate groups (%d total symbols)\n", len(groups), total)
	for i, g := range groups {
		fmt.Fprintf(w, "\nGroup %d (%d duplicates, hash: %s):\n", i+1, g.Count, shortHash(g.Hash))
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, s := range g.Symbols {
			in := ""
			if s.Container != "" {
				in = " in " + s.Container
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s%s\n", s.Kind, s.Name, s.Location, in)
		}
		tw.Flush()
	}
}

func shortHash(h string) string {
	return h[:min(8, len(h))]
}

var fileTable = table[string]{
	header: []string{"file"},
	row:    func(f string) []string { return []string{f} },
	text: func(w io.Writer, files []string) {
		for _, f := range files {
			fmt.Fprintln(w, f)
		}
	},
}

// outputStructure writes a file's symbol tree. CSV and TSV flatten it with
// names indented by depth; JSONL writes the tree on one line.
func outputStructure(w io.Writer, format string, fs *trellis.FileStructure) error {
	switch format {
	case formatJSON:
		return writeJSON(w, fs)
	case formatJSONL:
		return json.NewEncoder(w).Encode(fs)
	case formatCSV, formatTSV:
		cw := csv.NewWriter(w)
		if format == formatTSV {
			cw.Comma = '\t'
		}
		if err := cw.Write([]string{"name", "kind", "start", "end", "visibility", "container"}); err != nil {
			return err
		}
		var walk func(nodes []*trellis.SymbolNode, depth int) error
		walk = func(nodes []*trellis.SymbolNode, depth int) error {
			for _, n := range nodes {
				l := n.Location
				err := cw.Write([]string{
					strings.Repeat("  ", depth) + n.Name, n.Kind,
					fmt.Sprintf("%d:%d", l.StartLine, l.StartCol),
					fmt.Sprintf("%d:%d", l.EndLine, l.EndCol),
					n.Visibility, n.Container,
				})
				if err != nil {
					return err
				}
				if err := walk(n.Children, depth+1); err != nil {
					return err
				}
			}
			return nil
		}
		if err := walk(fs.Symbols, 0); err != nil {
			return err
		}
		cw.Flush()
		return cw.Error()
	default:
		formatStructureText(w, fs)
		return nil
	}
}

func formatStructureText(w io.Writer, fs *trellis.FileStructure) {
	if len(fs.Symbols) == 0 {
		return
	}
	kinds := make([]string, 0, len(fs.Counts))
	for k := range fs.Counts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool {
		if fs.Counts[kinds[i]] != fs.Counts[kinds[j]] {
			return fs.Counts[kinds[i]] > fs.Counts[kinds[j]]
		}
		return kinds[i] < kinds[j]
	})
	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		plural := "s"
		if fs.Counts[k] == 1 {
			plural = ""
		}
		parts = append(parts, fmt.Sprintf("%d %s%s", fs.Counts[k], k, plural))
	}

	fmt.Fprintln(w, fs.File)
	fmt.Fprintf(w, "Summary: %s | %d lines\n", strings.Join(parts, ", "), fs.Lines)
	if len(fs.KeyTypes) > 0 {
		fmt.Fprintf(w, "Key types: %s\n", strings.Join(fs.KeyTypes, ", "))
	}
	writeTree(w, fs.Symbols, "")
}

func writeTree(w io.Writer, nodes []*trellis.SymbolNode, prefix string) {
	for i, n := range nodes {
		last := i == len(nodes)-1
		connector, next := "├─", prefix+"│  "
		if last {
			connector, next = "└─", prefix+"   "
		}
		vis := ""
		if n.Visibility != "" {
			vis = " (" + n.Visibility + ")"
		}
		l := n.Location
		fmt.Fprintf(w, "%s%s %s %s%s  [%d:%d - %d:%d]\n", prefix, connector, n.Kind, n.Name, vis, l.StartLine, l.StartCol, l.EndLine, l.EndCol)
		writeTree(w, n.Children, next)
	}
}

// outputStats writes stats. Tabular formats fall back to JSON.
func outputStats(w io.Writer, format string, s *trellis.Stats) error {
	switch format {
	case formatText:
		formatStatsText(w, s)
		return nil
	case formatJSONL:
		return json.NewEncoder(w).Encode(s)
	default:
		return writeJSON(w, s)
	}
}

// formatStatsText formats Stats as readable text.
func formatStatsText(w io.Writer, s *trellis.Stats) {
	fmt.Fprintln(w, "Index Summary")
	fmt.Fprintln(w, "=============")
	fmt.Fprintf(w, "Files:   %d\n", s.Files.Total)
	fmt.Fprintf(w, "Symbols: %d\n", s.Symbols.Total)
	fmt.Fprintf(w, "Edges:   %d\n", s.Edges)
	fmt.Fprintf(w, "Index:   %s (%d bytes, schema %d)\n", s.Index.Path, s.Index.SizeBytes, s.Index.SchemaVersion)
	if s.Index.LastUpdated != nil {
		fmt.Fprintf(w, "Updated: %s\n", s.Index.LastUpdated.Format("2006-01-02 15:04:05 MST"))
	}

	writeCounts(w, "Languages", s.Files.ByLanguage)
	writeCounts(w, "Symbol Kinds", s.Symbols.ByKind)

	if len(s.ParseFailures) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Parse Failures:")
		for _, f := range s.ParseFailures {
			fmt.Fprintf(w, "  %s: %s\n", f.Path, f.Reason)
		}
	}
}

func writeCounts(w io.Writer, title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s:\n", title)
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %d\n", k, counts[k])
	}
}

// outputStatus writes daemon status. Tabular formats fall back to JSON.
func outputStatus(w io.Writer, format string, st *daemon.Status) error {
	switch format {
	case formatText:
		if !st.Running {
			fmt.Fprintf(w, "daemon: not running (root %s)\n", st.Root)
		} else {
			fmt.Fprintf(w, "daemon: running (pid %d) since %s\n", st.PID, st.StartedAt.Local().Format("2006-01-02 15:04:05"))
			if !st.VersionMatch {
				fmt.Fprintf(w, "version: daemon %s, cli %s (restart recommended)\n", st.DaemonVersion, st.Version)
			}
		}
		fmt.Fprintf(w, "index: %s (%d files, %d symbols)\n", dash(st.DB), st.Files, st.Symbols)
		return nil
	case formatJSONL:
		return json.NewEncoder(w).Encode(st)
	default:
		return writeJSON(w, st)
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
