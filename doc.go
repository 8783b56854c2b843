// Package trellis keeps a code-intelligence index of a workspace: the
// symbols every source file declares, the identifiers it references and the
// file-to-file dependency edges between them, persisted in SQLite and kept
// current as files change.
//
// # Pipeline
//
// An [Engine] discovers files, extracts them with the [extract.Extractor]
// registered for their extension, and commits one atomic record per file
// through a single writer goroutine:
//
//	e, err := trellis.New(root, dbPath)
//	if err != nil { ... }
//	defer e.Close()
//
//	summary, err := e.BuildFullIndex(ctx, false)
//	res, err := e.ReindexFile(ctx, "internal/store/store.go", false)
//
// [Engine.ReindexFile] is a no-op when the content hash is unchanged. It
// never cascades; callers that want dependents refreshed walk
// [Engine.InvalidationSet] themselves, as the watch daemon does.
//
// # Query API
//
// The [QueryBuilder] returned by [Engine.Query] answers:
//
//   - [QueryBuilder.FindIncludes] and [QueryBuilder.FindIncluders]: forward
//     and reverse dependencies, direct or transitive.
//   - [QueryBuilder.FindDefinition], [QueryBuilder.FindImplementation] and
//     [QueryBuilder.FindUsages]: position based lookups.
//   - [QueryBuilder.ListSymbols] and [QueryBuilder.ShowSymbol]: symbol
//     listings, optionally fuzzy.
//   - [QueryBuilder.Stats]: counts recomputed from the store.
//
// Every query reports an [Outcome] next to its results. An empty answer is
// [NotFound], not an error.
package trellis
