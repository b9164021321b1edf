// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/kawidev/knowledge-gate/internal/library"
	"github.com/kawidev/knowledge-gate/internal/pipeline"
	"github.com/kawidev/knowledge-gate/pkg/types"
)

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "Manage the curation library (store, retrieve, export)",
	Long: `Library manages a local SQLite curation library built from the export
streams. Use subcommands to ingest the streams, query them, or export the
curation queue.`,
}

// --- store subcommand ---

var libraryStoreCmd = &cobra.Command{
	Use:   "store",
	Short: "Ingest the ready and reject streams into the library",
	Long: `Store reads processed/knowledge_library_ready.jsonl and
knowledge_library_rejects.jsonl, upserts them into a SQLite database with
FTS5 indexing over detected terms, and writes the curation queue export.
Unchanged streams are skipped on subsequent runs.`,
	RunE: runLibraryStore,
}

func runLibraryStore(cmd *cobra.Command, args []string) error {
	paths := pipeline.NewPaths(cfg.DataDir).WithLibraryDir(cfg.Library.Dir)
	store, err := openLibrary(cmd, paths)
	if err != nil {
		return err
	}
	defer store.Close()

	summary, err := store.Ingest(cmd.Context(), library.Streams{
		Ready:   paths.LibraryReady,
		Rejects: paths.LibraryRejects,
	}, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return errors.Newf("%d record(s) failed indexing", summary.Failed)
	}
	return nil
}

// --- retrieve subcommand ---

var libraryRetrieveCmd = &cobra.Command{
	Use:   "retrieve [query]",
	Short: "Query the library with full-text search and filters",
	Long: `Retrieve searches ready records by their detected terms using FTS5,
by structured filters (priority, status, post, focus), or both. Use
--rejects to list stored reject records instead.`,
	RunE: runLibraryRetrieve,
}

func runLibraryRetrieve(cmd *cobra.Command, args []string) error {
	paths := pipeline.NewPaths(cfg.DataDir).WithLibraryDir(cfg.Library.Dir)
	store, err := openLibrary(cmd, paths)
	if err != nil {
		return err
	}
	defer store.Close()

	jsonOutput, _ := cmd.Flags().GetBool("json")
	opts := queryOptsFromFlags(cmd, args)

	if rejects, _ := cmd.Flags().GetBool("rejects"); rejects {
		entries, err := store.Rejects(cmd.Context(), opts.PostID, opts.MaxResults)
		if err != nil {
			return err
		}
		return formatRejectsOutput(cmd.OutOrStdout(), entries, jsonOutput)
	}

	if opts.IsEmpty() {
		return errors.New("query or filter required: provide a search query, --priority, --status, --post-id or --focus")
	}
	results, err := store.Retrieve(cmd.Context(), opts)
	if err != nil {
		return err
	}
	return formatRetrieveOutput(cmd.OutOrStdout(), results, jsonOutput)
}

func formatRetrieveOutput(w io.Writer, results []library.QueryResult, jsonOutput bool) error {
	if jsonOutput {
		return encodeJSON(w, results)
	}
	if len(results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return nil
	}

	fmt.Fprintf(w, "%-4s  %-24s  %-8s  %-10s  %-30s  %s\n",
		"Rank", "Post", "Priority", "Status", "Focus", "Terms")
	fmt.Fprintln(w, strings.Repeat("-", 110))
	for i, r := range results {
		fmt.Fprintf(w, "%-4d  %-24s  %-8s  %-10s  %-30s  %s\n",
			i+1, truncate(r.PostID, 24), r.Priority, r.JobStatus,
			truncate(strings.Join(r.SuggestedFocus, ","), 30),
			truncate(strings.Join(r.Terms, ", "), 40))
	}
	fmt.Fprintf(w, "\n%d results\n", len(results))
	return nil
}

func formatRejectsOutput(w io.Writer, entries []library.RejectEntry, jsonOutput bool) error {
	if jsonOutput {
		return encodeJSON(w, entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "No rejects found.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(w, "%s  %s  errors=%d\n", e.PostID, e.RejectedAt, e.ErrorCount)
		for _, r := range e.Reasons {
			fmt.Fprintf(w, "    %-8s %-12s %s\n", r.Severity, r.Category, r.Code)
		}
	}
	fmt.Fprintf(w, "\n%d rejects\n", len(entries))
	return nil
}

// --- export subcommand ---

var libraryExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the curation queue to YAML or JSON",
	Long: `Export writes the curation queue (ready records ordered by priority,
plus stored rejects when no content filter is given) to
library/curation_queue.yaml or curation_queue.json. Supports the same
filter flags as retrieve.`,
	RunE: runLibraryExport,
}

func runLibraryExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	paths := pipeline.NewPaths(cfg.DataDir).WithLibraryDir(cfg.Library.Dir)
	store, err := openLibrary(cmd, paths)
	if err != nil {
		return err
	}
	defer store.Close()

	opts := queryOptsFromFlags(cmd, args)

	var path string
	switch format {
	case "yaml", "":
		path, err = store.ExportYAML(cmd.Context(), opts)
	case "json":
		path, err = store.ExportJSON(cmd.Context(), opts)
	default:
		return errors.Newf("unsupported format %q: use yaml or json", format)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", path)
	return nil
}

// --- shared helpers ---

func openLibrary(cmd *cobra.Command, paths pipeline.Paths) (*library.Store, error) {
	maxResults := cfg.Library.MaxResults
	if cmd.Flags().Changed("max-results") {
		maxResults, _ = cmd.Flags().GetInt("max-results")
	}
	return library.NewStore(types.LibraryConfig{Dir: paths.Library, MaxResults: maxResults})
}

func queryOptsFromFlags(cmd *cobra.Command, args []string) library.QueryOptions {
	queryText, _ := cmd.Flags().GetString("query")
	if queryText == "" && len(args) > 0 {
		queryText = strings.Join(args, " ")
	}
	priority, _ := cmd.Flags().GetString("priority")
	status, _ := cmd.Flags().GetString("status")
	postID, _ := cmd.Flags().GetString("post-id")
	focus, _ := cmd.Flags().GetString("focus")
	limit, _ := cmd.Flags().GetInt("limit")

	return library.QueryOptions{
		Query:      queryText,
		Priority:   priority,
		JobStatus:  status,
		PostID:     postID,
		Focus:      focus,
		MaxResults: limit,
	}
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func addFilterFlags(cmd *cobra.Command, scope string) {
	cmd.Flags().String("query", "", "full-text search over detected terms"+scope)
	cmd.Flags().String("priority", "", "filter by curation priority: high, medium, low"+scope)
	cmd.Flags().String("status", "", "filter by job status"+scope)
	cmd.Flags().String("post-id", "", "filter by source post id"+scope)
	cmd.Flags().String("focus", "", "filter by suggested focus: terms, definitions, relations, contextor_mapping"+scope)
}

func init() {
	// Shared flag on the parent command, inherited by subcommands.
	libraryCmd.PersistentFlags().Int("max-results", 20, "default maximum number of query results")

	addFilterFlags(libraryRetrieveCmd, "")
	libraryRetrieveCmd.Flags().Int("limit", 0, "maximum results (0 = use default)")
	libraryRetrieveCmd.Flags().Bool("rejects", false, "list stored reject records instead of ready records")
	libraryRetrieveCmd.Flags().Bool("json", false, "output results as JSON")

	addFilterFlags(libraryExportCmd, " for partial export")
	libraryExportCmd.Flags().String("format", "yaml", "export format: yaml or json")

	libraryCmd.AddCommand(libraryStoreCmd)
	libraryCmd.AddCommand(libraryRetrieveCmd)
	libraryCmd.AddCommand(libraryExportCmd)

	rootCmd.AddCommand(libraryCmd)
}
