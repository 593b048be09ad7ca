// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/tmfk-stix/internal/graphstore"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index built bundles (store, query, mitigations, show, export, stats)",
	Long: `Index manages a local SQLite index of built bundles. Use subcommands to
ingest bundles, search objects, list the mitigations of a technique, or
export the index.`,
}

// --- store subcommand ---

var indexStoreCmd = &cobra.Command{
	Use:   "store <bundle>...",
	Short: "Ingest bundle files into the index",
	Long: `Store schema-checks each bundle, replaces its objects in the index and
writes export.yaml. Bundles unchanged since they were last indexed are
skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIndexStore,
}

func runIndexStore(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	summary, err := store.Ingest(context.Background(), args, os.Stdout)
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d bundle(s) failed indexing", summary.Failed)
	}
	return nil
}

// --- query subcommand ---

var indexQueryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Search indexed objects by text and filters",
	Long: `Query searches object names and descriptions with FTS4 full-text
search, structured filters (type, external id, domain), or both.`,
	RunE: runIndexQuery,
}

func runIndexQuery(cmd *cobra.Command, args []string) error {
	opts := queryOptsFromFlags(cmd, args)
	if opts.IsEmpty() {
		return fmt.Errorf("query or filter required: provide search text, --type, --external-id or --domain")
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	results, err := store.Retrieve(context.Background(), opts)
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	return formatResults(os.Stdout, results, jsonOutput)
}

// --- mitigations subcommand ---

var indexMitigationsCmd = &cobra.Command{
	Use:   "mitigations <technique-id>",
	Short: "List the mitigations linked to a technique",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		domain, _ := cmd.Flags().GetString("domain")

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		results, err := store.Mitigations(context.Background(), args[0], domain)
		if err != nil {
			return err
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		return formatResults(os.Stdout, results, jsonOutput)
	},
}

// --- show subcommand ---

var indexShowCmd = &cobra.Command{
	Use:   "show <stix-id>",
	Short: "Print the stored JSON of one object",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		raw, err := store.Object(context.Background(), args[0])
		if err != nil {
			return err
		}
		fmt.Println(string(raw))
		return nil
	},
}

// --- export subcommand ---

var indexExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the index to YAML or JSON",
	Long: `Export writes the index (or a filtered subset) to export.yaml or
export.json in the index directory. Techniques list the external ids of
the mitigations linked to them.`,
	RunE: runIndexExport,
}

func runIndexExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	opts := queryOptsFromFlags(cmd, args)
	dir := viper.GetString("index.dir")

	switch format {
	case "yaml", "":
		if err := store.ExportYAML(context.Background(), opts); err != nil {
			return err
		}
		fmt.Println("Exported to", filepath.Join(dir, "export.yaml"))
	case "json":
		if err := store.ExportJSON(context.Background(), opts); err != nil {
			return err
		}
		fmt.Println("Exported to", filepath.Join(dir, "export.json"))
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}

	return nil
}

// --- stats subcommand ---

var indexStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print indexed object counts by type",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		counts, err := store.Counts(context.Background())
		if err != nil {
			return err
		}
		for _, c := range counts {
			fmt.Printf("%-20s %d\n", c.Type, c.Count)
		}
		return nil
	},
}

// --- shared helpers ---

func openStore() (*graphstore.Store, error) {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return nil, err
	}
	return graphstore.NewStore(cfg.Index)
}

func queryOptsFromFlags(cmd *cobra.Command, args []string) graphstore.QueryOptions {
	objectType, _ := cmd.Flags().GetString("type")
	externalID, _ := cmd.Flags().GetString("external-id")
	domain, _ := cmd.Flags().GetString("domain")
	limit, _ := cmd.Flags().GetInt("limit")

	return graphstore.QueryOptions{
		Query:      strings.Join(args, " "),
		Type:       objectType,
		ExternalID: externalID,
		Domain:     domain,
		MaxResults: limit,
	}
}

func formatResults(w io.Writer, results []graphstore.QueryResult, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return nil
	}

	fmt.Fprintf(w, "%-16s  %-12s  %-50s  %s\n", "Type", "ID", "Name", "Domain")
	fmt.Fprintln(w, strings.Repeat("-", 100))

	for _, r := range results {
		name := r.Name
		if len(name) > 50 {
			name = name[:47] + "..."
		}
		fmt.Fprintf(w, "%-16s  %-12s  %-50s  %s\n", r.Type, r.ExternalID, name, r.Domain)
	}

	fmt.Fprintf(w, "\n%d results\n", len(results))
	return nil
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().String("type", "", "filter by STIX type, e.g. attack-pattern or course-of-action")
	cmd.Flags().String("external-id", "", "filter by external id, e.g. MS-TA9001")
	cmd.Flags().String("domain", "", "filter by domain: tmfk or enterprise-attack")
	cmd.Flags().Int("limit", 0, "maximum results (0 = use default)")
}

func init() {
	// Shared flags on the parent command, inherited by subcommands.
	indexCmd.PersistentFlags().String("index-dir", "build/index", "directory holding graph.db and exports")
	indexCmd.PersistentFlags().Int("max-results", 20, "default maximum number of query results")
	viper.BindPFlag("index.dir", indexCmd.PersistentFlags().Lookup("index-dir"))
	viper.BindPFlag("index.max_results", indexCmd.PersistentFlags().Lookup("max-results"))

	addFilterFlags(indexQueryCmd)
	indexQueryCmd.Flags().Bool("json", false, "output results as JSON")

	indexMitigationsCmd.Flags().String("domain", "", "restrict to bundles of this domain")
	indexMitigationsCmd.Flags().Bool("json", false, "output results as JSON")

	addFilterFlags(indexExportCmd)
	indexExportCmd.Flags().String("format", "yaml", "export format: yaml or json")

	// Wire subcommands.
	indexCmd.AddCommand(indexStoreCmd)
	indexCmd.AddCommand(indexQueryCmd)
	indexCmd.AddCommand(indexMitigationsCmd)
	indexCmd.AddCommand(indexShowCmd)
	indexCmd.AddCommand(indexExportCmd)
	indexCmd.AddCommand(indexStatsCmd)

	rootCmd.AddCommand(indexCmd)
}
