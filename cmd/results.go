package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/otaviobraga/registry-harvester/internal/export"
	"github.com/otaviobraga/registry-harvester/internal/scraper"
)

func newResultsCmd() *cobra.Command {
	var limit int
	var format string

	cmd := &cobra.Command{
		Use:   "results",
		Short: "Prints recently persisted extraction results",

		RunE: func(cmd *cobra.Command, _ []string) error {
			return runResults(cmd, limit, format)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum rows to fetch")
	cmd.Flags().StringVar(&format, "format", "json", "output format: json or csv")
	return cmd
}

func runResults(cmd *cobra.Command, limit int, format string) error {
	ctx := cmd.Context()
	rt, err := resolveRuntime(ctx)
	if err != nil {
		return err
	}

	results, err := rt.Queue.Results(ctx, limit)
	if err != nil {
		return fmt.Errorf("fetch results: %w", err)
	}

	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	case "csv":
		outcomes := make([]scraper.Outcome, len(results))
		for i, r := range results {
			rec := r.Record
			outcomes[i] = scraper.Outcome{
				JobID:   r.JobID,
				Success: r.Success,
				Record:  &rec,
				Err:     r.Message,
			}
		}
		return export.WriteCSV(os.Stdout, outcomes)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
