package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/otaviobraga/registry-harvester/internal/enrich"
	"github.com/otaviobraga/registry-harvester/internal/logging"
)

func newEnrichCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "enrich <document...>",
		Short: "Looks up person data for extracted document ids",
		Long: `Sanitizes each document id and queries the identity lookup service,
printing one JSON object per person. Masked or malformed ids are
reported and skipped.`,
		Args: cobra.MinimumNArgs(1),

		RunE: runEnrich,
	}
}

func runEnrich(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := resolveRuntime(ctx)
	if err != nil {
		return err
	}
	cfg := rt.Config
	if !cfg.Enrich.Enabled {
		return fmt.Errorf("enrichment is disabled; set enrich.enabled")
	}

	client := enrich.New(enrich.Config{
		BaseURL: cfg.Enrich.BaseURL,
		APIKey:  cfg.Enrich.APIKey,
	}, logging.Named(rt.Logger, "enrich"))

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	var failed int
	for _, raw := range args {
		document, err := enrich.SanitizeDocument(raw)
		if err != nil {
			rt.Logger.Warn("document skipped", zap.String("document", raw), zap.Error(err))
			failed++
			continue
		}
		person, err := client.Lookup(ctx, document)
		if err != nil {
			rt.Logger.Warn("lookup failed", zap.String("document", document), zap.Error(err))
			failed++
			continue
		}
		if err := enc.Encode(person); err != nil {
			return err
		}
	}
	if failed == len(args) {
		return fmt.Errorf("no documents could be enriched")
	}
	return nil
}
