package cmd

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/otaviobraga/registry-harvester/internal/logging"
	"github.com/otaviobraga/registry-harvester/internal/registry"
	"github.com/otaviobraga/registry-harvester/internal/session"
)

func newFetchCmd() *cobra.Command {
	var street string
	var enqueue bool

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Finds cadastral numbers by address search",
		Long: `Runs a paginated address search against the portal and lists the
cadastral numbers it finds. With --enqueue the ids are added to the
queue as pending jobs for a later scrape run.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFetch(cmd, street, enqueue)
		},
	}
	cmd.Flags().StringVar(&street, "street", "", "street to search for (required)")
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "add found ids to the queue")
	_ = cmd.MarkFlagRequired("street")
	return cmd
}

func runFetch(cmd *cobra.Command, street string, enqueue bool) error {
	ctx := cmd.Context()
	rt, err := resolveRuntime(ctx)
	if err != nil {
		return err
	}
	cfg := rt.Config
	logger := rt.Logger

	// A single session is enough for a sequential page walk.
	pool, err := session.NewPool(ctx, 1, session.Config{
		Headless:    cfg.Scraper.Headless,
		StepTimeout: cfg.StepTimeout(),
	}, logging.Named(logger, "session"))
	if err != nil {
		return err
	}
	defer pool.Shutdown()

	driver := registry.New(registry.Config{
		PortalURL: cfg.Portal.URL,
		KeyDelay:  cfg.KeyDelay(),
		MaxPages:  cfg.Portal.MaxPages,
	}, func(slot int) registry.Browser {
		return pool.Session(slot)
	}, logging.Named(logger, "registry"))

	rows, err := driver.LookupAddress(ctx, 0, street)
	if err != nil {
		return fmt.Errorf("address lookup: %w", err)
	}
	if len(rows) == 0 {
		logger.Info("no records found", zap.String("street", street))
		return nil
	}

	w := csv.NewWriter(os.Stdout)
	_ = w.Write([]string{"cadastral_number", "street", "number", "district"})
	for _, row := range rows {
		_ = w.Write([]string{row.CadastralNumber, row.Street, row.Number, row.District})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write results: %w", err)
	}

	if enqueue {
		ids := make([]string, 0, len(rows))
		for _, row := range rows {
			if registry.ValidateJobID(row.CadastralNumber) == nil {
				ids = append(ids, row.CadastralNumber)
			}
		}
		if err := enqueueIDs(rt, ids); err != nil {
			return err
		}
		logger.Info("ids enqueued", zap.Int("count", len(ids)))
	}
	return nil
}

// enqueueIDs adds ids as pending jobs. Only the in-process provider
// supports direct insertion; durable queues are fed by their own ingest.
func enqueueIDs(rt *Runtime, ids []string) error {
	type adder interface {
		Add(ids []string, priority bool)
	}
	q, ok := rt.Queue.(adder)
	if !ok {
		return fmt.Errorf("queue provider %q does not accept direct enqueue", rt.Config.Queue.Provider)
	}
	q.Add(ids, false)
	return nil
}
