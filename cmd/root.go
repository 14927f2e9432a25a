// Package cmd defines and implements the CLI commands for the harvester
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/otaviobraga/registry-harvester/internal/config"
	"github.com/otaviobraga/registry-harvester/internal/jobqueue"
	"github.com/otaviobraga/registry-harvester/internal/logging"
	"github.com/otaviobraga/registry-harvester/internal/report"
)

var cfgFile string

// runtimeKeyType is the key for storing the runtime in the context.
type runtimeKeyType string

const runtimeKey runtimeKeyType = "runtime"

// Runtime bundles the services every subcommand needs.
type Runtime struct {
	Config  config.Config
	Logger  *zap.Logger
	Queue   jobqueue.Provider
	Tracker *report.Tracker
}

// Close flushes the logger and releases the queue provider.
func (r *Runtime) Close() {
	if closer, ok := r.Queue.(interface{ Close() }); ok {
		closer.Close()
	}
	_ = r.Logger.Sync()
}

// newRuntime is the service factory; tests replace it with a fake.
var newRuntime = func(ctx context.Context) (*Runtime, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	queue, err := buildQueue(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Runtime{
		Config:  cfg,
		Logger:  logger,
		Queue:   queue,
		Tracker: report.NewTracker(),
	}, nil
}

func buildQueue(ctx context.Context, cfg config.Config, logger *zap.Logger) (jobqueue.Provider, error) {
	switch cfg.Queue.Provider {
	case "rest":
		return jobqueue.NewREST(jobqueue.RESTConfig{
			BaseURL:       cfg.Queue.BaseURL,
			APIKey:        cfg.Queue.APIKey,
			PriorityTable: cfg.Queue.PriorityTable,
			Table:         cfg.Queue.Table,
			ResultsTable:  cfg.Queue.ResultsTable,
			BatchTable:    cfg.Queue.BatchTable,
		}, logging.Named(logger, "jobqueue")), nil
	case "postgres":
		provider, err := jobqueue.NewPostgres(ctx, cfg.Queue.DSN)
		if err != nil {
			return nil, fmt.Errorf("init postgres queue: %w", err)
		}
		return provider, nil
	case "memory":
		return jobqueue.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown queue provider %q", cfg.Queue.Provider)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Bulk scraper for property-registry portals.",
		Long: `harvester drives a pool of browser sessions through property-registry
portals, turning queued cadastral numbers into extracted records at a
sustained, human-paced throughput.`,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to initialize services: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), runtimeKey, rt)
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt, ok := cmd.Context().Value(runtimeKey).(*Runtime); ok && rt != nil {
				rt.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is environment only)")

	cmd.AddCommand(newScrapeCmd())
	cmd.AddCommand(newFetchCmd())
	cmd.AddCommand(newResultsCmd())
	cmd.AddCommand(newEnrichCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

func resolveRuntime(ctx context.Context) (*Runtime, error) {
	rt, ok := ctx.Value(runtimeKey).(*Runtime)
	if !ok || rt == nil {
		return nil, errors.New("services not initialized")
	}
	return rt, nil
}

// Execute is the main entry point.
func Execute() error {
	return newRootCmd().Execute()
}
