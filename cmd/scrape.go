package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/otaviobraga/registry-harvester/internal/captcha"
	"github.com/otaviobraga/registry-harvester/internal/export"
	"github.com/otaviobraga/registry-harvester/internal/jobqueue"
	"github.com/otaviobraga/registry-harvester/internal/logging"
	"github.com/otaviobraga/registry-harvester/internal/registry"
	"github.com/otaviobraga/registry-harvester/internal/scraper"
	"github.com/otaviobraga/registry-harvester/internal/session"
)

func newScrapeCmd() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "scrape [job-id...]",
		Short: "Processes queued jobs through the browser pool",
		Long: `Claims pending jobs from the queue (or takes cadastral numbers as
arguments), runs them through the session pool in paced chunks, and
reports every outcome back to the queue.`,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrape(cmd, args, outputPath)
		},
	}
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "also write outcomes to a CSV file (directories get a timestamped name)")
	return cmd
}

func runScrape(cmd *cobra.Command, args []string, outputPath string) error {
	ctx := cmd.Context()
	rt, err := resolveRuntime(ctx)
	if err != nil {
		return err
	}
	cfg := rt.Config
	logger := rt.Logger

	jobs, err := gatherJobs(ctx, rt, args)
	if err != nil {
		if errors.Is(err, jobqueue.ErrNoPendingJobs) {
			logger.Info("queue is empty, nothing to do")
			return nil
		}
		return err
	}

	pool, err := session.NewPool(ctx, cfg.Scraper.PoolSize, session.Config{
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
	if cfg.Captcha.Enabled {
		driver.WithCaptcha(captcha.New(captcha.Config{
			BaseURL: cfg.Captcha.BaseURL,
			APIKey:  cfg.Captcha.APIKey,
		}, logging.Named(logger, "captcha")))
	}

	tracker := scraper.NewFailureTracker(scraper.TrackerConfig{
		Cooldown: cfg.Cooldown(),
	}, logging.Named(logger, "tracker"))

	engine := scraper.NewEngine(scraper.Config{
		PoolSize:    cfg.Scraper.PoolSize,
		RatePerHour: cfg.Scraper.RatePerHour,
	}, driver, tracker, logging.Named(logger, "engine"))

	// Explicit ids form a single block; queue-driven runs keep fetching
	// blocks until the queue is drained.
	outcomes, runErr := runBlocks(ctx, rt, engine, jobs, len(args) == 0, logger)

	if outputPath != "" {
		if info, statErr := os.Stat(outputPath); statErr == nil && info.IsDir() {
			outputPath = export.DefaultFilename(outputPath, time.Now())
		}
		if err := export.WriteCSVFile(outputPath, outcomes); err != nil {
			return fmt.Errorf("export outcomes: %w", err)
		}
		logger.Info("outcomes exported", zap.String("path", outputPath))
	}

	logger.Info("run summary", zap.String("summary", rt.Tracker.Summary()))
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("run jobs: %w", runErr)
	}
	return nil
}

// blockRunner is the engine capability the block loop needs.
type blockRunner interface {
	Run(ctx context.Context, jobIDs []string, onResult scraper.ProgressFunc) ([]scraper.Outcome, error)
}

// runBlocks processes the first block and, when refetch is set, keeps
// claiming fresh blocks until the queue reports empty.
func runBlocks(ctx context.Context, rt *Runtime, engine blockRunner, jobs []jobqueue.Job, refetch bool, logger *zap.Logger) ([]scraper.Outcome, error) {
	var all []scraper.Outcome
	for {
		outcomes, err := runBlock(ctx, rt, engine, jobs, logger)
		all = append(all, outcomes...)
		if err != nil {
			return all, err
		}
		if !refetch || ctx.Err() != nil {
			return all, nil
		}
		jobs, err = rt.Queue.FetchPending(ctx, rt.Config.Queue.FetchLimit)
		if err != nil {
			if errors.Is(err, jobqueue.ErrNoPendingJobs) {
				return all, nil
			}
			return all, err
		}
	}
}

// runBlock claims one block, runs it through the engine, and reports every
// outcome and the batch progress back to the queue.
func runBlock(ctx context.Context, rt *Runtime, engine blockRunner, jobs []jobqueue.Job, logger *zap.Logger) ([]scraper.Outcome, error) {
	if err := rt.Queue.Claim(ctx, jobs, rt.Config.Queue.WorkerTag); err != nil {
		return nil, fmt.Errorf("claim jobs: %w", err)
	}
	batchID, err := rt.Queue.CreateBatch(ctx, len(jobs))
	if err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}

	jobByID := make(map[string]jobqueue.Job, len(jobs))
	for _, j := range jobs {
		jobByID[j.ID] = j
	}

	rt.Tracker.Start(len(jobs))
	succeeded, failed := 0, 0
	onResult := func(outcome scraper.Outcome, completed, total int) {
		rt.Tracker.Observe(outcome)
		if outcome.Success {
			succeeded++
		} else {
			failed++
		}
		reportOutcome(ctx, rt, jobByID[outcome.JobID], outcome, logger)
		if err := rt.Queue.UpdateBatchProgress(ctx, batchID, completed, succeeded, failed); err != nil {
			logger.Warn("batch progress update failed", zap.Error(err))
		}
	}

	outcomes, runErr := engine.Run(ctx, jobqueue.JobIDs(jobs), onResult)
	rt.Tracker.Finish()

	if err := rt.Queue.CompleteBatch(ctx, batchID); err != nil {
		logger.Warn("batch completion failed", zap.Error(err))
	}
	return outcomes, runErr
}

func gatherJobs(ctx context.Context, rt *Runtime, args []string) ([]jobqueue.Job, error) {
	if len(args) > 0 {
		jobs := make([]jobqueue.Job, 0, len(args))
		for _, id := range args {
			if err := registry.ValidateJobID(id); err != nil {
				return nil, err
			}
			jobs = append(jobs, jobqueue.Job{ID: id})
		}
		return jobs, nil
	}
	return rt.Queue.FetchPending(ctx, rt.Config.Queue.FetchLimit)
}

func reportOutcome(ctx context.Context, rt *Runtime, job jobqueue.Job, outcome scraper.Outcome, logger *zap.Logger) {
	if err := rt.Queue.UpsertResults(ctx, []scraper.Outcome{outcome}); err != nil {
		logger.Warn("result upsert failed",
			zap.String("job_id", outcome.JobID),
			zap.Error(err),
		)
	}
	var err error
	if outcome.Success {
		err = rt.Queue.MarkSuccess(ctx, []jobqueue.Job{job})
	} else {
		err = rt.Queue.MarkError(ctx, []jobqueue.Job{job})
	}
	if err != nil {
		logger.Warn("job status update failed",
			zap.String("job_id", outcome.JobID),
			zap.Error(err),
		)
	}
}
