package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JezreelBuenconsejo/web-scraper/internal/clock/system"
	"github.com/JezreelBuenconsejo/web-scraper/internal/id/uuid"
	"github.com/JezreelBuenconsejo/web-scraper/internal/producer"
	"github.com/JezreelBuenconsejo/web-scraper/internal/scrape"
	"github.com/JezreelBuenconsejo/web-scraper/internal/strategy"
)

func newEnqueueCmd() *cobra.Command {
	var (
		jobID    string
		jobType  string
		url      string
		maxItems int
		maxPages int
		priority int
	)

	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Submit a scrape job to the shared queue",
		Long: `Registers a job and publishes it for a running serve process to pick
up. Requires the pubsub queue backend and a postgres store, since the
in-memory backends are not shared across processes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.Queue.Backend != "pubsub" {
				return errors.New("enqueue requires queue.backend=pubsub")
			}
			if cfg.DB.DSN == "" {
				return errors.New("enqueue requires db.dsn to be set")
			}

			ctx := cmd.Context()
			store, closeStore, err := buildStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			queue, closeQueue, err := buildQueue(ctx, false)
			if err != nil {
				return err
			}
			defer closeQueue()

			nav := strategy.NewNavigator(cfg.Settle(), cfg.NavTimeout(), logger)
			clock := system.New()
			registry := strategy.NewRegistry(
				strategy.NewQuotes(nav, clock, cfg.PageDelay(), logger),
				strategy.NewReddit(nav, clock, logger),
				strategy.NewTikTok(nav, clock, logger),
			)
			prod := producer.New(store, queue, registry, clock, uuid.New(), jobDefaults(), logger)

			job, err := prod.Submit(ctx, jobID, jobType, scrape.JobParameters{
				URL:      url,
				MaxItems: maxItems,
				MaxPages: maxPages,
				Priority: priority,
			})
			if err != nil {
				return fmt.Errorf("submit job: %w", err)
			}

			logger.Info("job submitted",
				zap.String("job_id", job.ID),
				zap.String("job_type", job.Type))
			fmt.Println(job.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&jobID, "id", "", "job ID (generated when empty)")
	cmd.Flags().StringVar(&jobType, "type", "", "job type: quotes, reddit or tiktok")
	cmd.Flags().StringVar(&url, "url", "", "override target URL")
	cmd.Flags().IntVar(&maxItems, "max-items", 0, "maximum records to extract")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "maximum listing pages to visit")
	cmd.Flags().IntVar(&priority, "priority", 0, "scheduling priority (0-10)")
	_ = cmd.MarkFlagRequired("type")

	return cmd
}
