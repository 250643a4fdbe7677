package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"cloud.google.com/go/pubsub"
	gcsclient "cloud.google.com/go/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sitegrab/sitegrab/internal/api"
	"github.com/sitegrab/sitegrab/internal/clock/system"
	"github.com/sitegrab/sitegrab/internal/extract"
	collyfetcher "github.com/sitegrab/sitegrab/internal/fetcher/colly"
	"github.com/sitegrab/sitegrab/internal/hash/sha256"
	"github.com/sitegrab/sitegrab/internal/id/uuid"
	"github.com/sitegrab/sitegrab/internal/metrics"
	pubsubpublisher "github.com/sitegrab/sitegrab/internal/publisher/pubsub"
	"github.com/sitegrab/sitegrab/internal/scraper"
	"github.com/sitegrab/sitegrab/internal/sink"
	"github.com/sitegrab/sitegrab/internal/storage/gcs"
	"github.com/sitegrab/sitegrab/internal/storage/postgres"
	"github.com/sitegrab/sitegrab/internal/throttle"
)

// defaultURLs are scraped when no URL file is given.
var defaultURLs = []string{
	"https://example.com",
	"https://www.python.org",
	"https://github.com",
}

func newScrapeCmd() *cobra.Command {
	var (
		urlsFile  string
		outputDir string
	)

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Fetches a batch of URLs and writes the results",
		Long: `Reads URLs (one per line) from the given file, fetches them with a
bounded worker pool, and writes raw HTML, extracted text, JSON/CSV result
collections, and a summary report under the output directory.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if outputDir != "" {
				cfg.Output.Dir = outputDir
			}
			urls, err := loadURLs(urlsFile)
			if err != nil {
				return err
			}
			return runScrape(cmd.Context(), urls)
		},
	}

	cmd.Flags().StringVar(&urlsFile, "urls", "", "path to file containing URLs, one per line")
	cmd.Flags().StringVar(&outputDir, "output", "", "output directory for results")
	return cmd
}

func runScrape(parent context.Context, urls []string) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Init()

	runID, err := uuid.NewGenerator().NewID()
	if err != nil {
		return fmt.Errorf("generate run id: %w", err)
	}

	if cfg.Ops.MetricsAddr != "" {
		opsServer := api.NewServer(logger)
		go func() {
			if serveErr := opsServer.Serve(ctx, cfg.Ops.MetricsAddr); serveErr != nil {
				logger.Warn("ops server failed", zap.Error(serveErr))
			}
		}()
	}

	settings := cfg.Settings()
	clock := system.New()
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: settings.UserAgent,
		Timeout:   settings.Timeout,
	}, clock)
	engine := scraper.NewEngine(
		fetcher,
		throttle.New(settings.InterRequestDelay),
		scraper.NewExponentialBackoff(settings.BaseBackoff, settings.MaxBackoff),
		clock,
		settings,
		logger,
	)

	logger.Info("starting batch",
		zap.String("run_id", runID),
		zap.Int("urls", len(urls)),
		zap.Int("concurrency", settings.Concurrency),
	)

	result, err := engine.Run(ctx, urls)
	if err != nil {
		metrics.ObserveBatch("failed")
		return fmt.Errorf("run batch: %w", err)
	}
	metrics.ObserveBatch("succeeded")

	if err := persistResults(ctx, runID, result); err != nil {
		return err
	}

	logger.Info("scraping completed",
		zap.String("run_id", runID),
		zap.Int("total_urls", result.TotalInput),
		zap.Int("successful", len(result.Successes)),
		zap.Int("failed", len(result.Failures)),
		zap.Duration("duration", result.Duration),
	)
	return nil
}

func persistResults(ctx context.Context, runID string, result scraper.BatchResult) error {
	hasher := sha256.New()
	fsSink, err := sink.NewFS(cfg.Output.Dir, hasher, logger)
	if err != nil {
		return fmt.Errorf("create sink: %w", err)
	}

	pageStore, err := openPageStore(ctx)
	if err != nil {
		return err
	}
	defer pageStore.Close()

	blobStore, err := openBlobStore(ctx)
	if err != nil {
		return err
	}

	publisher, err := openPublisher(ctx)
	if err != nil {
		return err
	}
	if publisher != nil {
		defer publisher.Stop()
	}

	docs := make([]extract.Document, 0, len(result.Successes))
	for _, success := range result.Successes {
		if _, err := fsSink.SaveHTML(success.URL, success.Body); err != nil {
			logger.Warn("save html failed", zap.String("url", success.URL), zap.Error(err))
		}

		doc, err := extract.FromResponse(success)
		if err != nil {
			logger.Warn("extract failed", zap.String("url", success.URL), zap.Error(err))
		} else {
			docs = append(docs, doc)
			if _, err := fsSink.SaveText(success.URL, doc.Text); err != nil {
				logger.Warn("save text failed", zap.String("url", success.URL), zap.Error(err))
			}
		}

		archivePage(ctx, blobStore, runID, hasher, success)
		storePage(ctx, pageStore, runID, success)
		publishPage(ctx, publisher, runID, success)
	}

	for _, failure := range result.Failures {
		storeFailure(ctx, pageStore, runID, failure)
	}

	if err := fsSink.WriteResults(docs); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	if err := fsSink.WriteFailures(result.Failures); err != nil {
		return fmt.Errorf("write failures: %w", err)
	}
	report := sink.Report{
		RunID:           runID,
		TotalURLs:       result.TotalInput,
		Successful:      len(result.Successes),
		Failed:          len(result.Failures),
		DurationSeconds: result.Duration.Seconds(),
		Timestamp:       result.StartedAt.Add(result.Duration),
	}
	if err := fsSink.WriteReport(report); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func openPageStore(ctx context.Context) (*postgres.PageStore, error) {
	if cfg.DB.DSN == "" {
		return nil, nil
	}
	store, err := postgres.NewPageStore(ctx, postgres.Config{
		DSN:           cfg.DB.DSN,
		PagesTable:    cfg.DB.PagesTable,
		FailuresTable: cfg.DB.FailuresTable,
		MaxConns:      int32(cfg.DB.MaxOpenConns),
	})
	if err != nil {
		return nil, fmt.Errorf("open page store: %w", err)
	}
	return store, nil
}

func openBlobStore(ctx context.Context) (scraper.BlobStore, error) {
	if cfg.Storage.GCSBucket == "" {
		return nil, nil
	}
	client, err := gcsclient.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	store, err := gcs.New(client, gcs.Config{
		Bucket: cfg.Storage.GCSBucket,
		Prefix: cfg.Storage.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("create gcs blob store: %w", err)
	}
	return store, nil
}

func openPublisher(ctx context.Context) (*pubsubpublisher.Publisher, error) {
	if cfg.PubSub.ProjectID == "" || cfg.PubSub.TopicName == "" {
		return nil, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return pubsubpublisher.New(client.Topic(cfg.PubSub.TopicName)), nil
}

func archivePage(ctx context.Context, store scraper.BlobStore, runID string, hasher *sha256.Hasher, page scraper.FetchResponse) {
	if store == nil {
		return
	}
	path := fmt.Sprintf("%s/%s.html", runID, hasher.Short(page.Body, 16))
	uri, err := store.PutObject(ctx, path, "text/html; charset=utf-8", page.Body)
	if err != nil {
		logger.Warn("archive page failed", zap.String("url", page.URL), zap.Error(err))
		return
	}
	logger.Debug("page archived", zap.String("url", page.URL), zap.String("blob_uri", uri))
}

func storePage(ctx context.Context, store *postgres.PageStore, runID string, page scraper.FetchResponse) {
	if store == nil {
		return
	}
	err := store.StorePage(ctx, postgres.PageRow{
		RunID:      runID,
		URL:        page.URL,
		StatusCode: page.StatusCode,
		FetchedAt:  page.FetchedAt,
		DurationMs: page.Duration.Milliseconds(),
		Headers:    page.Headers,
	})
	if err != nil {
		logger.Warn("store page failed", zap.String("url", page.URL), zap.Error(err))
	}
}

func storeFailure(ctx context.Context, store *postgres.PageStore, runID string, failure scraper.Failure) {
	if store == nil {
		return
	}
	if err := store.StoreFailure(ctx, runID, failure); err != nil {
		logger.Warn("store failure failed", zap.String("url", failure.URL), zap.Error(err))
	}
}

func publishPage(ctx context.Context, publisher *pubsubpublisher.Publisher, runID string, page scraper.FetchResponse) {
	if publisher == nil {
		return
	}
	payload := map[string]any{
		"run_id":     runID,
		"url":        page.URL,
		"status":     page.StatusCode,
		"fetched_at": page.FetchedAt,
	}
	if _, err := publisher.Publish(ctx, cfg.PubSub.TopicName, payload); err != nil {
		logger.Warn("publish page failed", zap.String("url", page.URL), zap.Error(err))
	}
}

func loadURLs(path string) ([]string, error) {
	if path == "" {
		return defaultURLs, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open urls file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	var urls []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" {
			urls = append(urls, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read urls file: %w", err)
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("urls file %s contains no urls", path)
	}
	return urls, nil
}
