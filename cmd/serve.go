package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/recruitai/screening-agent/internal/agent"
	"github.com/recruitai/screening-agent/internal/api"
	"github.com/recruitai/screening-agent/internal/config"
	"github.com/recruitai/screening-agent/internal/export"
	"github.com/recruitai/screening-agent/internal/ingestion"
	"github.com/recruitai/screening-agent/internal/jobstore"
	"github.com/recruitai/screening-agent/internal/llm"
	"github.com/recruitai/screening-agent/internal/logger"
	"github.com/recruitai/screening-agent/internal/requirements"
	"github.com/recruitai/screening-agent/internal/review"
	"github.com/recruitai/screening-agent/internal/rolefilter"
	"github.com/recruitai/screening-agent/internal/scoring"
	"github.com/recruitai/screening-agent/internal/semantic"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the screening HTTP server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cmd.SilenceUsage = true
		return serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve() error {
	log, err := logger.New(jsonLogs, debugMode)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("opening job store: %w", err)
	}
	defer store.Close()

	client, err := llm.NewClient(ctx, cfg.Google.Project, cfg.Google.Location,
		cfg.Google.Model, cfg.Google.EmbeddingModel, log)
	if err != nil {
		return fmt.Errorf("connecting to Vertex AI: %w", err)
	}
	defer client.Close()

	scorer := scoring.NewScorer(scoring.Weights{
		Semantic:      cfg.Scoring.SemanticWeight,
		Keyword:       cfg.Scoring.KeywordWeight,
		Experience:    cfg.Scoring.ExperienceWeight,
		DefaultReqYrs: cfg.Scoring.DefaultReqYears,
	}, nil)

	reviewer, err := review.NewReviewer(client, llm.IsRateLimited, review.Options{
		Cap:         cfg.Review.Cap,
		MaxRetries:  cfg.Review.MaxRetries,
		BackoffBase: cfg.Review.BackoffBase,
		MinInterval: cfg.Review.MinInterval,
	}, log)
	if err != nil {
		return fmt.Errorf("building reviewer: %w", err)
	}

	pipeline := agent.New(store,
		ingestion.NewCommandExtractor(log),
		requirements.NewExtractor(client, cfg.Scoring.DefaultReqYears, log),
		rolefilter.NewFilter(client, cfg.Role.MatchThreshold, log),
		semantic.NewMatcher(client, cfg.Scoring.SkillThreshold, log),
		scorer,
		reviewer,
		export.NewReportExporter(cfg.ReportsDir, log),
		agent.Options{
			Workers:     cfg.Pipe.Workers,
			DefaultTopN: cfg.Pipe.DefaultTopN,
			JobTimeout:  cfg.Pipe.JobTimeout,
		}, log)

	server := api.NewServer(pipeline, store, mailSource(ctx, cfg, log), log)

	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", cfg.ListenAddr))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openStore(cfg *config.Config) (jobstore.Store, error) {
	if cfg.Store.Backend == "sqlite" {
		return jobstore.OpenSQLite(cfg.Store.Path)
	}
	return jobstore.NewMemory(), nil
}

// mailSource enables mailbox sourcing only when credentials are present.
func mailSource(ctx context.Context, cfg *config.Config, log *zap.Logger) api.MailSource {
	if _, err := os.Stat(cfg.Gmail.CredentialsFile); err != nil {
		log.Info("mailbox sourcing disabled, no credentials file",
			zap.String("path", cfg.Gmail.CredentialsFile))
		return nil
	}
	src, err := ingestion.NewGmailSource(ctx, cfg.Gmail.CredentialsFile, cfg.Gmail.TokenFile, log)
	if err != nil {
		log.Warn("mailbox sourcing disabled", zap.Error(err))
		return nil
	}
	return src
}
