package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/newsarchive-crawler/internal/archive"
	"github.com/JakeFAU/newsarchive-crawler/internal/clock/system"
	"github.com/JakeFAU/newsarchive-crawler/internal/config"
	"github.com/JakeFAU/newsarchive-crawler/internal/crawler"
	"github.com/JakeFAU/newsarchive-crawler/internal/hash/md5"
	"github.com/JakeFAU/newsarchive-crawler/internal/logging"
	"github.com/JakeFAU/newsarchive-crawler/internal/orchestrator"
	"github.com/JakeFAU/newsarchive-crawler/internal/storage/postgres"
	"github.com/JakeFAU/newsarchive-crawler/internal/store"
)

// deps holds the process-wide collaborators commands build on. Tests replace
// them to avoid launching browsers or touching the default registry.
type deps struct {
	registerer prometheus.Registerer
	clock      crawler.Clock
	newLogger  func(development bool) (*zap.Logger, error)
	newOpener  func(a *app) (orchestrator.SessionOpener, error)
	newLedger  func(ctx context.Context, cfg config.DBConfig) (ledger, error)
}

// ledger is a run repository that owns a connection.
type ledger interface {
	store.RunRepository
	Close()
}

func defaultDeps() deps {
	return deps{
		registerer: prometheus.DefaultRegisterer,
		clock:      system.New(),
		newLogger:  logging.New,
		newOpener:  newBrowserOpener,
		newLedger:  openLedger,
	}
}

// app is the per-invocation state shared by subcommands.
type app struct {
	deps   deps
	cfg    config.Config
	logger *zap.Logger
}

type appKeyType struct{}

func newRootCmd(d deps) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "archivecrawler",
		Short: "Crawl a historical newspaper archive into versioned article records.",
		Long: `archivecrawler searches a newspaper archive for a query, walks the result
pages period by period, extracts and optionally corrects each article's OCR
text, and stores raw captures, versioned records and topic references on disk.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := d.newLogger(cfg.Logging.Development)
			if err != nil {
				return err
			}
			zap.ReplaceGlobals(logger)
			a := &app{deps: d, cfg: cfg, logger: logger}
			cmd.SetContext(context.WithValue(cmd.Context(), appKeyType{}, a))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if a, err := resolveApp(cmd.Context()); err == nil {
				_ = a.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newVersionsCmd())
	cmd.AddCommand(newRecorrectCmd())
	cmd.AddCommand(newRunsCmd())
	return cmd
}

func resolveApp(ctx context.Context) (*app, error) {
	if ctx == nil {
		return nil, errors.New("application not initialized")
	}
	a, ok := ctx.Value(appKeyType{}).(*app)
	if !ok || a == nil {
		return nil, errors.New("application not initialized")
	}
	return a, nil
}

func (a *app) openArchive() (*archive.Store, error) {
	return archive.New(archive.Config{
		Root:            a.cfg.Storage.Root,
		TopicLinks:      a.cfg.Storage.TopicLinks,
		DefaultLanguage: a.cfg.Crawl.DefaultLanguage,
	}, md5.New(), a.deps.clock, a.logger.Named("archive"))
}

func openLedger(ctx context.Context, cfg config.DBConfig) (ledger, error) {
	runs, err := postgres.NewRunStore(ctx, postgres.Config{
		DSN:      cfg.DSN,
		Table:    cfg.Table,
		MaxConns: cfg.MaxConns,
	})
	if err != nil {
		return nil, err
	}
	if err := runs.EnsureSchema(ctx); err != nil {
		runs.Close()
		return nil, err
	}
	return runs, nil
}
