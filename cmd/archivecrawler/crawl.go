package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/newsarchive-crawler/internal/api"
	"github.com/JakeFAU/newsarchive-crawler/internal/correction"
	"github.com/JakeFAU/newsarchive-crawler/internal/id/uuid"
	"github.com/JakeFAU/newsarchive-crawler/internal/metrics"
	"github.com/JakeFAU/newsarchive-crawler/internal/orchestrator"
	"github.com/JakeFAU/newsarchive-crawler/internal/politeness"
	"github.com/JakeFAU/newsarchive-crawler/internal/progress"
	"github.com/JakeFAU/newsarchive-crawler/internal/progress/sinks"
	"github.com/JakeFAU/newsarchive-crawler/internal/store"
)

const hubCloseTimeout = 10 * time.Second

type crawlFlags struct {
	newspapers  []string
	cantons     []string
	maxArticles int
	startFrom   int
	startYear   int
	endYear     int
	mode        string
	allTime     bool
	correction  string
	language    string
	statusAddr  string
}

func newCrawlCmd() *cobra.Command {
	var f crawlFlags
	cmd := &cobra.Command{
		Use:   "crawl <query>",
		Short: "Search the archive and store every matching article",
		Long: `Runs one crawl task: plans the search periods, pages through the
results of each period and archives every article in discovery order.
Progress lines are written to stdout; logs go to stderr. Create the stop
marker file (or POST /v1/run/stop on the status server) to stop after the
current article.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCrawl(cmd, strings.Join(args, " "), f)
		},
	}
	fl := cmd.Flags()
	fl.StringSliceVar(&f.newspapers, "newspapers", nil, "restrict the search to these newspaper codes")
	fl.StringSliceVar(&f.cantons, "cantons", nil, "restrict the search to these cantons")
	fl.IntVar(&f.maxArticles, "max-articles", 0, "articles per period (0 uses crawl.max_articles)")
	fl.IntVar(&f.startFrom, "start-from", 1, "1-based result position to resume from in the first period")
	fl.IntVar(&f.startYear, "start-year", 0, "first year of the search range")
	fl.IntVar(&f.endYear, "end-year", 0, "last year of the search range")
	fl.StringVar(&f.mode, "mode", string(orchestrator.ModeYear), "period granularity: year or decade")
	fl.BoolVar(&f.allTime, "all-time", false, "search without a date range")
	fl.StringVar(&f.correction, "correction", "", "correction method (defaults to correction.method)")
	fl.StringVar(&f.language, "language", "", "article language (defaults to correction.language)")
	fl.StringVar(&f.statusAddr, "status-addr", "", "listen address of the status server (defaults to status.addr)")
	return cmd
}

// task converts the flags to an orchestrator task.
func (f crawlFlags) task(query string, a *app) (orchestrator.Task, error) {
	if f.startFrom < 0 {
		return orchestrator.Task{}, fmt.Errorf("--start-from must be >= 1, got %d", f.startFrom)
	}
	method := f.correction
	if method == "" {
		method = a.cfg.Correction.Method
	}
	lang := f.language
	if lang == "" {
		lang = a.cfg.Correction.Language
	}
	return orchestrator.Task{
		Query:       strings.TrimSpace(query),
		Newspapers:  f.newspapers,
		Cantons:     f.cantons,
		MaxArticles: f.maxArticles,
		StartFrom:   max(f.startFrom-1, 0),
		StartYear:   f.startYear,
		EndYear:     f.endYear,
		Mode:        orchestrator.Mode(f.mode),
		AllTime:     f.allTime,
		Correction:  method,
		Language:    lang,
	}, nil
}

func runCrawl(cmd *cobra.Command, query string, f crawlFlags) error {
	a, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	logger := a.logger

	task, err := f.task(query, a)
	if err != nil {
		return err
	}
	articles, err := a.openArchive()
	if err != nil {
		return err
	}
	opener, err := a.deps.newOpener(a)
	if err != nil {
		return err
	}

	metrics.Init()
	promSink, err := sinks.NewPrometheusSink(a.deps.registerer)
	if err != nil {
		return err
	}
	hubSinks := []progress.Sink{
		sinks.NewStdoutSink(cmd.OutOrStdout()),
		sinks.NewLogSink(logger.Named("progress")),
		promSink,
	}
	var runs store.RunRepository
	if a.cfg.DB.DSN != "" {
		l, err := a.deps.newLedger(ctx, a.cfg.DB)
		if err != nil {
			logger.Warn("run ledger unavailable; continuing without it", zap.Error(err))
		} else {
			defer l.Close()
			runs = l
			hubSinks = append(hubSinks, sinks.NewLedgerSink(l, logger.Named("ledger")))
		}
	}
	hub := progress.NewHub(progress.Config{Logger: logger.Named("hub")}, hubSinks...)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), hubCloseTimeout)
		defer cancel()
		if err := hub.Close(closeCtx); err != nil {
			logger.Warn("progress hub close failed", zap.Error(err))
		}
	}()

	orch, err := orchestrator.New(orchestrator.Config{
		MaxArticles:     a.cfg.Crawl.MaxArticles,
		PageSize:        a.cfg.Site.ResultsPerPage,
		MaxSearchPages:  a.cfg.Crawl.MaxSearchPages,
		StopMarker:      a.cfg.Crawl.StopMarker,
		DefaultLanguage: a.cfg.Crawl.DefaultLanguage,
	}, orchestrator.Deps{
		Sessions:   opener,
		Store:      articles,
		Correctors: correction.FromConfig(a.cfg.Correction, logger.Named("correction")),
		Emitter:    hub,
		IDs:        uuid.New(),
		Clock:      a.deps.clock,
		Logger:     logger.Named("orchestrator"),
	})
	if err != nil {
		return err
	}

	addr := f.statusAddr
	if addr == "" {
		addr = a.cfg.Status.Addr
	}
	if addr != "" {
		srvCtx, stopServer := context.WithCancel(ctx)
		defer stopServer()
		srv := api.NewServer(orch, runs, logger.Named("api"))
		go func() {
			if err := srv.ListenAndServe(srvCtx, addr); err != nil {
				logger.Error("status server failed", zap.Error(err))
			}
		}()
	}

	summary, err := orch.Run(ctx, task)
	if err != nil {
		return err
	}
	if summary.State == orchestrator.StateStopped && errors.Is(ctx.Err(), context.Canceled) {
		logger.Info("crawl interrupted by signal")
	}
	return nil
}

func newBrowserOpener(a *app) (orchestrator.SessionOpener, error) {
	ctrl := politeness.New(politeness.ConfigFrom(a.cfg.Politeness), a.logger.Named("politeness"))
	return orchestrator.NewBrowserOpener(a.cfg, ctrl, a.logger.Named("session"))
}
