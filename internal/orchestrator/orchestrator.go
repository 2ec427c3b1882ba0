package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/newsarchive-crawler/internal/archive"
	"github.com/JakeFAU/newsarchive-crawler/internal/correction"
	"github.com/JakeFAU/newsarchive-crawler/internal/crawler"
	"github.com/JakeFAU/newsarchive-crawler/internal/logging"
	"github.com/JakeFAU/newsarchive-crawler/internal/progress"
)

// State is the lifecycle position of a run.
type State string

// Run states.
const (
	StateIdle      State = "idle"
	StatePlanning  State = "planning"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateStopped   State = "stopped"
	StateFailed    State = "failed"
)

// Error kinds counted in Summary.Errors.
const (
	ErrKindSession = "session"
	ErrKindSearch  = "search"
	ErrKindFetch   = "fetch"
	ErrKindExtract = "extract"
	ErrKindStorage = "storage"
)

// ErrBusy is returned when Run is called while another run is active.
var ErrBusy = errors.New("a crawl run is already active")

// Session is the per-period browsing session.
type Session interface {
	Search(ctx context.Context, q crawler.Query, pageIndex int) (crawler.SearchPage, error)
	Extract(ctx context.Context, url string) (string, error)
	Stats() crawler.FetchStats
	Close() error
}

// SessionOpener opens a fresh Session for each period.
type SessionOpener interface {
	Open(ctx context.Context) (Session, error)
}

// ArticleStore persists articles.
type ArticleStore interface {
	Save(ctx context.Context, req archive.SaveRequest) (archive.SaveResult, error)
}

// CorrectorRegistry resolves correction methods by name.
type CorrectorRegistry interface {
	Get(name string) (correction.TextCorrector, error)
}

// Config holds run defaults.
type Config struct {
	MaxArticles     int
	PageSize        int
	MaxSearchPages  int
	StopMarker      string
	DefaultLanguage string
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Sessions   SessionOpener
	Store      ArticleStore
	Correctors CorrectorRegistry
	Emitter    progress.Emitter
	IDs        crawler.IDGenerator
	Clock      crawler.Clock
	Logger     *zap.Logger
}

// Summary reports the outcome of a run.
type Summary struct {
	RunID            string         `json:"run_id"`
	State            State          `json:"state"`
	PeriodsPlanned   int            `json:"periods_planned"`
	PeriodsCompleted int            `json:"periods_completed"`
	ArticlesSaved    int            `json:"articles_saved"`
	Skipped          int            `json:"skipped"`
	SearchCalls      int            `json:"search_calls"`
	Retries          int            `json:"retries"`
	Errors           map[string]int `json:"errors"`
	Duration         time.Duration  `json:"duration_ns"`
}

// Status is a point-in-time view of the active or last run.
type Status struct {
	RunID        string         `json:"run_id,omitempty"`
	State        State          `json:"state"`
	Query        string         `json:"query,omitempty"`
	Period       string         `json:"period,omitempty"`
	PeriodIndex  int            `json:"period_index"`
	TotalPeriods int            `json:"total_periods"`
	Article      int            `json:"article"`
	ArticleLimit int            `json:"article_limit"`
	Saved        int            `json:"saved"`
	Errors       map[string]int `json:"errors,omitempty"`
	StartedAt    time.Time      `json:"started_at,omitzero"`
	UpdatedAt    time.Time      `json:"updated_at,omitzero"`
}

// Orchestrator executes crawl tasks one at a time.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	marker Marker
	logger *zap.Logger

	mu     sync.RWMutex
	status Status
}

// New validates deps and returns an idle Orchestrator.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Sessions == nil:
		return nil, fmt.Errorf("orchestrator requires a session opener")
	case deps.Store == nil:
		return nil, fmt.Errorf("orchestrator requires an article store")
	case deps.Correctors == nil:
		return nil, fmt.Errorf("orchestrator requires a corrector registry")
	case deps.IDs == nil || deps.Clock == nil:
		return nil, fmt.Errorf("orchestrator requires an id generator and a clock")
	}
	if deps.Emitter == nil {
		deps.Emitter = progress.NopEmitter{}
	}
	if cfg.MaxArticles <= 0 {
		cfg.MaxArticles = 100
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	if cfg.MaxSearchPages <= 0 {
		cfg.MaxSearchPages = 50
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "fr"
	}
	return &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		marker: Marker{Path: cfg.StopMarker},
		logger: logging.OrNop(deps.Logger),
		status: Status{State: StateIdle},
	}, nil
}

// Snapshot returns the current status. It is safe for concurrent use.
func (o *Orchestrator) Snapshot() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s := o.status
	if s.Errors != nil {
		s.Errors = make(map[string]int, len(o.status.Errors))
		for k, v := range o.status.Errors {
			s.Errors[k] = v
		}
	}
	return s
}

// RequestStop creates the stop marker so the active run ends after its
// current article.
func (o *Orchestrator) RequestStop() error {
	return o.marker.Create()
}

// run carries the mutable state of one Run call.
type run struct {
	id        [16]byte
	task      Task
	corrector correction.TextCorrector
	language  string
	max       int
	summary   Summary
	started   time.Time
}

// Run executes t. Only planning errors are returned; per-article failures are
// counted in the summary.
func (o *Orchestrator) Run(ctx context.Context, t Task) (Summary, error) {
	if err := o.begin(t); err != nil {
		return Summary{}, err
	}

	idStr, err := o.deps.IDs.NewID()
	if err != nil {
		return o.fail(Summary{}, fmt.Errorf("%w: %w", crawler.ErrPlanning, err))
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return o.fail(Summary{}, fmt.Errorf("%w: run id: %w", crawler.ErrPlanning, err))
	}
	r := &run{
		id:      progress.UUIDToBytes(id),
		task:    t,
		started: o.deps.Clock.Now(),
		summary: Summary{RunID: idStr, Errors: map[string]int{}},
	}
	o.update(func(s *Status) {
		s.RunID = idStr
		s.StartedAt = r.started
	})

	if err := o.marker.Clear(); err != nil {
		return o.fail(r.summary, fmt.Errorf("%w: %w", crawler.ErrPlanning, err))
	}
	periods, err := Plan(t)
	if err != nil {
		return o.fail(r.summary, err)
	}
	corrector, err := o.deps.Correctors.Get(t.Correction)
	if err != nil {
		return o.fail(r.summary, fmt.Errorf("%w: %w", crawler.ErrPlanning, err))
	}
	r.corrector = corrector
	r.language = t.Language
	if r.language == "" {
		r.language = o.cfg.DefaultLanguage
	}
	r.max = t.MaxArticles
	if r.max == 0 {
		r.max = o.cfg.MaxArticles
	}
	r.summary.PeriodsPlanned = len(periods)

	o.logger.Info("crawl run started",
		zap.String("run_id", idStr),
		zap.String("query", t.Query),
		zap.Int("periods", len(periods)),
		zap.Int("max_articles", r.max),
		zap.Int("start_from", t.StartFrom),
		zap.String("correction", corrector.Name()),
	)
	o.update(func(s *Status) {
		s.State = StateRunning
		s.TotalPeriods = len(periods)
	})
	o.emit(r, progress.Event{Stage: progress.StageRunStart})
	o.emit(r, progress.Event{Stage: progress.StageScope, Total: len(periods)})

	stopped := false
	for i, p := range periods {
		if o.stopRequested(ctx) {
			stopped = true
			break
		}
		startFrom := 0
		if i == 0 {
			startFrom = t.StartFrom
		}
		if o.runPeriod(ctx, r, i+1, len(periods), p, startFrom) {
			stopped = true
			break
		}
		r.summary.PeriodsCompleted++
	}

	state := StateCompleted
	if stopped {
		state = StateStopped
	}
	return o.finish(r, state), nil
}

func (o *Orchestrator) begin(t Task) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.status.State == StatePlanning || o.status.State == StateRunning {
		return ErrBusy
	}
	o.status = Status{State: StatePlanning, Query: t.Query, UpdatedAt: o.deps.Clock.Now()}
	return nil
}

func (o *Orchestrator) fail(sum Summary, err error) (Summary, error) {
	sum.State = StateFailed
	o.update(func(s *Status) { s.State = StateFailed })
	o.logger.Error("crawl run failed", zap.String("run_id", sum.RunID), zap.Error(err))
	return sum, err
}

func (o *Orchestrator) finish(r *run, state State) Summary {
	r.summary.State = state
	r.summary.Duration = o.deps.Clock.Now().Sub(r.started)
	o.update(func(s *Status) { s.State = state })
	note := ""
	if state == StateStopped {
		note = "stop requested"
	}
	o.emit(r, progress.Event{
		Stage:   progress.StageRunDone,
		Count:   r.summary.ArticlesSaved,
		Retries: r.summary.Retries,
		State:   string(state),
		Dur:     max(r.summary.Duration, 0),
		Note:    note,
	})
	o.logger.Info("crawl run finished",
		zap.String("run_id", r.summary.RunID),
		zap.String("state", string(state)),
		zap.Int("articles_saved", r.summary.ArticlesSaved),
		zap.Int("periods_completed", r.summary.PeriodsCompleted),
		zap.Int("skipped", r.summary.Skipped),
		zap.Int("retries", r.summary.Retries),
		zap.Any("errors", r.summary.Errors),
		zap.Duration("duration", r.summary.Duration),
	)
	return r.summary
}

// runPeriod processes one period and reports whether a stop was requested.
func (o *Orchestrator) runPeriod(ctx context.Context, r *run, index, total int, p Period, startFrom int) bool {
	o.update(func(s *Status) {
		s.Period = p.Label
		s.PeriodIndex = index
		s.Article = 0
		s.ArticleLimit = 0
	})
	o.emit(r, progress.Event{Stage: progress.StagePeriodStart, Period: p.Label, Index: index, Total: total})

	sess, err := o.deps.Sessions.Open(ctx)
	if err != nil {
		o.recordError(r, ErrKindSession)
		o.logger.Error("opening browsing session failed", zap.String("period", p.Label), zap.Error(err))
		o.emit(r, progress.Event{Stage: progress.StagePeriodDone, Period: p.Label, Note: ErrKindSession})
		return o.stopRequested(ctx)
	}
	defer func() {
		r.summary.Retries += sess.Stats().Retries
		if err := sess.Close(); err != nil {
			o.logger.Warn("closing browsing session failed", zap.String("period", p.Label), zap.Error(err))
		}
	}()

	stopped := o.paginate(ctx, r, sess, p, startFrom)
	o.emit(r, progress.Event{Stage: progress.StagePeriodDone, Period: p.Label})
	return stopped
}

// paginate walks the result pages of p. Positions below startFrom are
// skipped; the whole pages before it are never requested.
func (o *Orchestrator) paginate(ctx context.Context, r *run, sess Session, p Period, startFrom int) bool {
	query := p.Query(r.task)
	pageSize := o.cfg.PageSize
	pageIndex := startFrom/pageSize + 1
	position := (pageIndex - 1) * pageSize

	page, err := sess.Search(ctx, query, pageIndex)
	r.summary.SearchCalls++
	if err != nil {
		o.recordError(r, ErrKindSearch)
		o.logger.Error("search failed", zap.String("period", p.Label), zap.Int("page", pageIndex), zap.Error(err))
		return o.stopRequested(ctx)
	}

	limit := min(page.TotalResults, startFrom+r.max)
	o.update(func(s *Status) { s.ArticleLimit = limit })
	o.emit(r, progress.Event{Stage: progress.StageResultsFound, Query: r.task.Query, Count: page.TotalResults, Total: limit})
	r.summary.Skipped += min(startFrom, limit)

	for position < limit && len(page.Results) > 0 {
		for _, result := range page.Results {
			if position >= limit {
				break
			}
			if position < startFrom {
				position++
				continue
			}
			position++
			o.processArticle(ctx, r, sess, position, limit, result)
			if o.stopRequested(ctx) {
				return true
			}
		}
		if position >= limit || pageIndex >= o.cfg.MaxSearchPages {
			break
		}
		pageIndex++
		page, err = sess.Search(ctx, query, pageIndex)
		r.summary.SearchCalls++
		if err != nil {
			o.recordError(r, ErrKindSearch)
			o.logger.Error("search failed", zap.String("period", p.Label), zap.Int("page", pageIndex), zap.Error(err))
			break
		}
	}
	return o.stopRequested(ctx)
}

func (o *Orchestrator) processArticle(ctx context.Context, r *run, sess Session, index, limit int, result crawler.SearchResult) {
	o.update(func(s *Status) { s.Article = index })
	o.emit(r, progress.Event{Stage: progress.StageArticleStart, Index: index, Total: limit})

	text, err := sess.Extract(ctx, result.URL)
	if err != nil {
		kind := ErrKindFetch
		if errors.Is(err, crawler.ErrContentNotFound) {
			kind = ErrKindExtract
		}
		o.articleFailed(r, index, kind, result, err)
		return
	}

	corrected := correction.Apply(ctx, r.corrector, text, r.language, o.logger)
	canton := ""
	if len(r.task.Cantons) > 0 {
		canton = r.task.Cantons[0]
	}
	res, err := o.deps.Store.Save(ctx, archive.SaveRequest{
		RawText:    text,
		URL:        result.URL,
		SearchTerm: r.task.Query,
		Title:      result.Title,
		Newspaper:  result.Newspaper,
		RawDate:    result.RawDate,
		Canton:     canton,
		Correction: archive.Correction{
			Text:      corrected.Text,
			Method:    corrected.Method,
			Language:  corrected.Language,
			Corrected: corrected.Corrected,
		},
	})
	if err != nil {
		o.articleFailed(r, index, ErrKindStorage, result, err)
		return
	}

	r.summary.ArticlesSaved++
	o.update(func(s *Status) { s.Saved = r.summary.ArticlesSaved })
	o.emit(r, progress.Event{Stage: progress.StageArticleSaved, Index: index, Total: limit, Path: res.VersionPath})
}

func (o *Orchestrator) articleFailed(r *run, index int, kind string, result crawler.SearchResult, err error) {
	o.recordError(r, kind)
	o.logger.Warn("article skipped",
		zap.Int("index", index),
		zap.String("kind", kind),
		zap.String("url", result.URL),
		zap.String("title", result.Title),
		zap.Error(err),
	)
	o.emit(r, progress.Event{Stage: progress.StageArticleError, Index: index, Note: kind})
}

func (o *Orchestrator) recordError(r *run, kind string) {
	r.summary.Errors[kind]++
	o.update(func(s *Status) {
		if s.Errors == nil {
			s.Errors = map[string]int{}
		}
		s.Errors[kind]++
	})
}

func (o *Orchestrator) stopRequested(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	if o.marker.Present() {
		o.logger.Info("stop marker found; stopping after current article", zap.String("marker", o.marker.Path))
		return true
	}
	return false
}

func (o *Orchestrator) update(fn func(*Status)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(&o.status)
	o.status.UpdatedAt = o.deps.Clock.Now()
}

func (o *Orchestrator) emit(r *run, evt progress.Event) {
	evt.RunID = r.id
	evt.TS = o.deps.Clock.Now()
	if evt.Query == "" {
		evt.Query = r.task.Query
	}
	o.deps.Emitter.Emit(evt)
}
