// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Site       SiteConfig       `mapstructure:"site"`
	Selectors  SelectorConfig   `mapstructure:"selectors"`
	Politeness PolitenessConfig `mapstructure:"politeness"`
	Fetcher    FetcherConfig    `mapstructure:"fetcher"`
	Crawl      CrawlConfig      `mapstructure:"crawl"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Correction CorrectionConfig `mapstructure:"correction"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Status     StatusConfig     `mapstructure:"status"`
	DB         DBConfig         `mapstructure:"db"`
}

// SiteConfig describes the archive search endpoint.
type SiteConfig struct {
	BaseURL        string            `mapstructure:"base_url"`
	ResultsPerPage int               `mapstructure:"results_per_page"`
	SearchParams   map[string]string `mapstructure:"search_params"`
}

// SelectorConfig holds the CSS selectors used against result and article pages.
type SelectorConfig struct {
	ResultItem     string `mapstructure:"result_item"`
	ResultLink     string `mapstructure:"result_link"`
	ResultTitle    string `mapstructure:"result_title"`
	ResultInfo     string `mapstructure:"result_info"`
	ResultsSummary string `mapstructure:"results_summary"`
	ArticleText    string `mapstructure:"article_text"`
	ArticleHeaders string `mapstructure:"article_headers"`
}

// PolitenessConfig governs pacing, robots handling and backoff.
type PolitenessConfig struct {
	DelayMin          time.Duration `mapstructure:"delay_min"`
	DelayMax          time.Duration `mapstructure:"delay_max"`
	BackoffBase       time.Duration `mapstructure:"backoff_base"`
	BreakProbability  float64       `mapstructure:"break_probability"`
	BreakMin          time.Duration `mapstructure:"break_min"`
	BreakMax          time.Duration `mapstructure:"break_max"`
	RobotsUserAgent   string        `mapstructure:"robots_user_agent"`
	RespectCrawlDelay bool          `mapstructure:"respect_crawl_delay"`
	DefaultCrawlDelay time.Duration `mapstructure:"default_crawl_delay"`
	RobotsTimeout     time.Duration `mapstructure:"robots_timeout"`
}

// FetcherConfig configures the navigation engine and its retry budget.
type FetcherConfig struct {
	Engine            string        `mapstructure:"engine"`
	Headless          bool          `mapstructure:"headless"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	ScrollPauseMin    time.Duration `mapstructure:"scroll_pause_min"`
	ScrollPauseMax    time.Duration `mapstructure:"scroll_pause_max"`
}

// CrawlConfig holds crawl-task defaults.
type CrawlConfig struct {
	MaxArticles     int    `mapstructure:"max_articles"`
	MaxSearchPages  int    `mapstructure:"max_search_pages"`
	StopMarker      string `mapstructure:"stop_marker"`
	DefaultLanguage string `mapstructure:"default_language"`
}

// StorageConfig sets the archive root and topic reference strategy.
type StorageConfig struct {
	Root       string `mapstructure:"root"`
	TopicLinks string `mapstructure:"topic_links"`
}

// CorrectionConfig selects and configures the text corrector.
type CorrectionConfig struct {
	Method   string        `mapstructure:"method"`
	Language string        `mapstructure:"language"`
	Mistral  MistralConfig `mapstructure:"mistral"`
}

// MistralConfig configures the remote correction backend.
type MistralConfig struct {
	APIKey   string        `mapstructure:"api_key"`
	Endpoint string        `mapstructure:"endpoint"`
	Model    string        `mapstructure:"model"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// StatusConfig controls the optional status server.
type StatusConfig struct {
	Addr string `mapstructure:"addr"`
}

// DBConfig controls access to the optional run ledger database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ARCHIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("site.base_url", "https://www.e-newspaperarchives.ch")
	v.SetDefault("site.results_per_page", 20)
	v.SetDefault("site.search_params", map[string]string{
		"a":       "q",
		"hs":      "1",
		"results": "1",
	})
	v.SetDefault("selectors.result_item", "ol.searchresults > li")
	v.SetDefault("selectors.result_link", ".vlistentrymaincell div > a")
	v.SetDefault("selectors.result_title", "")
	v.SetDefault("selectors.result_info", ".vlistentrymaincell > div:nth-child(2)")
	v.SetDefault("selectors.results_summary", "#searchresultsheader, .searchresultsheader")
	v.SetDefault("selectors.article_text", "#documentdisplayleftpanesectiontextcontainer")
	v.SetDefault("selectors.article_headers", "h1, h2, h3, .byline, .vlistentrymaincell")
	v.SetDefault("politeness.delay_min", time.Second)
	v.SetDefault("politeness.delay_max", 3*time.Second)
	v.SetDefault("politeness.backoff_base", time.Second)
	v.SetDefault("politeness.break_probability", 0.1)
	v.SetDefault("politeness.break_min", 2*time.Second)
	v.SetDefault("politeness.break_max", 5*time.Second)
	v.SetDefault("politeness.robots_user_agent", "NewspaperResearchBot/1.0")
	v.SetDefault("politeness.respect_crawl_delay", true)
	v.SetDefault("politeness.default_crawl_delay", time.Second)
	v.SetDefault("politeness.robots_timeout", 10*time.Second)
	v.SetDefault("fetcher.engine", "chromedp")
	v.SetDefault("fetcher.headless", true)
	v.SetDefault("fetcher.navigation_timeout", 30*time.Second)
	v.SetDefault("fetcher.max_retries", 3)
	v.SetDefault("fetcher.scroll_pause_min", 100*time.Millisecond)
	v.SetDefault("fetcher.scroll_pause_max", 500*time.Millisecond)
	v.SetDefault("crawl.max_articles", 100)
	v.SetDefault("crawl.max_search_pages", 50)
	v.SetDefault("crawl.stop_marker", "stop_signal.txt")
	v.SetDefault("crawl.default_language", "fr")
	v.SetDefault("storage.root", "data")
	v.SetDefault("storage.topic_links", "auto")
	v.SetDefault("correction.method", "none")
	v.SetDefault("correction.language", "fr")
	v.SetDefault("correction.mistral.endpoint", "https://api.mistral.ai/v1/chat/completions")
	v.SetDefault("correction.mistral.model", "mistral-large-latest")
	v.SetDefault("correction.mistral.timeout", 60*time.Second)
	v.SetDefault("logging.development", true)
	v.SetDefault("db.table", "crawl_runs")
	v.SetDefault("db.max_conns", 4)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Site.BaseURL == "" {
		return fmt.Errorf("site.base_url must be set")
	}
	if c.Site.ResultsPerPage <= 0 {
		return fmt.Errorf("site.results_per_page must be > 0")
	}
	if c.Selectors.ResultItem == "" || c.Selectors.ResultLink == "" {
		return fmt.Errorf("selectors.result_item and selectors.result_link must be set")
	}
	if c.Selectors.ArticleText == "" {
		return fmt.Errorf("selectors.article_text must be set")
	}
	if c.Politeness.DelayMin < 0 || c.Politeness.DelayMax < 0 {
		return fmt.Errorf("politeness delays must be >= 0")
	}
	if c.Politeness.DelayMin > c.Politeness.DelayMax {
		return fmt.Errorf("politeness.delay_min must be <= politeness.delay_max")
	}
	if c.Politeness.BreakProbability < 0 || c.Politeness.BreakProbability > 1 {
		return fmt.Errorf("politeness.break_probability must be within [0,1]")
	}
	if c.Fetcher.MaxRetries < 1 {
		return fmt.Errorf("fetcher.max_retries must be >= 1")
	}
	switch c.Fetcher.Engine {
	case "chromedp", "colly":
	default:
		return fmt.Errorf("fetcher.engine must be chromedp or colly, got %q", c.Fetcher.Engine)
	}
	if c.Crawl.MaxArticles <= 0 {
		return fmt.Errorf("crawl.max_articles must be > 0")
	}
	if c.Crawl.StopMarker == "" {
		return fmt.Errorf("crawl.stop_marker must be set")
	}
	if c.Storage.Root == "" {
		return fmt.Errorf("storage.root must be set")
	}
	switch c.Storage.TopicLinks {
	case "auto", "symlink", "pointer":
	default:
		return fmt.Errorf("storage.topic_links must be auto, symlink or pointer, got %q", c.Storage.TopicLinks)
	}
	return nil
}
