// Package config loads and validates harvester configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. HARVESTER_REDDIT_CLIENT_ID.
const EnvPrefix = "HARVESTER"

// Storage backends accepted by storage.backend.
const (
	BackendLocal  = "local"
	BackendGCS    = "gcs"
	BackendMemory = "memory"
)

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Source   SourceConfig   `mapstructure:"source"`
	Reddit   RedditConfig   `mapstructure:"reddit"`
	Enrich   EnrichConfig   `mapstructure:"enrich"`
	Crawl    CrawlConfig    `mapstructure:"crawl"`
	Progress ProgressConfig `mapstructure:"progress"`
	Storage  StorageConfig  `mapstructure:"storage"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Server   ServerConfig   `mapstructure:"server"`
}

// SourceConfig controls the primary search source.
type SourceConfig struct {
	SearchURL    string        `mapstructure:"search_url"`
	BatchSize    int           `mapstructure:"batch_size"`
	Timeout      time.Duration `mapstructure:"timeout"`
	UserAgent    string        `mapstructure:"user_agent"`
	MaxBodyBytes int           `mapstructure:"max_body_bytes"`
}

// RedditConfig holds the detail-source application credentials.
type RedditConfig struct {
	ClientID     string        `mapstructure:"client_id"`
	ClientSecret string        `mapstructure:"client_secret"`
	UserAgent    string        `mapstructure:"user_agent"`
	TokenURL     string        `mapstructure:"token_url"`
	APIBaseURL   string        `mapstructure:"api_base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	CommentLimit int           `mapstructure:"comment_limit"`
}

// EnrichConfig paces detail lookups.
type EnrichConfig struct {
	Pace           time.Duration `mapstructure:"pace"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// CrawlConfig tunes the run loop.
type CrawlConfig struct {
	// MaxRecords of zero means unbounded.
	MaxRecords  int           `mapstructure:"max_records"`
	PagePause   time.Duration `mapstructure:"page_pause"`
	PageTimeout time.Duration `mapstructure:"page_timeout"`
	RetryBase   time.Duration `mapstructure:"retry_base"`
	RetryMax    time.Duration `mapstructure:"retry_max"`
}

// Limit returns the record cap, or nil when unbounded.
func (c CrawlConfig) Limit() *int {
	if c.MaxRecords <= 0 {
		return nil
	}
	n := c.MaxRecords
	return &n
}

// ProgressConfig sizes the progress hub.
type ProgressConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
}

// StorageConfig selects where checkpoints and exports live.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls the optional run-history database. An empty DSN disables it.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// PubSubConfig holds the completion notification topic. Empty values disable it.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// Enabled reports whether notifications should be published.
func (c PubSubConfig) Enabled() bool {
	return c.ProjectID != "" || c.TopicID != ""
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ServerConfig controls the status server. An empty Addr disables it.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// NewViper returns a Viper instance with defaults and environment binding
// applied. Callers may bind flags before passing it to FromViper.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	return FromViper(NewViper(), path)
}

// FromViper reads the optional config file into v and decodes it.
func FromViper(v *viper.Viper, path string) (Config, error) {
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
	v.SetDefault("source.search_url", "https://api.pushshift.io/reddit/search/submission")
	v.SetDefault("source.batch_size", 500)
	v.SetDefault("source.timeout", "120s")
	v.SetDefault("source.user_agent", "thread-harvester/1.0")
	v.SetDefault("source.max_body_bytes", 64*1024*1024)
	v.SetDefault("reddit.client_id", "")
	v.SetDefault("reddit.client_secret", "")
	v.SetDefault("reddit.user_agent", "")
	v.SetDefault("reddit.token_url", "https://www.reddit.com/api/v1/access_token")
	v.SetDefault("reddit.api_base_url", "https://oauth.reddit.com")
	v.SetDefault("reddit.timeout", "30s")
	v.SetDefault("reddit.comment_limit", 100)
	v.SetDefault("enrich.pace", "25ms")
	v.SetDefault("enrich.request_timeout", "30s")
	v.SetDefault("crawl.max_records", 0)
	v.SetDefault("crawl.page_pause", "25ms")
	v.SetDefault("crawl.page_timeout", "0s")
	v.SetDefault("crawl.retry_base", "500ms")
	v.SetDefault("crawl.retry_max", "30s")
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 256)
	v.SetDefault("progress.max_batch_wait", "500ms")
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.local_dir", ".")
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", "30m")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_id", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("server.addr", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	if c.Source.BatchSize <= 0 {
		errs = append(errs, errors.New("source.batch_size must be > 0"))
	}
	if c.Source.Timeout <= 0 {
		errs = append(errs, errors.New("source.timeout must be > 0"))
	}
	if strings.TrimSpace(c.Reddit.ClientID) == "" {
		errs = append(errs, errors.New("reddit.client_id is required"))
	}
	if strings.TrimSpace(c.Reddit.ClientSecret) == "" {
		errs = append(errs, errors.New("reddit.client_secret is required"))
	}
	if strings.TrimSpace(c.Reddit.UserAgent) == "" {
		errs = append(errs, errors.New("reddit.user_agent is required"))
	}
	if c.Enrich.Pace < 0 {
		errs = append(errs, errors.New("enrich.pace must be >= 0"))
	}
	if c.Crawl.MaxRecords < 0 {
		errs = append(errs, errors.New("crawl.max_records must be >= 0"))
	}
	if c.Crawl.RetryBase <= 0 || c.Crawl.RetryMax < c.Crawl.RetryBase {
		errs = append(errs, errors.New("crawl.retry_base must be > 0 and <= crawl.retry_max"))
	}
	switch c.Storage.Backend {
	case BackendLocal:
		if strings.TrimSpace(c.Storage.LocalDir) == "" {
			errs = append(errs, errors.New("storage.local_dir is required for the local backend"))
		}
	case BackendGCS:
		if strings.TrimSpace(c.Storage.GCSBucket) == "" {
			errs = append(errs, errors.New("storage.gcs_bucket is required for the gcs backend"))
		}
	case BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q must be one of local, gcs, memory", c.Storage.Backend))
	}
	if c.PubSub.Enabled() && (c.PubSub.ProjectID == "" || c.PubSub.TopicID == "") {
		errs = append(errs, errors.New("pubsub.project_id and pubsub.topic_id must be set together"))
	}
	if c.DB.DSN != "" && c.DB.MinConns > c.DB.MaxConns {
		errs = append(errs, errors.New("db.min_conns must be <= db.max_conns"))
	}
	return errors.Join(errs...)
}
