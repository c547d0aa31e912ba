package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"AdvisoryScanner/internal/domain"
)

const (
	defaultTimezone    = "UTC"
	defaultConfigFile  = "config.yaml"
	configPathEnv      = "ADVISORY_SCANNER_CONFIG"
	logLevelEnv        = "LOG_LEVEL"
	databaseDSNEnv     = "DATABASE_DSN"
	redisAddrEnv       = "REDIS_ADDR"
	redisPasswordEnv   = "REDIS_PASS"
	googleAPIKeyEnv    = "GOOGLE_API_KEY"
	llmAPIKeyEnv       = "LLM_API_KEY"
	anthropicAPIKeyEnv = "ANTHROPIC_API_KEY"
	llmModelEnv        = "LLM_MODEL"
	githubTokenEnv     = "GITHUB_TOKEN"
	ondabotTokenEnv    = "ONDABOT_TOKEN"
	slackWebhookEnv    = "SLACK_WEBHOOK_URL"
	telegramTokenEnv   = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv  = "TELEGRAM_CHAT_ID"
	kafkaBrokersEnv    = "KAFKA_BROKERS"
	s3BucketEnv        = "S3_BUCKET"
)

// Storage backends for the dedup ledger.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Relevance model providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderHTTP      = "http"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging          LoggingConfig        `yaml:"logging"`
	Feeds            FeedsConfig          `yaml:"feeds"`
	Deduplication    DeduplicationConfig  `yaml:"deduplication"`
	TechKeywords     domain.KeywordGroups `yaml:"tech_keywords"`
	Whitelist        domain.KeywordGroups `yaml:"whitelist"`
	SecurityKeywords domain.KeywordGroups `yaml:"security_keywords"`
	Scoring          ScoringConfig        `yaml:"scoring"`
	Filtering        FilteringConfig      `yaml:"filtering"`
	LLM              LLMConfig            `yaml:"llm"`
	Notifications    NotificationConfig   `yaml:"notifications"`
	Archive          ArchiveConfig        `yaml:"archive"`
	Scheduler        SchedulerConfig      `yaml:"scheduler"`
	Server           ServerConfig         `yaml:"server"`
}

// LoggingConfig selects the slog level and handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// FeedsConfig toggles the advisory sources.
type FeedsConfig struct {
	NVD           FeedConfig   `yaml:"nvd"`
	TheHackerNews FeedConfig   `yaml:"thehackernews"`
	GitHub        GitHubConfig `yaml:"github"`
}

// FeedConfig describes one RSS source.
type FeedConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

// GitHubConfig describes the GitHub Security Advisory GraphQL source.
type GitHubConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Limit   int    `yaml:"limit"`
}

// DeduplicationConfig selects where the ledger lives and how long ids are kept.
type DeduplicationConfig struct {
	Backend       string      `yaml:"backend"`
	StorageFile   string      `yaml:"storage_file"`
	DSN           string      `yaml:"dsn"`
	Redis         RedisConfig `yaml:"redis"`
	RetentionDays int         `yaml:"retention_days"`
}

// Retention converts RetentionDays to a duration.
func (d DeduplicationConfig) Retention() time.Duration {
	return time.Duration(d.RetentionDays) * 24 * time.Hour
}

// RedisConfig wires the redis ledger backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// ScoringConfig overrides rule weights.
type ScoringConfig struct {
	Weights map[string]int `yaml:"weights"`
}

// FilteringConfig gates model analysis.
type FilteringConfig struct {
	MinScoreForLLM int `yaml:"min_score_for_llm"`
}

// LLMConfig defines how to contact the relevance model.
type LLMConfig struct {
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	DescriptionLimit  int           `yaml:"description_limit"`
	MaxTokens         int           `yaml:"max_tokens"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	Timeout           time.Duration `yaml:"timeout"`
}

// NotificationConfig encapsulates outbound channels.
type NotificationConfig struct {
	AlertSeverities []string       `yaml:"alert_severities"`
	Slack           SlackConfig    `yaml:"slack"`
	Telegram        TelegramConfig `yaml:"telegram"`
	Kafka           KafkaConfig    `yaml:"kafka"`
}

// SlackConfig holds the incoming webhook and users to mention.
type SlackConfig struct {
	WebhookURL   string   `yaml:"webhook_url"`
	MentionUsers []string `yaml:"mention_users"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

// KafkaConfig publishes alerts as JSON events.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// ArchiveConfig holds optional ledger snapshot targets.
type ArchiveConfig struct {
	S3 S3Config `yaml:"s3"`
}

// S3Config names the bucket that receives ledger snapshots.
type S3Config struct {
	Bucket       string `yaml:"bucket"`
	Prefix       string `yaml:"prefix"`
	Region       string `yaml:"region"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// SchedulerConfig defines when serve mode runs the pipeline.
type SchedulerConfig struct {
	Interval time.Duration  `yaml:"interval"`
	Timezone string         `yaml:"timezone"`
	location *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// ServerConfig is the listen address of the status API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads YAML configuration over the defaults and applies environment
// overrides. An empty path falls back to $ADVISORY_SCANNER_CONFIG, then to
// ./config.yaml when it exists.
func Load(path string) (Config, error) {
	cfg := defaultConfig()

	explicit := path != ""
	if path == "" {
		path = os.Getenv(configPathEnv)
		explicit = path != ""
	}
	if path == "" {
		path = defaultConfigFile
	}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case explicit:
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	case !errors.Is(err, os.ErrNotExist):
		log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	if c.Deduplication.RetentionDays < 1 || c.Deduplication.RetentionDays > 3650 {
		return fmt.Errorf("deduplication.retention_days must be between 1 and 3650 (got %d)", c.Deduplication.RetentionDays)
	}

	switch c.Deduplication.Backend {
	case BackendFile:
		if strings.TrimSpace(c.Deduplication.StorageFile) == "" {
			return fmt.Errorf("deduplication.storage_file is required for the file backend")
		}
	case BackendSQLite, BackendPostgres:
		if strings.TrimSpace(c.Deduplication.DSN) == "" {
			return fmt.Errorf("deduplication.dsn is required for the %s backend", c.Deduplication.Backend)
		}
	case BackendRedis:
		if strings.TrimSpace(c.Deduplication.Redis.Addr) == "" {
			return fmt.Errorf("deduplication.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("deduplication.backend must be one of file, sqlite, postgres, redis (got %q)", c.Deduplication.Backend)
	}

	if c.Filtering.MinScoreForLLM < 0 {
		return fmt.Errorf("filtering.min_score_for_llm cannot be negative (got %d)", c.Filtering.MinScoreForLLM)
	}

	for name, weight := range c.Scoring.Weights {
		if weight < 0 {
			return fmt.Errorf("scoring.weights.%s cannot be negative (got %d)", name, weight)
		}
	}

	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderHTTP:
	default:
		return fmt.Errorf("llm.provider must be one of openai, anthropic, http (got %q)", c.LLM.Provider)
	}
	if c.LLM.DescriptionLimit < 1 {
		return fmt.Errorf("llm.description_limit must be positive (got %d)", c.LLM.DescriptionLimit)
	}
	if c.LLM.RequestsPerMinute < 0 {
		return fmt.Errorf("llm.requests_per_minute cannot be negative (got %d)", c.LLM.RequestsPerMinute)
	}

	for _, label := range c.Notifications.AlertSeverities {
		switch strings.ToLower(strings.TrimSpace(label)) {
		case "critical", "high", "medium", "low":
		default:
			return fmt.Errorf("notifications.alert_severities: unknown severity %q", label)
		}
	}

	if c.Scheduler.Interval < time.Minute {
		return fmt.Errorf("scheduler.interval must be at least 1m (got %s)", c.Scheduler.Interval)
	}

	return nil
}

// TechKeywordGroups returns the tech filter keywords. The whitelist doubles
// as the tech keyword list when none is configured.
func (c Config) TechKeywordGroups() domain.KeywordGroups {
	if len(c.TechKeywords) > 0 {
		return c.TechKeywords
	}
	return c.Whitelist
}

// AlertSeverityTiers parses AlertSeverities.
func (c Config) AlertSeverityTiers() []domain.Severity {
	tiers := make([]domain.Severity, 0, len(c.Notifications.AlertSeverities))
	for _, label := range c.Notifications.AlertSeverities {
		tiers = append(tiers, domain.ParseSeverity(label))
	}
	return tiers
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Deduplication.DSN = v
	}
	if v := os.Getenv(redisAddrEnv); v != "" {
		c.Deduplication.Redis.Addr = v
	}
	if v := os.Getenv(redisPasswordEnv); v != "" {
		c.Deduplication.Redis.Password = v
	}

	if v := os.Getenv(llmModelEnv); v != "" {
		c.LLM.Model = v
	}
	if c.LLM.APIKey == "" {
		keyEnvs := []string{llmAPIKeyEnv, googleAPIKeyEnv}
		if c.LLM.Provider == ProviderAnthropic {
			keyEnvs = []string{llmAPIKeyEnv, anthropicAPIKeyEnv}
		}
		for _, env := range keyEnvs {
			if v := os.Getenv(env); v != "" {
				c.LLM.APIKey = v
				break
			}
		}
	}

	if c.Feeds.GitHub.Token == "" {
		for _, env := range []string{githubTokenEnv, ondabotTokenEnv} {
			if v := os.Getenv(env); v != "" {
				c.Feeds.GitHub.Token = v
				break
			}
		}
	}

	if v := os.Getenv(slackWebhookEnv); v != "" {
		c.Notifications.Slack.WebhookURL = v
	}
	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Notifications.Telegram.ChatID = id
		} else {
			log.Printf("config: invalid %s %q: %v", telegramChatIDEnv, v, err)
		}
	}
	if v := os.Getenv(kafkaBrokersEnv); v != "" {
		c.Notifications.Kafka.Brokers = splitList(v)
	}

	if v := os.Getenv(s3BucketEnv); v != "" {
		c.Archive.S3.Bucket = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Feeds: FeedsConfig{
			NVD:           FeedConfig{Enabled: true, URL: "https://nvd.nist.gov/feeds/xml/cve/misc/nvd-rss.xml"},
			TheHackerNews: FeedConfig{Enabled: true, URL: "https://feeds.feedburner.com/TheHackersNews"},
			GitHub:        GitHubConfig{Enabled: true, URL: "https://api.github.com/graphql", Limit: 20},
		},
		Deduplication: DeduplicationConfig{
			Backend:       BackendFile,
			StorageFile:   "data/processed.json",
			Redis:         RedisConfig{Addr: "localhost:6379", Key: "advisoryscanner:ledger"},
			RetentionDays: 90,
		},
		SecurityKeywords: DefaultSecurityKeywords(),
		Scoring:          ScoringConfig{Weights: map[string]int{}},
		Filtering:        FilteringConfig{MinScoreForLLM: 3},
		LLM: LLMConfig{
			Provider:          ProviderOpenAI,
			Model:             "gemma-3-12b-it",
			BaseURL:           "https://generativelanguage.googleapis.com/v1beta/openai/",
			DescriptionLimit:  1000,
			MaxTokens:         512,
			RequestsPerMinute: 30,
			Timeout:           60 * time.Second,
		},
		Notifications: NotificationConfig{
			AlertSeverities: []string{"critical", "high"},
			Kafka:           KafkaConfig{Topic: "security-alerts"},
		},
		Archive:   ArchiveConfig{S3: S3Config{Prefix: "advisoryscanner/"}},
		Scheduler: SchedulerConfig{Interval: time.Hour, Timezone: defaultTimezone, location: tz},
		Server:    ServerConfig{Addr: ":8080"},
	}
}

// DefaultSecurityKeywords are the severity keyword lists used by the score
// calculator when none are configured.
func DefaultSecurityKeywords() domain.KeywordGroups {
	return domain.KeywordGroups{
		{Name: "critical", Keywords: []string{
			"remote code execution",
			"rce",
			"zero-day",
			"0-day",
			"critical vulnerability",
			"authentication bypass",
			"privilege escalation",
		}},
		{Name: "high", Keywords: []string{
			"vulnerability",
			"exploit",
			"sql injection",
			"xss",
			"cross-site scripting",
			"command injection",
			"path traversal",
			"ssrf",
			"csrf",
		}},
		{Name: "urgent", Keywords: []string{
			"urgent",
			"patch now",
			"immediately",
			"actively exploited",
			"in the wild",
		}},
	}
}
