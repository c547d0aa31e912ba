package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AdvisoryScanner/internal/domain"
)

var envNames = []string{
	configPathEnv, logLevelEnv, databaseDSNEnv, redisAddrEnv, redisPasswordEnv,
	googleAPIKeyEnv, llmAPIKeyEnv, anthropicAPIKeyEnv, llmModelEnv,
	githubTokenEnv, ondabotTokenEnv, slackWebhookEnv, telegramTokenEnv,
	telegramChatIDEnv, kafkaBrokersEnv, s3BucketEnv,
}

// clearEnv blanks every variable Load reads. Tests using it cannot be parallel.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range envNames {
		t.Setenv(name, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	clearEnv(t)
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, BackendFile, cfg.Deduplication.Backend)
	assert.Equal(t, "data/processed.json", cfg.Deduplication.StorageFile)
	assert.Equal(t, 90*24*time.Hour, cfg.Deduplication.Retention())
	assert.Equal(t, 3, cfg.Filtering.MinScoreForLLM)
	assert.Equal(t, 1000, cfg.LLM.DescriptionLimit)
	assert.Equal(t, []domain.Severity{domain.SeverityCritical, domain.SeverityHigh}, cfg.AlertSeverityTiers())
	assert.Equal(t, "UTC", cfg.Scheduler.Location().String())
	assert.Equal(t, []string{"critical", "high", "urgent"}, groupNames(cfg.SecurityKeywords))
}

func TestLoadYAMLKeepsGroupOrder(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
deduplication:
  retention_days: 30
whitelist:
  frontend: [react, next.js]
  backend: [spring-boot, django]
  infra: [kubernetes]
scoring:
  weights:
    cve_pattern: 4
filtering:
  min_score_for_llm: 5
llm:
  timeout: 15s
scheduler:
  interval: 30m
  timezone: Europe/Berlin
notifications:
  alert_severities: [critical]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"frontend", "backend", "infra"}, groupNames(cfg.Whitelist))
	assert.Equal(t, cfg.Whitelist, cfg.TechKeywordGroups())
	assert.Equal(t, []string{"react", "next.js", "spring-boot", "django", "kubernetes"}, cfg.Whitelist.Flatten())
	assert.Equal(t, 4, cfg.Scoring.Weights["cve_pattern"])
	assert.Equal(t, 5, cfg.Filtering.MinScoreForLLM)
	assert.Equal(t, 15*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, "Europe/Berlin", cfg.Scheduler.Location().String())
	assert.Equal(t, 30, cfg.Deduplication.RetentionDays)
	assert.Equal(t, "gemma-3-12b-it", cfg.LLM.Model)
	assert.Equal(t, []domain.Severity{domain.SeverityCritical}, cfg.AlertSeverityTiers())
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(googleAPIKeyEnv, "google-key")
	t.Setenv(ondabotTokenEnv, "gh-token")
	t.Setenv(slackWebhookEnv, "https://hooks.slack.test/x")
	t.Setenv(telegramChatIDEnv, "-100123")
	t.Setenv(kafkaBrokersEnv, "k1:9092, k2:9092,")
	t.Setenv(s3BucketEnv, "snapshots")
	t.Setenv(logLevelEnv, "debug")

	path := writeConfig(t, "logging:\n  level: warn\n")
	t.Setenv(configPathEnv, path)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "google-key", cfg.LLM.APIKey)
	assert.Equal(t, "gh-token", cfg.Feeds.GitHub.Token)
	assert.Equal(t, "https://hooks.slack.test/x", cfg.Notifications.Slack.WebhookURL)
	assert.Equal(t, int64(-100123), cfg.Notifications.Telegram.ChatID)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Notifications.Kafka.Brokers)
	assert.Equal(t, "snapshots", cfg.Archive.S3.Bucket)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadAnthropicKey(t *testing.T) {
	clearEnv(t)
	t.Setenv(googleAPIKeyEnv, "google-key")
	t.Setenv(anthropicAPIKeyEnv, "anthropic-key")

	cfg, err := Load(writeConfig(t, "llm:\n  provider: anthropic\n  model: claude-sonnet-4-5\n"))
	require.NoError(t, err)
	assert.Equal(t, "anthropic-key", cfg.LLM.APIKey)
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "whitelist: [not, a, mapping]\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "deduplication:\n  retention_days: 0\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := map[string]func(*Config){
		"retention too long":  func(c *Config) { c.Deduplication.RetentionDays = 3651 },
		"unknown backend":     func(c *Config) { c.Deduplication.Backend = "mongo" },
		"sqlite without dsn":  func(c *Config) { c.Deduplication.Backend = BackendSQLite },
		"redis without addr":  func(c *Config) { c.Deduplication.Backend = BackendRedis; c.Deduplication.Redis.Addr = "" },
		"negative min score":  func(c *Config) { c.Filtering.MinScoreForLLM = -1 },
		"negative weight":     func(c *Config) { c.Scoring.Weights["urgent_keyword"] = -2 },
		"unknown provider":    func(c *Config) { c.LLM.Provider = "bard" },
		"zero desc limit":     func(c *Config) { c.LLM.DescriptionLimit = 0 },
		"negative rpm":        func(c *Config) { c.LLM.RequestsPerMinute = -1 },
		"unknown severity":    func(c *Config) { c.Notifications.AlertSeverities = []string{"severe"} },
		"interval too short":  func(c *Config) { c.Scheduler.Interval = time.Second },
		"file without a path": func(c *Config) { c.Deduplication.StorageFile = " " },
	}

	require.NoError(t, defaultConfig().Validate())
	for name, mutate := range cases {
		cfg := defaultConfig()
		mutate(&cfg)
		assert.Error(t, cfg.Validate(), name)
	}

	ok := defaultConfig()
	ok.Deduplication.Backend = BackendPostgres
	ok.Deduplication.DSN = "postgres://localhost/advisories"
	assert.NoError(t, ok.Validate())
}

func groupNames(groups domain.KeywordGroups) []string {
	names := make([]string, 0, len(groups))
	for _, g := range groups {
		names = append(names, g.Name)
	}
	return names
}
