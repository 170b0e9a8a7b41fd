package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/analysis"
	apperrors "github.com/ZanzyTHEbar/jira-dev-ranking/internal/errors"
	"github.com/ZanzyTHEbar/jira-dev-ranking/internal/monitoring"
)

// Config is the full application configuration
type Config struct {
	App       AppConfig            `yaml:"app" envconfig:"APP"`
	Server    ServerConfig         `yaml:"server" envconfig:"SERVER"`
	Redis     RedisConfig          `yaml:"redis" envconfig:"REDIS"`
	RateLimit RateLimitConfig      `yaml:"ratelimit" envconfig:"RATELIMIT"`
	Jira      JiraConfig           `yaml:"jira" envconfig:"JIRA"`
	Storage   StorageConfig        `yaml:"storage" envconfig:"STORAGE"`
	Ranking   RankingConfig        `yaml:"ranking" envconfig:"RANKING"`
	Schedule  ScheduleConfig       `yaml:"schedule" envconfig:"SCHEDULE"`
	Dashboard DashboardConfig      `yaml:"dashboard" envconfig:"DASHBOARD"`
	Logging   monitoring.LogConfig `yaml:"logging" envconfig:"LOG"`
}

// AppConfig holds process-wide settings
type AppConfig struct {
	Env     string `yaml:"env" envconfig:"ENV"`
	DataDir string `yaml:"data_dir" envconfig:"DATA_DIR"`
}

// ServerConfig configures the dashboard API
type ServerConfig struct {
	Port            string        `yaml:"port" envconfig:"PORT"`
	AllowedOrigins  []string      `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	AdminSecret     string        `yaml:"admin_secret" envconfig:"ADMIN_SECRET"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
	RefreshTimeout  time.Duration `yaml:"refresh_timeout" envconfig:"REFRESH_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

// RedisConfig locates the optional Redis used for distributed rate limiting
type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"ADDR"`
	Password string `yaml:"password" envconfig:"PASSWORD"`
	DB       int    `yaml:"db" envconfig:"DB"`
}

// RateLimitConfig bounds dashboard API traffic per client IP
type RateLimitConfig struct {
	Enabled            bool `yaml:"enabled" envconfig:"ENABLED"`
	IPLimitPerMin      int  `yaml:"ip_limit_per_min" envconfig:"IP_LIMIT_PER_MIN"`
	RefreshLimitPerMin int  `yaml:"refresh_limit_per_min" envconfig:"REFRESH_LIMIT_PER_MIN"`
	BurstMultiplier    int  `yaml:"burst_multiplier" envconfig:"BURST_MULTIPLIER"`
}

// JiraConfig holds JIRA credentials and extraction tuning
type JiraConfig struct {
	BaseURL       string        `yaml:"base_url" envconfig:"BASE_URL"`
	Email         string        `yaml:"email" envconfig:"EMAIL"`
	APIToken      string        `yaml:"api_token" envconfig:"API_TOKEN"`
	PageSize      int           `yaml:"page_size" envconfig:"PAGE_SIZE"`
	PageInterval  time.Duration `yaml:"page_interval" envconfig:"PAGE_INTERVAL"`
	Workers       int           `yaml:"workers" envconfig:"WORKERS"`
	Lookback      time.Duration `yaml:"lookback" envconfig:"LOOKBACK"`
	DailyLookback time.Duration `yaml:"daily_lookback" envconfig:"DAILY_LOOKBACK"`
	Fields        []string      `yaml:"fields" envconfig:"FIELDS"`
	Timeout       time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
}

// StorageConfig locates exports and the ranking history
type StorageConfig struct {
	IssuesDir   string `yaml:"issues_dir" envconfig:"ISSUES_DIR"`
	RankingFile string `yaml:"ranking_file" envconfig:"RANKING_FILE"`
	DatabaseDir string `yaml:"database_dir" envconfig:"DATABASE_DIR"`
	KeepRuns    int    `yaml:"keep_runs" envconfig:"KEEP_RUNS"`
}

// RankingConfig tunes the ranking engine
type RankingConfig struct {
	MinIssueCount      int      `yaml:"min_issue_count" envconfig:"MIN_ISSUE_COUNT"`
	EmailDomain        string   `yaml:"email_domain" envconfig:"EMAIL_DOMAIN"`
	OutputColumns      []string `yaml:"output_columns" envconfig:"OUTPUT_COLUMNS"`
	DailyOutputColumns []string `yaml:"daily_output_columns" envconfig:"DAILY_OUTPUT_COLUMNS"`
	LogScoringFailures bool     `yaml:"log_scoring_failures" envconfig:"LOG_SCORING_FAILURES"`
	Workers            int      `yaml:"workers" envconfig:"WORKERS"`
}

// ScheduleConfig drives the daily update job
type ScheduleConfig struct {
	Enabled  bool          `yaml:"enabled" envconfig:"ENABLED"`
	Spec     string        `yaml:"spec" envconfig:"SPEC"`
	Timezone string        `yaml:"timezone" envconfig:"TIMEZONE"`
	Timeout  time.Duration `yaml:"timeout" envconfig:"TIMEOUT"`
}

// DashboardConfig tunes dashboard reads
type DashboardConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl" envconfig:"CACHE_TTL"`
	TopN     int           `yaml:"top_n" envconfig:"TOP_N"`
}

// DefaultConfig returns the configuration used when no file or env overrides exist
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:     "development",
			DataDir: "data",
		},
		Server: ServerConfig{
			Port:            "8080",
			AllowedOrigins:  []string{"http://localhost:3000", "http://localhost:5173"},
			RequestTimeout:  30 * time.Second,
			RefreshTimeout:  10 * time.Minute,
			ShutdownTimeout: 30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:            true,
			IPLimitPerMin:      60,
			RefreshLimitPerMin: 2,
			BurstMultiplier:    2,
		},
		Jira: JiraConfig{
			PageSize:      100,
			PageInterval:  time.Second,
			Workers:       5,
			DailyLookback: 24 * time.Hour,
			Timeout:       30 * time.Second,
		},
		Storage: StorageConfig{
			IssuesDir:   filepath.Join("data", "issues"),
			RankingFile: filepath.Join("data", "developer_rankings.csv"),
			DatabaseDir: "data",
			KeepRuns:    90,
		},
		Ranking: RankingConfig{
			MinIssueCount:      analysis.DefaultMinIssueCount,
			EmailDomain:        analysis.DefaultEmailDomain,
			OutputColumns:      slices.Clone(analysis.DefaultOutputColumns),
			DailyOutputColumns: slices.Clone(analysis.DailyOutputColumns),
			LogScoringFailures: true,
			Workers:            4,
		},
		Schedule: ScheduleConfig{
			Enabled:  false,
			Spec:     "0 2 * * *",
			Timezone: "UTC",
			Timeout:  time.Hour,
		},
		Dashboard: DashboardConfig{
			CacheTTL: time.Hour,
			TopN:     10,
		},
		Logging: monitoring.LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, in that order of precedence, then validates it.
// YAML values may reference the environment as ${VAR} or ${VAR:-default}.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if filePath := resolveConfigPath(configPath); filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func resolveConfigPath(configPath string) string {
	if configPath != "" {
		return configPath
	}

	defaults := []string{
		"devrank.yaml",
		filepath.Join("config", "devrank.yaml"),
	}
	if home, err := os.UserHomeDir(); err == nil {
		defaults = append(defaults, filepath.Join(home, ".devrank", "config.yaml"))
	}

	for _, path := range defaults {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

var envPattern = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)(?::-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} with its value (empty when unset) and
// ${VAR:-default} with its value or default.
func expandEnvVars(input string) string {
	return envPattern.ReplaceAllStringFunc(input, func(match string) string {
		sub := envPattern.FindStringSubmatch(match)
		if val, ok := os.LookupEnv(sub[1]); ok {
			return val
		}
		return sub[2]
	})
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	invalid := make(map[string]string)

	if c.Server.Port == "" {
		invalid["server.port"] = "must not be empty"
	}
	if c.Server.RequestTimeout <= 0 {
		invalid["server.request_timeout"] = "must be positive"
	}
	if c.RateLimit.Enabled && c.RateLimit.IPLimitPerMin <= 0 {
		invalid["ratelimit.ip_limit_per_min"] = "must be positive when rate limiting is enabled"
	}
	if c.Jira.BaseURL != "" {
		if u, err := url.Parse(c.Jira.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			invalid["jira.base_url"] = "must be an absolute URL"
		}
	}
	if c.Jira.PageSize <= 0 || c.Jira.PageSize > 100 {
		invalid["jira.page_size"] = "must be between 1 and 100"
	}
	if c.Jira.Workers <= 0 {
		invalid["jira.workers"] = "must be positive"
	}
	if c.Jira.Lookback < 0 || c.Jira.DailyLookback < 0 {
		invalid["jira.lookback"] = "must not be negative"
	}
	if c.Storage.IssuesDir == "" {
		invalid["storage.issues_dir"] = "must not be empty"
	}
	if c.Storage.RankingFile == "" {
		invalid["storage.ranking_file"] = "must not be empty"
	}
	if c.Storage.DatabaseDir == "" {
		invalid["storage.database_dir"] = "must not be empty"
	}
	if c.Ranking.MinIssueCount <= 0 {
		invalid["ranking.min_issue_count"] = "must be positive"
	}
	if strings.TrimPrefix(c.Ranking.EmailDomain, "@") == "" {
		invalid["ranking.email_domain"] = "must not be empty"
	}
	if len(c.Ranking.OutputColumns) == 0 {
		invalid["ranking.output_columns"] = "must list at least one column"
	}
	if len(c.Ranking.DailyOutputColumns) == 0 {
		invalid["ranking.daily_output_columns"] = "must list at least one column"
	}
	if c.Schedule.Enabled {
		if _, err := cron.ParseStandard(c.Schedule.Spec); err != nil {
			invalid["schedule.spec"] = err.Error()
		}
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		invalid["schedule.timezone"] = err.Error()
	}
	if c.Dashboard.CacheTTL <= 0 {
		invalid["dashboard.cache_ttl"] = "must be positive"
	}
	if c.Dashboard.TopN <= 0 {
		invalid["dashboard.top_n"] = "must be positive"
	}

	if len(invalid) > 0 {
		return apperrors.NewConfigurationErrorWithMap(invalid)
	}
	return nil
}

// ValidateJira checks the credentials needed to extract from JIRA
func (c *Config) ValidateJira() error {
	invalid := make(map[string]string)
	if c.Jira.BaseURL == "" {
		invalid["jira.base_url"] = "JIRA_BASE_URL is required"
	}
	if c.Jira.Email == "" {
		invalid["jira.email"] = "JIRA_EMAIL is required"
	}
	if c.Jira.APIToken == "" {
		invalid["jira.api_token"] = "JIRA_API_TOKEN is required"
	}
	if len(invalid) > 0 {
		return apperrors.NewConfigurationErrorWithMap(invalid)
	}
	return nil
}

// IsProduction reports whether the app runs in production mode
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.App.Env, "production")
}

// Location returns the scheduler time zone
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
