package config

import (
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone  = "Asia/Seoul"
	configPathEnv    = "SCOURT_BOT_CONFIG"
	listURLEnv       = "SCOURT_LIST_URL"
	gubunEnv         = "SCOURT_GUBUN"
	maxPagesEnv      = "SCOURT_MAX_PAGES"
	timezoneEnv      = "SCOURT_TIMEZONE"
	scheduleHoursEnv = "SCOURT_SCHEDULE_HOURS"
	dbPathEnv        = "SCOURT_DB_PATH"
	pdfDirEnv        = "SCOURT_PDF_DIR"
	userAgentEnv     = "SCOURT_USER_AGENT"
	webhookURLEnv    = "TEAMS_WEBHOOK_URL"
	logLevelEnv      = "SCOURT_LOG_LEVEL"
)

// Config holds high-level settings required across the application.
type Config struct {
	Source        SourceConfig       `yaml:"source"`
	Pipeline      PipelineConfig     `yaml:"pipeline"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Storage       StorageConfig      `yaml:"storage"`
	Notifications NotificationConfig `yaml:"notifications"`
	Logging       LoggingConfig      `yaml:"logging"`
}

// SourceConfig describes the court list endpoint.
type SourceConfig struct {
	ListURL        string `yaml:"listUrl"`
	Gubun          string `yaml:"gubun"`
	UserAgent      string `yaml:"userAgent"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
}

// Timeout resolves the request timeout with a sane floor.
func (s SourceConfig) Timeout() time.Duration {
	seconds := s.TimeoutSeconds
	if seconds < 5 {
		seconds = 5
	}
	return time.Duration(seconds) * time.Second
}

// PipelineConfig tunes the ingestion run defaults.
type PipelineConfig struct {
	MaxPages          int   `yaml:"maxPages"`
	BootstrapSkipSend *bool `yaml:"bootstrapSkipSend"`
}

// BootstrapEnabled defaults to true when the file omits the flag.
func (p PipelineConfig) BootstrapEnabled() bool {
	if p.BootstrapSkipSend == nil {
		return true
	}
	return *p.BootstrapSkipSend
}

// SchedulerConfig defines when recurring runs fire.
type SchedulerConfig struct {
	Hours    []int          `yaml:"hours"`
	Timezone string         `yaml:"timezone"`
	location *time.Location `yaml:"-"`
}

// Location resolves the configured timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// StorageConfig points to the state database and the PDF download dir.
type StorageConfig struct {
	DBPath string `yaml:"dbPath"`
	PDFDir string `yaml:"pdfDir"`
}

// NotificationConfig encapsulates the outbound webhook.
type NotificationConfig struct {
	TeamsWebhookURL string `yaml:"teamsWebhookUrl"`
}

// LoggingConfig selects the log level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads `.env`, the YAML file (if present), and environment
// overrides, in that order of increasing precedence.
func Load() Config {
	_ = godotenv.Load()

	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else if err := yaml.Unmarshal(raw, &cfg); err != nil {
			log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			cfg = defaultConfig()
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()
	cfg.normalize()

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(listURLEnv); v != "" {
		c.Source.ListURL = v
	}
	if v := os.Getenv(gubunEnv); v != "" {
		c.Source.Gubun = v
	}
	if v := os.Getenv(userAgentEnv); v != "" {
		c.Source.UserAgent = v
	}
	if v := os.Getenv(maxPagesEnv); v != "" {
		if pages, err := strconv.Atoi(v); err == nil {
			c.Pipeline.MaxPages = pages
		}
	}
	if v := os.Getenv(timezoneEnv); v != "" {
		c.Scheduler.Timezone = v
	}
	if v := os.Getenv(scheduleHoursEnv); v != "" {
		c.Scheduler.Hours = parseHours(v)
	}
	if v := os.Getenv(dbPathEnv); v != "" {
		c.Storage.DBPath = v
	}
	if v := os.Getenv(pdfDirEnv); v != "" {
		c.Storage.PDFDir = v
	}
	if v := os.Getenv(webhookURLEnv); v != "" {
		c.Notifications.TeamsWebhookURL = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
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
		c.Scheduler.Timezone = defaultTimezone
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func (c *Config) normalize() {
	if c.Pipeline.MaxPages < 1 {
		c.Pipeline.MaxPages = defaultConfig().Pipeline.MaxPages
	}
	if len(c.Scheduler.Hours) == 0 {
		c.Scheduler.Hours = defaultConfig().Scheduler.Hours
	}
}

// parseHours reads a comma-separated hour list, dropping anything
// outside 0..23.
func parseHours(value string) []int {
	seen := map[int]struct{}{}
	var hours []int
	for _, token := range strings.Split(value, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		hour, err := strconv.Atoi(token)
		if err != nil || hour < 0 || hour > 23 {
			continue
		}
		if _, dup := seen[hour]; dup {
			continue
		}
		seen[hour] = struct{}{}
		hours = append(hours, hour)
	}
	sort.Ints(hours)
	return hours
}

func defaultConfig() Config {
	loc, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Source: SourceConfig{
			ListURL:        "https://www.scourt.go.kr/supreme/news/NewsListAction.work",
			Gubun:          "702",
			UserAgent:      "scourt-news-bot/0.1 (+https://www.scourt.go.kr)",
			TimeoutSeconds: 20,
		},
		Pipeline: PipelineConfig{MaxPages: 2},
		Scheduler: SchedulerConfig{
			Hours:    []int{10, 18},
			Timezone: defaultTimezone,
			location: loc,
		},
		Storage: StorageConfig{
			DBPath: "data/scourt_news.db",
			PDFDir: "data/pdfs",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}
