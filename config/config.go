// Package config loads screener settings: built-in defaults, then an
// optional YAML file, then environment overrides, validated as a whole.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"ma-screener/internal/indicator"
	"ma-screener/internal/report"
)

// Config holds all application configuration.
type Config struct {
	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`

	// Provider selects the bar source: yahoo, angel, or sqlite (offline,
	// reads bars written through by earlier runs).
	Provider string `yaml:"provider" validate:"oneof=yahoo angel sqlite"`

	Angel    AngelConfig    `yaml:"angel"`
	Yahoo    YahooConfig    `yaml:"yahoo"`
	Redis    RedisConfig    `yaml:"redis"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Server   ServerConfig   `yaml:"server"`
	Universe UniverseConfig `yaml:"universe"`
	Strategy StrategyConfig `yaml:"strategy"`
	Scan     ScanConfig     `yaml:"scan"`
	Output   OutputConfig   `yaml:"output"`
	Notify   NotifyConfig   `yaml:"notify"`
	Schedule ScheduleConfig `yaml:"schedule"`
}

// AngelConfig holds Angel One SmartAPI credentials.
type AngelConfig struct {
	APIKey     string `yaml:"api_key"`
	ClientCode string `yaml:"client_code"`
	Password   string `yaml:"password"`
	TOTPSecret string `yaml:"totp_secret"`
	RootURL    string `yaml:"root_url" validate:"omitempty,url"`
	RateLimit  int    `yaml:"rate_limit" validate:"gte=1,lte=10"`
}

type YahooConfig struct {
	BaseURL   string        `yaml:"base_url" validate:"required,url"`
	RateLimit int           `yaml:"rate_limit" validate:"gte=1,lte=50"`
	Retries   int           `yaml:"retries" validate:"gte=0,lte=10"`
	Timeout   time.Duration `yaml:"timeout" validate:"gt=0"`
	Proxy     string        `yaml:"proxy" validate:"omitempty,url"`
}

type RedisConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Addr        string        `yaml:"addr" validate:"required_if=Enabled true"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db" validate:"gte=0"`
	UniverseTTL time.Duration `yaml:"universe_ttl" validate:"gte=0"`
}

type SQLiteConfig struct {
	// Path is empty to disable persistence.
	Path string `yaml:"path"`

	// WriteThrough mirrors fetched bars into the database.
	WriteThrough bool `yaml:"write_through"`

	// KeepScans prunes stored scans beyond this count; 0 keeps all.
	KeepScans int `yaml:"keep_scans" validate:"gte=0"`
}

type ServerConfig struct {
	MetricsAddr string `yaml:"metrics_addr"`
	APIAddr     string `yaml:"api_addr"`
}

// UniverseConfig selects the instruments to scan. Source is a builtin list
// name, "file", "csv" or "list".
type UniverseConfig struct {
	Source  string   `yaml:"source" validate:"oneof=nifty50 core15 file csv list"`
	File    string   `yaml:"file" validate:"required_if=Source file"`
	URL     string   `yaml:"url" validate:"omitempty,url"`
	Column  string   `yaml:"column"`
	Symbols []string `yaml:"symbols" validate:"required_if=Source list"`
	Suffix  string   `yaml:"suffix"`
}

type StrategyConfig struct {
	Name    string            `yaml:"name" validate:"required"`
	Periods indicator.Periods `yaml:"periods"`
}

type ScanConfig struct {
	Mode         string `yaml:"mode" validate:"omitempty,oneof=latest window recent"`
	Window       int    `yaml:"window" validate:"gte=0"`
	LookbackDays int    `yaml:"lookback_days" validate:"gte=0"`
	Workers      int    `yaml:"workers" validate:"gte=1,lte=64"`

	// TrimForming drops today's bar while the NSE session is still open.
	TrimForming bool `yaml:"trim_forming"`
}

type OutputConfig struct {
	CSV       string           `yaml:"csv"`
	Chart     string           `yaml:"chart"`
	Precision report.Precision `yaml:"precision"`
}

type NotifyConfig struct {
	Log            bool   `yaml:"log"`
	TelegramToken  string `yaml:"telegram_bot_token"`
	TelegramChatID string `yaml:"telegram_chat_id" validate:"required_with=TelegramToken"`
	WebhookURL     string `yaml:"webhook_url" validate:"omitempty,url"`
}

// ScheduleConfig re-runs the screen in serve mode. Cron takes robfig cron
// syntax with a seconds field and is evaluated in IST.
type ScheduleConfig struct {
	Cron string `yaml:"cron"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Provider: "yahoo",
		Angel:    AngelConfig{RateLimit: 3},
		Yahoo: YahooConfig{
			BaseURL:   "https://query1.finance.yahoo.com",
			RateLimit: 4,
			Retries:   3,
			Timeout:   30 * time.Second,
		},
		Redis:    RedisConfig{Addr: "localhost:6379", UniverseTTL: 12 * time.Hour},
		SQLite:   SQLiteConfig{KeepScans: 100},
		Server:   ServerConfig{MetricsAddr: ":9090", APIAddr: ":8080"},
		Universe: UniverseConfig{Source: "core15", Suffix: ".NS"},
		Strategy: StrategyConfig{Name: "containment"},
		Scan:     ScanConfig{Mode: "latest", LookbackDays: 400, Workers: 4, TrimForming: true},
		Output: OutputConfig{
			CSV:       report.DefaultScreenPath,
			Precision: report.DefaultPrecision,
		},
		Notify:   NotifyConfig{Log: true},
		Schedule: ScheduleConfig{Cron: "0 45 15 * * 1-5"},
	}
}

// Load builds the configuration. path may be empty; a named file that does
// not exist is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.LogLevel = strings.ToLower(getEnv("LOG_LEVEL", c.LogLevel))
	c.Provider = strings.ToLower(getEnv("SCREENER_PROVIDER", c.Provider))

	c.Angel.APIKey = getEnv("ANGEL_API_KEY", c.Angel.APIKey)
	c.Angel.ClientCode = getEnv("ANGEL_CLIENT_CODE", c.Angel.ClientCode)
	c.Angel.Password = getEnv("ANGEL_PASSWORD", c.Angel.Password)
	c.Angel.TOTPSecret = getEnv("ANGEL_TOTP_SECRET", c.Angel.TOTPSecret)

	c.Yahoo.Proxy = getEnv("HTTPS_PROXY", c.Yahoo.Proxy)

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.SQLite.Path = getEnv("SQLITE_PATH", c.SQLite.Path)
	c.Server.MetricsAddr = getEnv("METRICS_ADDR", c.Server.MetricsAddr)
	c.Server.APIAddr = getEnv("API_ADDR", c.Server.APIAddr)

	c.Universe.Source = strings.ToLower(getEnv("UNIVERSE", c.Universe.Source))
	c.Universe.File = getEnv("UNIVERSE_FILE", c.Universe.File)
	c.Universe.URL = getEnv("UNIVERSE_URL", c.Universe.URL)
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Universe.Symbols = SplitList(v)
		c.Universe.Source = "list"
	}

	c.Strategy.Name = getEnv("STRATEGY", c.Strategy.Name)
	c.Scan.Mode = strings.ToLower(getEnv("SCAN_MODE", c.Scan.Mode))

	var err error
	if c.Scan.Window, err = getEnvInt("SCAN_WINDOW", c.Scan.Window); err != nil {
		return err
	}
	if c.Scan.Workers, err = getEnvInt("SCAN_WORKERS", c.Scan.Workers); err != nil {
		return err
	}
	if c.Scan.LookbackDays, err = getEnvInt("SCAN_LOOKBACK_DAYS", c.Scan.LookbackDays); err != nil {
		return err
	}

	c.Output.CSV = getEnv("OUTPUT_CSV", c.Output.CSV)
	c.Output.Chart = getEnv("OUTPUT_CHART", c.Output.Chart)

	c.Notify.TelegramToken = getEnv("TELEGRAM_BOT_TOKEN", c.Notify.TelegramToken)
	c.Notify.TelegramChatID = getEnv("TELEGRAM_CHAT_ID", c.Notify.TelegramChatID)
	c.Notify.WebhookURL = getEnv("WEBHOOK_URL", c.Notify.WebhookURL)
	c.Schedule.Cron = getEnv("SCHEDULE_CRON", c.Schedule.Cron)
	return nil
}

var validate = validator.New()

// Validate checks field constraints and cross-section requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Provider == "angel" {
		var missing []string
		for name, v := range map[string]string{
			"angel.api_key": c.Angel.APIKey, "angel.client_code": c.Angel.ClientCode,
			"angel.password": c.Angel.Password, "angel.totp_secret": c.Angel.TOTPSecret,
		} {
			if v == "" {
				missing = append(missing, name)
			}
		}
		sort.Strings(missing)
		if len(missing) > 0 {
			return fmt.Errorf("invalid config: provider angel requires %s", strings.Join(missing, ", "))
		}
	}
	if c.Provider == "sqlite" && c.SQLite.Path == "" {
		return errors.New("invalid config: provider sqlite requires sqlite.path")
	}
	if c.SQLite.WriteThrough && c.SQLite.Path == "" {
		return errors.New("invalid config: sqlite.write_through requires sqlite.path")
	}
	if c.Universe.Source == "csv" && c.Universe.URL == "" {
		return errors.New("invalid config: universe source csv requires universe.url")
	}
	return nil
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

// SplitList splits a comma-separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
