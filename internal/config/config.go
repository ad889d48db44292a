package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for clipbot.
type Config struct {
	Telegram TelegramConfig `yaml:"telegram" json:"telegram"`
	Server   ServerConfig   `yaml:"server" json:"server"`
	Download DownloadConfig `yaml:"download" json:"download"`
	Dispatch DispatchConfig `yaml:"dispatch" json:"dispatch"`
	Queue    QueueConfig    `yaml:"queue" json:"queue"`
	Store    StoreConfig    `yaml:"store" json:"store"`
	Log      LogConfig      `yaml:"log" json:"log"`
	Browser  BrowserConfig  `yaml:"browser" json:"browser"`
}

type TelegramConfig struct {
	Token         string   `yaml:"token" json:"token" envconfig:"BOT_TOKEN"`
	Mode          string   `yaml:"mode" json:"mode" envconfig:"BOT_MODE"` // "webhook" | "polling"
	WebhookURL    string   `yaml:"webhookUrl" json:"webhookUrl" envconfig:"WEBHOOK_URL"`
	WebhookSecret string   `yaml:"webhookSecret" json:"webhookSecret" envconfig:"WEBHOOK_SECRET"`
	AllowFrom     []string `yaml:"allowFrom" json:"allowFrom" envconfig:"ALLOW_FROM"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" json:"host" envconfig:"HOST"`
	Port            int           `yaml:"port" json:"port" envconfig:"PORT"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" json:"shutdownTimeout" envconfig:"SHUTDOWN_TIMEOUT"`
}

type DownloadConfig struct {
	Dir         string        `yaml:"dir" json:"dir" envconfig:"DOWNLOAD_DIR"`
	YtDlpPath   string        `yaml:"ytdlpPath" json:"ytdlpPath" envconfig:"YTDLP_PATH"`
	Format      string        `yaml:"format" json:"format" envconfig:"YTDLP_FORMAT"`
	Impersonate string        `yaml:"impersonate" json:"impersonate" envconfig:"YTDLP_IMPERSONATE"`
	CookiesFile string        `yaml:"cookiesFile" json:"cookiesFile" envconfig:"COOKIES_FILE"`
	Proxy       string        `yaml:"proxy" json:"proxy" envconfig:"PROXY_URL"`
	DeviceID    string        `yaml:"deviceId" json:"deviceId" envconfig:"TIKTOK_DEVICE_ID"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout" envconfig:"DOWNLOAD_TIMEOUT"` // 0 = no limit
	MaxWorkers  int           `yaml:"maxWorkers" json:"maxWorkers" envconfig:"MAX_CONCURRENT_DOWNLOADS"`
}

type DispatchConfig struct {
	MaxConcurrent      int     `yaml:"maxConcurrent" json:"maxConcurrent" envconfig:"MAX_CONCURRENT_UPDATES"`
	RateLimitPerMinute float64 `yaml:"rateLimitPerMinute" json:"rateLimitPerMinute" envconfig:"RATE_LIMIT_PER_MINUTE"`
	RateLimitBurst     int     `yaml:"rateLimitBurst" json:"rateLimitBurst" envconfig:"RATE_LIMIT_BURST"`
}

type QueueConfig struct {
	Size     int    `yaml:"size" json:"size" envconfig:"QUEUE_SIZE"`
	RedisURL string `yaml:"redisUrl" json:"redisUrl" envconfig:"REDIS_URL"` // empty = in-memory
	RedisKey string `yaml:"redisKey" json:"redisKey" envconfig:"REDIS_QUEUE_KEY"`
}

type StoreConfig struct {
	DBPath string `yaml:"dbPath" json:"dbPath" envconfig:"DB_PATH"` // empty = no persistence
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level" envconfig:"LOG_LEVEL"`
	Format string `yaml:"format" json:"format" envconfig:"LOG_FORMAT"` // "text" | "json"
}

type BrowserConfig struct {
	ProfileDir string `yaml:"profileDir" json:"profileDir" envconfig:"CHROME_PROFILE_DIR"`
	LoginURL   string `yaml:"loginUrl" json:"loginUrl" envconfig:"COOKIES_LOGIN_URL"`
}

// Load builds the configuration from defaults, an optional YAML file,
// an optional .env file and the process environment, in that order.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	// A missing .env is normal in production; variables come from the environment.
	_ = godotenv.Load()

	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	cfg.Download.Dir = ExpandPath(cfg.Download.Dir)
	cfg.Download.CookiesFile = ExpandPath(cfg.Download.CookiesFile)
	cfg.Store.DBPath = ExpandPath(cfg.Store.DBPath)
	cfg.Browser.ProfileDir = ExpandPath(cfg.Browser.ProfileDir)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("cannot parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays environment variables section by section. Fields whose
// variable is unset keep the value from defaults or the config file.
func applyEnv(cfg *Config) error {
	sections := []any{
		&cfg.Telegram, &cfg.Server, &cfg.Download, &cfg.Dispatch,
		&cfg.Queue, &cfg.Store, &cfg.Log, &cfg.Browser,
	}
	for _, s := range sections {
		if err := envconfig.Process("", s); err != nil {
			return err
		}
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		hasDefault := len(groups) >= 3 && groups[2] != ""

		val, exists := os.LookupEnv(groups[1])
		if !exists || val == "" {
			if hasDefault {
				return groups[2]
			}
			return match
		}
		return val
	})
}

// webhookSecretPattern is Telegram's secret token alphabet. The secret is
// also the webhook route, so gin wildcards (":" and "*") must not appear.
var webhookSecretPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,256}$`)

// Validate checks that the config has usable values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.Telegram.Mode {
	case "webhook", "polling":
	default:
		errs = append(errs, "BOT_MODE must be one of: webhook, polling")
	}
	if cfg.Telegram.WebhookURL != "" {
		if u, err := url.Parse(cfg.Telegram.WebhookURL); err != nil || u.Scheme != "https" || u.Host == "" {
			errs = append(errs, "WEBHOOK_URL must be an absolute https URL")
		}
	}
	if cfg.Telegram.WebhookSecret != "" && !webhookSecretPattern.MatchString(cfg.Telegram.WebhookSecret) {
		errs = append(errs, "WEBHOOK_SECRET may only contain A-Z, a-z, 0-9, _ and -")
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, "PORT must be between 1 and 65535")
	}
	if cfg.Download.Dir == "" {
		errs = append(errs, "DOWNLOAD_DIR must not be empty")
	}
	if cfg.Download.YtDlpPath == "" {
		errs = append(errs, "YTDLP_PATH must not be empty")
	}
	if cfg.Download.Timeout < 0 {
		errs = append(errs, "DOWNLOAD_TIMEOUT must be >= 0")
	}
	if cfg.Download.MaxWorkers < 1 || cfg.Download.MaxWorkers > 64 {
		errs = append(errs, "MAX_CONCURRENT_DOWNLOADS must be between 1 and 64")
	}
	if cfg.Download.Proxy != "" {
		if u, err := url.Parse(cfg.Download.Proxy); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, "PROXY_URL must be an absolute URL (e.g. socks5://host:1080)")
		}
	}
	if cfg.Dispatch.MaxConcurrent < 1 || cfg.Dispatch.MaxConcurrent > 1000 {
		errs = append(errs, "MAX_CONCURRENT_UPDATES must be between 1 and 1000")
	}
	if cfg.Dispatch.RateLimitPerMinute < 0 {
		errs = append(errs, "RATE_LIMIT_PER_MINUTE must be >= 0")
	}
	if cfg.Queue.Size < 1 {
		errs = append(errs, "QUEUE_SIZE must be >= 1")
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "LOG_LEVEL must be one of: debug, info, warn, error")
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, "LOG_FORMAT must be one of: text, json")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ValidateServe checks the settings only needed when talking to Telegram.
// Commands such as fetch and doctor run without them.
func ValidateServe(cfg *Config, mode string) error {
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("BOT_TOKEN is not set")
	}
	if mode == "webhook" && cfg.Telegram.WebhookURL == "" {
		return fmt.Errorf("WEBHOOK_URL is required in webhook mode")
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
