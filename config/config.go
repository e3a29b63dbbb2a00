// Package config loads the fetcher configuration.
//
// The webhook and page list come either from the CONFIG environment variable
// holding JSON, or from a YAML file named by CONFIG_FILE:
//
//	{"webhook_url": "https://hooks.slack.com/services/...", "fetch_urls": ["https://www.ap-siken.com/"]}
//
// Both accept an optional "schedule" key. Every other setting is an
// environment variable; see Load. Before anything is read, .env files are
// loaded: ENV_FILE if set, otherwise .env.local then .env. Variables already
// present in the environment are never overwritten by them.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/pollenjp/ipa-shiken-fetcher/logger"
)

const (
	DefaultUserAgent    = "IPAShikenFetcher/1.0"
	DefaultFetchTimeout = 30 * time.Second
)

// ErrNoSource is returned when neither CONFIG, CONFIG_FILE nor
// WEBHOOK_URL/FETCH_URLS is set.
var ErrNoSource = errors.New("no configuration source: set CONFIG, CONFIG_FILE or WEBHOOK_URL and FETCH_URLS")

// Config is the validated configuration.
type Config struct {
	WebhookURL *url.URL
	FetchURLs  []*url.URL

	// Schedule is a cron spec ("0 8 * * *", "@every 6h"). Empty runs one
	// cycle and exits.
	Schedule   string
	RunOnStart bool

	UserAgent     string
	FetchTimeout  time.Duration
	RespectRobots bool
	Proxy         ProxyConfig

	// JournalPath is the SQLite file for the delivery journal; empty disables it.
	JournalPath string

	Log logger.Config
}

// ProxyConfig describes an optional SOCKS5 proxy for page fetches.
type ProxyConfig struct {
	Addr     string
	User     string
	Password string
}

// fileConfig is the shape of CONFIG and CONFIG_FILE.
type fileConfig struct {
	WebhookURL string   `json:"webhook_url" yaml:"webhook_url"`
	FetchURLs  []string `json:"fetch_urls" yaml:"fetch_urls"`
	Schedule   string   `json:"schedule" yaml:"schedule"`
}

// Load reads .env files and the process environment. extraURLs are appended
// to the configured fetch URLs.
func Load(extraURLs ...string) (*Config, error) {
	if err := loadEnvFiles(); err != nil {
		return nil, err
	}
	return FromEnv(os.Getenv, extraURLs...)
}

func loadEnvFiles() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}

	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

// FromEnv builds the configuration from getenv without touching .env files.
func FromEnv(getenv func(string) string, extraURLs ...string) (*Config, error) {
	raw, err := readSource(getenv)
	if err != nil {
		return nil, err
	}
	raw.FetchURLs = append(raw.FetchURLs, extraURLs...)

	cfg := &Config{
		Schedule:      raw.Schedule,
		RunOnStart:    true,
		UserAgent:     DefaultUserAgent,
		FetchTimeout:  DefaultFetchTimeout,
		RespectRobots: true,
		JournalPath:   getenv("JOURNAL_PATH"),
		Proxy: ProxyConfig{
			Addr:     getenv("PROXY_ADDR"),
			User:     getenv("PROXY_USER"),
			Password: getenv("PROXY_PASSWORD"),
		},
		Log: logger.Config{Level: getenv("LOG_LEVEL")},
	}

	var errs []error

	if v := getenv("SCHEDULE"); v != "" {
		cfg.Schedule = v
	}
	if v := getenv("USER_AGENT"); v != "" {
		cfg.UserAgent = v
	}
	if v := getenv("FETCH_TIMEOUT"); v != "" {
		d, parseErr := time.ParseDuration(v)
		if parseErr != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("FETCH_TIMEOUT %q: want a positive duration", v))
		} else {
			cfg.FetchTimeout = d
		}
	}
	errs = appendBool(errs, getenv, "RUN_ON_START", &cfg.RunOnStart)
	errs = appendBool(errs, getenv, "RESPECT_ROBOTS", &cfg.RespectRobots)
	errs = appendBool(errs, getenv, "LOG_DEVELOPMENT", &cfg.Log.Development)
	if v := getenv("LOG_FILE"); v != "" {
		cfg.Log.OutputPaths = []string{"stdout", v}
	}

	cfg.WebhookURL, err = parseWebURL("webhook_url", raw.WebhookURL)
	if err != nil {
		errs = append(errs, err)
	}

	if len(raw.FetchURLs) == 0 {
		errs = append(errs, errors.New("fetch_urls: at least one URL is required"))
	}
	for i, rawURL := range raw.FetchURLs {
		u, parseErr := parseWebURL(fmt.Sprintf("fetch_urls[%d]", i), rawURL)
		if parseErr != nil {
			errs = append(errs, parseErr)
			continue
		}
		cfg.FetchURLs = append(cfg.FetchURLs, u)
	}

	if cfg.Schedule != "" {
		if _, parseErr := cron.ParseStandard(cfg.Schedule); parseErr != nil {
			errs = append(errs, fmt.Errorf("schedule %q: %w", cfg.Schedule, parseErr))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// readSource picks CONFIG_FILE, then CONFIG, then the WEBHOOK_URL/FETCH_URLS
// pair. WEBHOOK_URL and FETCH_URLS also override values from the first two.
func readSource(getenv func(string) string) (fileConfig, error) {
	var raw fileConfig

	switch {
	case getenv("CONFIG_FILE") != "":
		path := getenv("CONFIG_FILE")
		data, err := os.ReadFile(path)
		if err != nil {
			return raw, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return raw, fmt.Errorf("parse config file %s: %w", path, err)
		}
	case getenv("CONFIG") != "":
		if err := json.Unmarshal([]byte(getenv("CONFIG")), &raw); err != nil {
			return raw, fmt.Errorf("parse CONFIG: %w", err)
		}
	case getenv("WEBHOOK_URL") == "" && getenv("FETCH_URLS") == "":
		return raw, ErrNoSource
	}

	if v := getenv("WEBHOOK_URL"); v != "" {
		raw.WebhookURL = v
	}
	if v := getenv("FETCH_URLS"); v != "" {
		raw.FetchURLs = splitList(v)
	}
	return raw, nil
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

func appendBool(errs []error, getenv func(string) string, key string, dst *bool) []error {
	v := getenv(key)
	if v == "" {
		return errs
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return append(errs, fmt.Errorf("%s %q: want true or false", key, v))
	}
	*dst = b
	return errs
}

func parseWebURL(field, raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("%s: required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%s: %q is not an absolute http(s) URL", field, raw)
	}
	return u, nil
}
