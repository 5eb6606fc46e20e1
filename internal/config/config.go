package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server" json:"server"`
	Policy      PolicyConfig      `yaml:"policy" json:"policy"`
	Pipeline    PipelineConfig    `yaml:"pipeline" json:"pipeline"`
	Persistence PersistenceConfig `yaml:"persistence" json:"persistence"`
	Redis       RedisConfig       `yaml:"redis" json:"redis"`
	Stats       StatsConfig       `yaml:"stats" json:"stats"`
	Cleanup     CleanupConfig     `yaml:"cleanup" json:"cleanup"`
	AllowList   AllowListConfig   `yaml:"allow_list" json:"allow_list"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
}

type ServerConfig struct {
	ListenAddr  string `yaml:"listen_addr" json:"listen_addr"`
	UpstreamURL string `yaml:"upstream_url" json:"upstream_url"`
	// AdminAddr vazio desliga a API admin.
	AdminAddr       string        `yaml:"admin_addr" json:"admin_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

type PolicyConfig struct {
	Window                time.Duration `yaml:"window" json:"window"`
	Limit                 int           `yaml:"limit" json:"limit"`
	NotFoundThreshold     int           `yaml:"not_found_threshold" json:"not_found_threshold"`
	NotFoundBlockDuration time.Duration `yaml:"not_found_block_duration" json:"not_found_block_duration"`
	ErrorThreshold        int           `yaml:"error_threshold" json:"error_threshold"`
	ErrorBlockDuration    time.Duration `yaml:"error_block_duration" json:"error_block_duration"`
	CountNotFoundAsErrors bool          `yaml:"count_not_found_as_errors" json:"count_not_found_as_errors"`
}

type PipelineConfig struct {
	TrustProxyHeaders    bool          `yaml:"trust_proxy_headers" json:"trust_proxy_headers"`
	KeyHeader            string        `yaml:"key_header" json:"key_header"`
	SkipPrefixes         []string      `yaml:"skip_prefixes" json:"skip_prefixes"`
	LoopbackSkipPrefixes []string      `yaml:"loopback_skip_prefixes" json:"loopback_skip_prefixes"`
	AllowListSkipPaths   []string      `yaml:"allow_list_skip_paths" json:"allow_list_skip_paths"`
	RestrictedPrefixes   []string      `yaml:"restricted_prefixes" json:"restricted_prefixes"`
	PublicPaths          []string      `yaml:"public_paths" json:"public_paths"`
	SilentBlocking       bool          `yaml:"silent_blocking" json:"silent_blocking"`
	SilentStatus         int           `yaml:"silent_status" json:"silent_status"`
	FrameAncestors       []string      `yaml:"frame_ancestors" json:"frame_ancestors"`
	SlowRequestThreshold time.Duration `yaml:"slow_request_threshold" json:"slow_request_threshold"`
}

type PersistenceConfig struct {
	// Backend: file, redis, badger ou none.
	Backend      string        `yaml:"backend" json:"backend"`
	PrimaryPath  string        `yaml:"primary_path" json:"primary_path"`
	FallbackPath string        `yaml:"fallback_path" json:"fallback_path"`
	BadgerDir    string        `yaml:"badger_dir" json:"badger_dir"`
	RedisKey     string        `yaml:"redis_key" json:"redis_key"`
	SaveDebounce time.Duration `yaml:"save_debounce" json:"save_debounce"`
	SaveTimeout  time.Duration `yaml:"save_timeout" json:"save_timeout"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"-"`
	DB       int    `yaml:"db" json:"db"`
}

type StatsConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Backend: memory ou redis.
	Backend   string        `yaml:"backend" json:"backend"`
	Prefix    string        `yaml:"prefix" json:"prefix"`
	TTL       time.Duration `yaml:"ttl" json:"ttl"`
	Bucket    string        `yaml:"bucket" json:"bucket"`
	TrackKeys bool          `yaml:"track_keys" json:"track_keys"`
}

type CleanupConfig struct {
	Interval time.Duration `yaml:"interval" json:"interval"`
	// Ticker liga a varredura em goroutine além da varredura inline.
	Ticker bool `yaml:"ticker" json:"ticker"`
}

type AllowListConfig struct {
	Whitelist       []string `yaml:"whitelist" json:"whitelist"`
	TrustedNetworks []string `yaml:"trusted_networks" json:"trusted_networks"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendBadger = "badger"
	BackendNone   = "none"
	BackendMemory = "memory"
)

var ErrRedisAddrRequired = errors.New("redis addr is required")

// Load aplica padrões, depois o arquivo YAML (opcional), depois as variáveis GUARD_*.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	loadFromEnvironment(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:      ":8080",
			AdminAddr:       "127.0.0.1:9090",
			ShutdownTimeout: 10 * time.Second,
		},
		Policy: PolicyConfig{
			Window:                60 * time.Second,
			Limit:                 120,
			NotFoundThreshold:     5,
			NotFoundBlockDuration: time.Hour,
			ErrorThreshold:        10,
			ErrorBlockDuration:    5 * time.Minute,
		},
		Pipeline: PipelineConfig{
			TrustProxyHeaders:    true,
			SkipPrefixes:         []string{"/health"},
			LoopbackSkipPrefixes: []string{"/api/v1/admin", "/api/v1/auth", "/docs", "/openapi.json"},
			AllowListSkipPaths:   []string{"/api/v1/webhooks/health"},
			SilentBlocking:       true,
			SilentStatus:         444,
			SlowRequestThreshold: 5 * time.Second,
		},
		Persistence: PersistenceConfig{
			Backend:      BackendFile,
			PrimaryPath:  filepath.Join("data", "security", "security_data.json"),
			FallbackPath: filepath.Join(os.TempDir(), "security_data.json"),
			BadgerDir:    filepath.Join("data", "security", "badger"),
			RedisKey:     "guard:snapshot",
			SaveDebounce: time.Second,
			SaveTimeout:  5 * time.Second,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Stats: StatsConfig{
			Backend: BackendMemory,
			Prefix:  "guard:stats",
			TTL:     24 * time.Hour,
			Bucket:  "minute",
		},
		Cleanup: CleanupConfig{
			Interval: time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func loadFromFile(cfg *Config, configPath string) error {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(configPath)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to unmarshal YAML config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}
	return nil
}

func loadFromEnvironment(cfg *Config) {
	cfg.Server.ListenAddr = getenvDefault("GUARD_LISTEN_ADDR", cfg.Server.ListenAddr)
	cfg.Server.UpstreamURL = getenvDefault("GUARD_UPSTREAM_URL", cfg.Server.UpstreamURL)
	if v, ok := os.LookupEnv("GUARD_ADMIN_ADDR"); ok {
		cfg.Server.AdminAddr = v
	}
	cfg.Server.ShutdownTimeout = getenvDurationDefault("GUARD_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)

	cfg.Policy.Window = getenvDurationDefault("GUARD_WINDOW", cfg.Policy.Window)
	cfg.Policy.Limit = getenvIntDefault("GUARD_LIMIT", cfg.Policy.Limit)
	cfg.Policy.NotFoundThreshold = getenvIntDefault("GUARD_NOT_FOUND_THRESHOLD", cfg.Policy.NotFoundThreshold)
	cfg.Policy.NotFoundBlockDuration = getenvDurationDefault("GUARD_NOT_FOUND_BLOCK_DURATION", cfg.Policy.NotFoundBlockDuration)
	cfg.Policy.ErrorThreshold = getenvIntDefault("GUARD_ERROR_THRESHOLD", cfg.Policy.ErrorThreshold)
	cfg.Policy.ErrorBlockDuration = getenvDurationDefault("GUARD_ERROR_BLOCK_DURATION", cfg.Policy.ErrorBlockDuration)
	cfg.Policy.CountNotFoundAsErrors = getenvBoolDefault("GUARD_COUNT_NOT_FOUND_AS_ERRORS", cfg.Policy.CountNotFoundAsErrors)

	cfg.Pipeline.TrustProxyHeaders = getenvBoolDefault("GUARD_TRUST_PROXY_HEADERS", cfg.Pipeline.TrustProxyHeaders)
	cfg.Pipeline.KeyHeader = getenvDefault("GUARD_KEY_HEADER", cfg.Pipeline.KeyHeader)
	cfg.Pipeline.SkipPrefixes = getenvListDefault("GUARD_SKIP_PREFIXES", cfg.Pipeline.SkipPrefixes)
	cfg.Pipeline.LoopbackSkipPrefixes = getenvListDefault("GUARD_LOOPBACK_SKIP_PREFIXES", cfg.Pipeline.LoopbackSkipPrefixes)
	cfg.Pipeline.AllowListSkipPaths = getenvListDefault("GUARD_ALLOW_LIST_SKIP_PATHS", cfg.Pipeline.AllowListSkipPaths)
	cfg.Pipeline.RestrictedPrefixes = getenvListDefault("GUARD_RESTRICTED_PREFIXES", cfg.Pipeline.RestrictedPrefixes)
	cfg.Pipeline.PublicPaths = getenvListDefault("GUARD_PUBLIC_PATHS", cfg.Pipeline.PublicPaths)
	cfg.Pipeline.SilentBlocking = getenvBoolDefault("GUARD_SILENT_BLOCKING", cfg.Pipeline.SilentBlocking)
	cfg.Pipeline.SilentStatus = getenvIntDefault("GUARD_SILENT_STATUS", cfg.Pipeline.SilentStatus)
	cfg.Pipeline.FrameAncestors = getenvListDefault("GUARD_FRAME_ANCESTORS", cfg.Pipeline.FrameAncestors)
	cfg.Pipeline.SlowRequestThreshold = getenvDurationDefault("GUARD_SLOW_REQUEST_THRESHOLD", cfg.Pipeline.SlowRequestThreshold)

	cfg.Persistence.Backend = strings.ToLower(getenvDefault("GUARD_PERSISTENCE_BACKEND", cfg.Persistence.Backend))
	cfg.Persistence.PrimaryPath = getenvDefault("GUARD_PERSISTENCE_PRIMARY_PATH", cfg.Persistence.PrimaryPath)
	cfg.Persistence.FallbackPath = getenvDefault("GUARD_PERSISTENCE_FALLBACK_PATH", cfg.Persistence.FallbackPath)
	cfg.Persistence.BadgerDir = getenvDefault("GUARD_PERSISTENCE_BADGER_DIR", cfg.Persistence.BadgerDir)
	cfg.Persistence.RedisKey = getenvDefault("GUARD_PERSISTENCE_REDIS_KEY", cfg.Persistence.RedisKey)
	cfg.Persistence.SaveDebounce = getenvDurationDefault("GUARD_SAVE_DEBOUNCE", cfg.Persistence.SaveDebounce)
	cfg.Persistence.SaveTimeout = getenvDurationDefault("GUARD_SAVE_TIMEOUT", cfg.Persistence.SaveTimeout)

	cfg.Redis.Addr = getenvDefault("GUARD_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getenvDefault("GUARD_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getenvIntDefault("GUARD_REDIS_DB", cfg.Redis.DB)

	cfg.Stats.Enabled = getenvBoolDefault("GUARD_STATS_ENABLED", cfg.Stats.Enabled)
	cfg.Stats.Backend = strings.ToLower(getenvDefault("GUARD_STATS_BACKEND", cfg.Stats.Backend))
	cfg.Stats.Prefix = getenvDefault("GUARD_STATS_PREFIX", cfg.Stats.Prefix)
	cfg.Stats.TTL = getenvDurationDefault("GUARD_STATS_TTL", cfg.Stats.TTL)
	cfg.Stats.Bucket = getenvDefault("GUARD_STATS_BUCKET", cfg.Stats.Bucket)
	cfg.Stats.TrackKeys = getenvBoolDefault("GUARD_STATS_TRACK_KEYS", cfg.Stats.TrackKeys)

	cfg.Cleanup.Interval = getenvDurationDefault("GUARD_CLEANUP_INTERVAL", cfg.Cleanup.Interval)
	cfg.Cleanup.Ticker = getenvBoolDefault("GUARD_CLEANUP_TICKER", cfg.Cleanup.Ticker)

	cfg.AllowList.Whitelist = getenvListDefault("GUARD_WHITELIST", cfg.AllowList.Whitelist)
	cfg.AllowList.TrustedNetworks = getenvListDefault("GUARD_TRUSTED_NETWORKS", cfg.AllowList.TrustedNetworks)

	cfg.Logging.Level = getenvDefault("GUARD_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getenvDefault("GUARD_LOG_FORMAT", cfg.Logging.Format)
}

func (c *Config) Validate() error {
	if c.Policy.Window <= 0 {
		return fmt.Errorf("window must be positive")
	}
	if c.Policy.Limit <= 0 {
		return fmt.Errorf("limit must be > 0, got %d", c.Policy.Limit)
	}
	if c.Policy.NotFoundThreshold <= 0 || c.Policy.ErrorThreshold <= 0 {
		return fmt.Errorf("error thresholds must be > 0")
	}
	if c.Policy.NotFoundBlockDuration <= 0 || c.Policy.ErrorBlockDuration <= 0 {
		return fmt.Errorf("block durations must be positive")
	}

	if s := c.Pipeline.SilentStatus; s < 100 || s > 999 {
		return fmt.Errorf("invalid silent status: %d", s)
	}

	switch c.Persistence.Backend {
	case BackendFile:
		if c.Persistence.PrimaryPath == "" && c.Persistence.FallbackPath == "" {
			return fmt.Errorf("file persistence needs at least one path")
		}
	case BackendRedis:
		if strings.TrimSpace(c.Redis.Addr) == "" {
			return fmt.Errorf("redis persistence: %w", ErrRedisAddrRequired)
		}
	case BackendBadger, BackendNone:
	default:
		return fmt.Errorf("unsupported persistence backend: %q", c.Persistence.Backend)
	}
	if c.Persistence.SaveDebounce < 0 {
		return fmt.Errorf("save debounce must be >= 0")
	}

	if c.Stats.Enabled {
		switch c.Stats.Backend {
		case BackendMemory:
		case BackendRedis:
			if strings.TrimSpace(c.Redis.Addr) == "" {
				return fmt.Errorf("redis stats: %w", ErrRedisAddrRequired)
			}
		default:
			return fmt.Errorf("unsupported stats backend: %q", c.Stats.Backend)
		}
	}

	if c.Cleanup.Interval <= 0 {
		return fmt.Errorf("cleanup interval must be positive")
	}
	return nil
}

// PersistencePaths devolve primário e fallback na ordem de tentativa, sem vazios.
func (c *Config) PersistencePaths() []string {
	var out []string
	for _, p := range []string{c.Persistence.PrimaryPath, c.Persistence.FallbackPath} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
