package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerPort string `yaml:"server.port"`

	// Database configuration ("memory" selects in-process stores)
	DatabaseURL string `yaml:"database.url"`

	// Performance tuning
	HTTPClientTimeout    time.Duration `yaml:"-"`
	HTTPClientTimeoutStr string        `yaml:"performance.http_client_timeout"`
	MaxIdleConns         int           `yaml:"performance.max_idle_conns"`
	MaxConnsPerHost      int           `yaml:"performance.max_conns_per_host"`

	// Scheduler configuration
	InitialDelay           time.Duration `yaml:"-"`
	InitialDelayStr        string        `yaml:"scheduler.initial_delay"`
	RenewTimeout           time.Duration `yaml:"-"`
	RenewTimeoutStr        string        `yaml:"scheduler.renew_timeout"`
	DefaultIntervalMinutes int           `yaml:"scheduler.default_interval_minutes"`

	// Activity log
	MaxLogEntries int `yaml:"activity.max_entries"`

	// Authentication
	KibanaVersion string `yaml:"auth.kibana_version"`

	// Browser integration
	BrowserEnabled     bool          `yaml:"browser.enabled"`
	DevToolsURL        string        `yaml:"browser.devtools_url"`
	BrowserHeadless    bool          `yaml:"browser.headless"`
	BrowserUserDataDir string        `yaml:"browser.user_data_dir"`
	TokenStorageKey    string        `yaml:"browser.token_key"`
	UsernameStorageKey string        `yaml:"browser.username_key"`
	BrowserTimeout     time.Duration `yaml:"-"`
	BrowserTimeoutStr  string        `yaml:"browser.timeout"`

	// API rate limiting (requests per second per client)
	APIRateLimit float64 `yaml:"api.rate_limit"`
	APIRateBurst int     `yaml:"api.rate_burst"`

	// Logging configuration
	LogDirectory  string `yaml:"logging.dir"`
	LogOutputFile string `yaml:"logging.output_file"`
	LogErrorFile  string `yaml:"logging.error_file"`

	// Bootstrap accounts imported on start
	BootstrapAccounts []AccountBootstrap `yaml:"accounts"`
}

// AccountBootstrap defines an account loaded from config
type AccountBootstrap struct {
	Alias           string `yaml:"alias"`
	LoginType       string `yaml:"login_type"`
	AdminURL        string `yaml:"admin_url"`
	KibanaVersion   string `yaml:"kbn_version"`
	UserName        string `yaml:"username"`
	Password        string `yaml:"password"`
	IntervalMinutes int    `yaml:"interval_minutes"`
	Enabled         *bool  `yaml:"enabled,omitempty"`
}

// configFile represents the YAML structure
type configFile struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Performance struct {
		HTTPClientTimeout string `yaml:"http_client_timeout"`
		MaxIdleConns      int    `yaml:"max_idle_conns"`
		MaxConnsPerHost   int    `yaml:"max_conns_per_host"`
	} `yaml:"performance"`
	Scheduler struct {
		InitialDelay           string `yaml:"initial_delay"`
		RenewTimeout           string `yaml:"renew_timeout"`
		DefaultIntervalMinutes int    `yaml:"default_interval_minutes"`
	} `yaml:"scheduler"`
	Activity struct {
		MaxEntries int `yaml:"max_entries"`
	} `yaml:"activity"`
	Auth struct {
		KibanaVersion string `yaml:"kibana_version"`
	} `yaml:"auth"`
	Browser struct {
		Enabled     *bool  `yaml:"enabled"`
		DevToolsURL string `yaml:"devtools_url"`
		Headless    *bool  `yaml:"headless"`
		UserDataDir string `yaml:"user_data_dir"`
		TokenKey    string `yaml:"token_key"`
		UsernameKey string `yaml:"username_key"`
		Timeout     string `yaml:"timeout"`
	} `yaml:"browser"`
	API struct {
		RateLimit float64 `yaml:"rate_limit"`
		RateBurst int     `yaml:"rate_burst"`
	} `yaml:"api"`
	Logging struct {
		Directory  string `yaml:"dir"`
		OutputFile string `yaml:"output_file"`
		ErrorFile  string `yaml:"error_file"`
	} `yaml:"logging"`
	Accounts []AccountBootstrap `yaml:"accounts,omitempty"`
}

// Environment variables that override the file.
const (
	EnvServerPort  = "TOKEN_RENEWER_SERVER_PORT"
	EnvDatabaseURL = "TOKEN_RENEWER_DATABASE_URL"
	EnvDevToolsURL = "TOKEN_RENEWER_DEVTOOLS_URL"
	EnvLogDir      = "TOKEN_RENEWER_LOG_DIR"
)

// Manager handles configuration loading and saving
type Manager struct {
	mu         sync.RWMutex
	config     *Config
	configPath string
	envFile    string
}

// NewManager creates a new configuration manager
func NewManager(configPath string) *Manager {
	if configPath == "" {
		configPath = DefaultPath()
	}
	return &Manager{
		configPath: configPath,
		envFile:    ".env",
	}
}

// DefaultPath prefers config/config.yaml when it exists.
func DefaultPath() string {
	if _, err := os.Stat("config/config.yaml"); err == nil {
		return "config/config.yaml"
	}
	return "config.yaml"
}

// Path returns the file the manager reads and writes.
func (m *Manager) Path() string {
	return m.configPath
}

// Load reads configuration from YAML file
func (m *Manager) Load() (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := godotenv.Load(m.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return m.createDefaultConfig()
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfgFile configFile
	if err := yaml.Unmarshal(data, &cfgFile); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg := &Config{
		ServerPort:             cfgFile.Server.Port,
		DatabaseURL:            cfgFile.Database.URL,
		HTTPClientTimeoutStr:   cfgFile.Performance.HTTPClientTimeout,
		MaxIdleConns:           cfgFile.Performance.MaxIdleConns,
		MaxConnsPerHost:        cfgFile.Performance.MaxConnsPerHost,
		InitialDelayStr:        cfgFile.Scheduler.InitialDelay,
		RenewTimeoutStr:        cfgFile.Scheduler.RenewTimeout,
		DefaultIntervalMinutes: cfgFile.Scheduler.DefaultIntervalMinutes,
		MaxLogEntries:          cfgFile.Activity.MaxEntries,
		KibanaVersion:          cfgFile.Auth.KibanaVersion,
		BrowserEnabled:         true,
		DevToolsURL:            cfgFile.Browser.DevToolsURL,
		BrowserHeadless:        true,
		BrowserUserDataDir:     cfgFile.Browser.UserDataDir,
		TokenStorageKey:        cfgFile.Browser.TokenKey,
		UsernameStorageKey:     cfgFile.Browser.UsernameKey,
		BrowserTimeoutStr:      cfgFile.Browser.Timeout,
		APIRateLimit:           cfgFile.API.RateLimit,
		APIRateBurst:           cfgFile.API.RateBurst,
		LogDirectory:           cfgFile.Logging.Directory,
		LogOutputFile:          cfgFile.Logging.OutputFile,
		LogErrorFile:           cfgFile.Logging.ErrorFile,
		BootstrapAccounts:      cfgFile.Accounts,
	}
	if cfgFile.Browser.Enabled != nil {
		cfg.BrowserEnabled = *cfgFile.Browser.Enabled
	}
	if cfgFile.Browser.Headless != nil {
		cfg.BrowserHeadless = *cfgFile.Browser.Headless
	}

	applyEnv(cfg)
	applyDefaults(cfg)

	m.config = cfg
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvServerPort)); v != "" {
		cfg.ServerPort = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDatabaseURL)); v != "" {
		cfg.DatabaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDevToolsURL)); v != "" {
		cfg.DevToolsURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogDir)); v != "" {
		cfg.LogDirectory = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8787"
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "sqlite3:./token_renewer.db"
	}
	if cfg.DefaultIntervalMinutes <= 0 {
		cfg.DefaultIntervalMinutes = 25
	}
	if cfg.MaxLogEntries <= 0 {
		cfg.MaxLogEntries = 100
	}
	if cfg.KibanaVersion == "" {
		cfg.KibanaVersion = "7.10.2"
	}
	if cfg.TokenStorageKey == "" {
		cfg.TokenStorageKey = "token"
	}
	if cfg.UsernameStorageKey == "" {
		cfg.UsernameStorageKey = "username"
	}
	if cfg.APIRateLimit <= 0 {
		cfg.APIRateLimit = 10
	}
	if cfg.APIRateBurst <= 0 {
		cfg.APIRateBurst = 20
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 50
	}
	if cfg.MaxConnsPerHost == 0 {
		cfg.MaxConnsPerHost = 10
	}
	if cfg.LogDirectory == "" {
		cfg.LogDirectory = "./logs"
	}
	if cfg.LogOutputFile == "" {
		cfg.LogOutputFile = "app.log"
	}
	if cfg.LogErrorFile == "" {
		cfg.LogErrorFile = "app.error.log"
	}

	cfg.HTTPClientTimeout = parseDuration(cfg.HTTPClientTimeoutStr, 30*time.Second)
	cfg.InitialDelay = parseDuration(cfg.InitialDelayStr, 6*time.Second)
	cfg.RenewTimeout = parseDuration(cfg.RenewTimeoutStr, 2*time.Minute)
	cfg.BrowserTimeout = parseDuration(cfg.BrowserTimeoutStr, 10*time.Second)
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Save writes configuration to YAML file
func (m *Manager) Save(cfg *Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.saveUnlocked(cfg)
}

// saveUnlocked persists config assuming caller already holds the write lock.
func (m *Manager) saveUnlocked(cfg *Config) error {
	var cfgFile configFile
	cfgFile.Server.Port = cfg.ServerPort
	cfgFile.Database.URL = cfg.DatabaseURL
	cfgFile.Performance.HTTPClientTimeout = cfg.HTTPClientTimeout.String()
	cfgFile.Performance.MaxIdleConns = cfg.MaxIdleConns
	cfgFile.Performance.MaxConnsPerHost = cfg.MaxConnsPerHost
	cfgFile.Scheduler.InitialDelay = cfg.InitialDelay.String()
	cfgFile.Scheduler.RenewTimeout = cfg.RenewTimeout.String()
	cfgFile.Scheduler.DefaultIntervalMinutes = cfg.DefaultIntervalMinutes
	cfgFile.Activity.MaxEntries = cfg.MaxLogEntries
	cfgFile.Auth.KibanaVersion = cfg.KibanaVersion
	enabled, headless := cfg.BrowserEnabled, cfg.BrowserHeadless
	cfgFile.Browser.Enabled = &enabled
	cfgFile.Browser.DevToolsURL = cfg.DevToolsURL
	cfgFile.Browser.Headless = &headless
	cfgFile.Browser.UserDataDir = cfg.BrowserUserDataDir
	cfgFile.Browser.TokenKey = cfg.TokenStorageKey
	cfgFile.Browser.UsernameKey = cfg.UsernameStorageKey
	cfgFile.Browser.Timeout = cfg.BrowserTimeout.String()
	cfgFile.API.RateLimit = cfg.APIRateLimit
	cfgFile.API.RateBurst = cfg.APIRateBurst
	cfgFile.Logging.Directory = cfg.LogDirectory
	cfgFile.Logging.OutputFile = cfg.LogOutputFile
	cfgFile.Logging.ErrorFile = cfg.LogErrorFile
	cfgFile.Accounts = cfg.BootstrapAccounts

	data, err := yaml.Marshal(&cfgFile)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	m.config = cfg
	return nil
}

// Get returns the current configuration (thread-safe)
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Reload reloads configuration from file
func (m *Manager) Reload() (*Config, error) {
	return m.Load()
}

// createDefaultConfig creates a default configuration file
func (m *Manager) createDefaultConfig() (*Config, error) {
	cfg := &Config{
		BrowserEnabled:  true,
		BrowserHeadless: true,
	}
	applyEnv(cfg)
	applyDefaults(cfg)

	if err := m.saveUnlocked(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Global config manager instance
var globalManager *Manager

// Load loads configuration using the global manager
func Load() (*Config, error) {
	return GetManager().Load()
}

// GetManager returns the global config manager
func GetManager() *Manager {
	if globalManager == nil {
		globalManager = NewManager(DefaultPath())
	}
	return globalManager
}
