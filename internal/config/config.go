package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultSyncInterval = time.Hour
	defaultCachePath    = "graphcsvsync.db"
	defaultMaxRetries   = 5
	defaultBaseDelaySec = 2
	defaultMaxDelaySec  = 60
	defaultRatePerSec   = 4
	defaultDelimiter    = ","
	defaultReportDir    = "reports"
)

const (
	ModeAddOnly   = "add-only"
	ModeSyncExact = "sync-exact"
)

type Config struct {
	SyncInterval time.Duration `yaml:"syncInterval"`
	CachePath    string        `yaml:"cachePath"`
	Log          Log           `yaml:"log"`
	Graph        Graph         `yaml:"graph"`
	Retry        Retry         `yaml:"retry"`
	Reconcile    Reconcile     `yaml:"reconcile"`
	CSV          CSV           `yaml:"csv"`
	Report       Report        `yaml:"report"`
}

type Graph struct {
	TenantID   string   `yaml:"tenantId"`
	ClientID   string   `yaml:"clientId"`
	AuthMethod string   `yaml:"authMethod"` // device-code, client-secret, browser
	Secret     string   `yaml:"secret"`
	Scopes     []string `yaml:"scopes"`
	GroupID    string   `yaml:"groupId"`
	RatePerSec float64  `yaml:"ratePerSec"`
}

type Retry struct {
	MaxRetries   int `yaml:"maxRetries"`
	BaseDelaySec int `yaml:"baseDelaySec"`
	MaxDelaySec  int `yaml:"maxDelaySec"`
}

type Reconcile struct {
	Mode               string `yaml:"mode"`
	DryRun             bool   `yaml:"dryRun"`
	ConfirmDestructive bool   `yaml:"confirmDestructive"`
}

type CSV struct {
	Delimiter string `yaml:"delimiter"`
}

type Report struct {
	Dir string `yaml:"dir"`
}

type Log struct {
	Level string `yaml:"level"`
	Env   string `yaml:"env"`
}

func Load(path string) (*Config, error) {
	configFile := true
	_, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Default().Warn("fail find config file, proceeding", "path", path)
		configFile = false
	}

	var cfg Config
	if configFile {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}

		decoder := yaml.NewDecoder(f)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, err
		}
		if err := f.Close(); err != nil {
			slog.Default().Warn("fail close config file", "path", path, "error", err)
		}
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.SyncInterval == 0 {
		cfg.SyncInterval = defaultSyncInterval
	}
	if cfg.CachePath == "" {
		cfg.CachePath = defaultCachePath
	}
	if cfg.Retry.MaxRetries == 0 {
		cfg.Retry.MaxRetries = defaultMaxRetries
	}
	if cfg.Retry.BaseDelaySec == 0 {
		cfg.Retry.BaseDelaySec = defaultBaseDelaySec
	}
	if cfg.Retry.MaxDelaySec == 0 {
		cfg.Retry.MaxDelaySec = defaultMaxDelaySec
	}
	if cfg.Reconcile.Mode == "" {
		cfg.Reconcile.Mode = ModeAddOnly
	}
	if cfg.Graph.AuthMethod == "" {
		cfg.Graph.AuthMethod = "device-code"
	}
	if cfg.Graph.RatePerSec == 0 {
		cfg.Graph.RatePerSec = defaultRatePerSec
	}
	if len(cfg.Graph.Scopes) == 0 {
		cfg.Graph.Scopes = []string{"https://graph.microsoft.com/.default"}
	}
	if cfg.CSV.Delimiter == "" {
		cfg.CSV.Delimiter = defaultDelimiter
	}
	if cfg.Report.Dir == "" {
		cfg.Report.Dir = defaultReportDir
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Env == "" {
		cfg.Log.Env = "prod"
	}
}

func (cfg *Config) applyEnv() {
	if tenant := os.Getenv("GRATBOX_TENANT_ID"); tenant != "" {
		cfg.Graph.TenantID = tenant
	}
	if client := os.Getenv("GRATBOX_CLIENT_ID"); client != "" {
		cfg.Graph.ClientID = client
	}
	if secret := os.Getenv("GRATBOX_CLIENT_SECRET"); secret != "" {
		cfg.Graph.Secret = secret
	}
	if method := os.Getenv("GRATBOX_AUTH_METHOD"); method != "" {
		cfg.Graph.AuthMethod = method
	}
	if group := os.Getenv("GRATBOX_GROUP_ID"); group != "" {
		cfg.Graph.GroupID = group
	}
	if scopes := os.Getenv("GRATBOX_SCOPES"); scopes != "" {
		cfg.Graph.Scopes = strings.Split(scopes, ",")
	}
	if interval := os.Getenv("GRATBOX_SYNC_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			cfg.SyncInterval = d
		} else {
			slog.Default().Warn("fail parse sync interval to duration from string", "interval", interval, "error", err)
		}
	}
	if cachePath := os.Getenv("GRATBOX_CACHE_PATH"); cachePath != "" {
		cfg.CachePath = cachePath
	}
	if retries := os.Getenv("GRATBOX_MAX_RETRIES"); retries != "" {
		if n, err := strconv.Atoi(retries); err == nil {
			cfg.Retry.MaxRetries = n
		} else {
			slog.Default().Warn("fail parse max retries to int from string", "maxRetries", retries, "error", err)
		}
	}
	if mode := os.Getenv("GRATBOX_MODE"); mode != "" {
		cfg.Reconcile.Mode = mode
	}
	if dryRun := os.Getenv("GRATBOX_DRYRUN"); dryRun != "" {
		switch strings.ToLower(dryRun) {
		case "true":
			cfg.Reconcile.DryRun = true
		case "false":
			cfg.Reconcile.DryRun = false
		default:
			slog.Default().Warn("fail parse dryrun to bool from string", "dryrun", dryRun)
		}
	}
	if confirm := os.Getenv("GRATBOX_CONFIRM_DESTRUCTIVE"); confirm != "" {
		cfg.Reconcile.ConfirmDestructive = strings.EqualFold(confirm, "true")
	}
	if dir := os.Getenv("GRATBOX_REPORT_DIR"); dir != "" {
		cfg.Report.Dir = dir
	}
	if loglevel := os.Getenv("GRATBOX_LOG_LEVEL"); loglevel != "" {
		cfg.Log.Level = loglevel
	}
	if logenv := os.Getenv("GRATBOX_LOG_ENV"); logenv != "" {
		cfg.Log.Env = logenv
	}
}

func (cfg *Config) validate() error {
	switch cfg.Reconcile.Mode {
	case ModeAddOnly, ModeSyncExact:
	default:
		return fmt.Errorf("unknown reconcile mode %q", cfg.Reconcile.Mode)
	}

	// sync-exact deletes remote state, it needs an explicit opt-in beyond
	// the mode switch unless the run is a dry run.
	if cfg.Reconcile.Mode == ModeSyncExact && !cfg.Reconcile.DryRun && !cfg.Reconcile.ConfirmDestructive {
		return errors.New("reconcile mode sync-exact requires confirmDestructive: true (or dryRun)")
	}

	if len(cfg.CSV.Delimiter) != 1 {
		return fmt.Errorf("csv delimiter must be a single character, got %q", cfg.CSV.Delimiter)
	}
	return nil
}

func (r Retry) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelaySec) * time.Second
}

func (r Retry) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelaySec) * time.Second
}
