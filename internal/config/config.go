// Package config loads docbeacon's configuration in layers: built-in
// defaults, then an optional YAML file, then environment variables.
//
// Both DOCBEACON_* variables and the short legacy names (SMTP_SERVER,
// EMAIL_FROM, WHATSAPP_TOKEN, PORT, ...) are accepted. A .env file in the
// working directory is loaded into the environment first when present.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "DOCBEACON_CONFIG"

// DefaultConfigPaths are searched in order when ConfigPathEnvVar is unset.
var DefaultConfigPaths = []string{"config.yaml", "config.yml"}

type Config struct {
	Server   ServerConfig   `koanf:"server"`
	GRPC     GRPCConfig     `koanf:"grpc"`
	Log      LogConfig      `koanf:"log"`
	Storage  StorageConfig  `koanf:"storage"`
	Pipeline PipelineConfig `koanf:"pipeline"`
	Geo      GeoConfig      `koanf:"geo"`
	Notify   NotifyConfig   `koanf:"notify"`
	Metrics  MetricsConfig  `koanf:"metrics"`
}

type ServerConfig struct {
	Addr string `koanf:"addr"`
	// Port, when set, overrides Addr with ":<port>".
	Port               int           `koanf:"port"`
	PublicBaseURL      string        `koanf:"public_base_url"`
	RateLimitPerMinute int           `koanf:"rate_limit_per_minute"`
	ShutdownTimeout    time.Duration `koanf:"shutdown_timeout"`
}

type GRPCConfig struct {
	// Addr is the health service listen address; empty disables it.
	Addr string `koanf:"addr"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type StorageConfig struct {
	Driver             string `koanf:"driver"` // sqlite | memory
	Path               string `koanf:"path"`
	RetentionDays      int    `koanf:"retention_days"` // 0 = keep forever
	PruneIntervalHours int    `koanf:"prune_interval_hours"`
}

type PipelineConfig struct {
	QueueSize      int           `koanf:"queue_size"`
	Workers        int           `koanf:"workers"`
	EnqueueTimeout time.Duration `koanf:"enqueue_timeout"`
	JobTimeout     time.Duration `koanf:"job_timeout"`
}

type GeoConfig struct {
	Providers           []string          `koanf:"providers"`
	IPInfoToken         string            `koanf:"ipinfo_token"`
	ProviderTimeout     time.Duration     `koanf:"provider_timeout"`
	GPSDefaultAccuracyM float64           `koanf:"gps_default_accuracy_m"`
	GPSAccuracyCeilingM float64           `koanf:"gps_accuracy_ceiling_m"`
	EnrichGPSWithIP     bool              `koanf:"enrich_gps_with_ip"`
	BreakerFailures     uint32            `koanf:"breaker_failures"`
	BreakerOpenTimeout  time.Duration     `koanf:"breaker_open_timeout"`
	BaseURLs            map[string]string `koanf:"base_urls"`
}

type NotifyConfig struct {
	Timeout      time.Duration `koanf:"timeout"`
	TemplateFile string        `koanf:"template_file"`
	Email        EmailConfig   `koanf:"email"`
	Chat         ChatConfig    `koanf:"chat"`
}

type EmailConfig struct {
	Host               string `koanf:"smtp_host"`
	Port               int    `koanf:"smtp_port"`
	Username           string `koanf:"username"`
	Password           string `koanf:"password"`
	From               string `koanf:"from"`
	To                 string `koanf:"to"`
	InsecureSkipVerify bool   `koanf:"insecure_skip_verify"`
}

type ChatConfig struct {
	BaseURL    string `koanf:"base_url"`
	InstanceID string `koanf:"instance_id"`
	Token      string `koanf:"token"`
	ToNumber   string `koanf:"to_number"`
}

type MetricsConfig struct {
	Enabled bool `koanf:"enabled"`
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:               ":8080",
			RateLimitPerMinute: 30,
			ShutdownTimeout:    10 * time.Second,
		},
		GRPC: GRPCConfig{Addr: ":9090"},
		Log:  LogConfig{Level: "info", Format: "json"},
		Storage: StorageConfig{
			Driver:             "sqlite",
			Path:               "./data/docbeacon.db",
			PruneIntervalHours: 6,
		},
		Pipeline: PipelineConfig{
			QueueSize:      256,
			Workers:        4,
			EnqueueTimeout: 100 * time.Millisecond,
			JobTimeout:     60 * time.Second,
		},
		Geo: GeoConfig{
			Providers:           []string{"ipapi", "ipinfo", "geoplugin"},
			ProviderTimeout:     5 * time.Second,
			GPSDefaultAccuracyM: 50,
			GPSAccuracyCeilingM: 10000,
			EnrichGPSWithIP:     true,
			BreakerFailures:     5,
			BreakerOpenTimeout:  time.Minute,
		},
		Notify: NotifyConfig{
			Timeout: 15 * time.Second,
			Email:   EmailConfig{Host: "smtp.gmail.com", Port: 587},
			Chat:    ChatConfig{BaseURL: "https://api.ultramsg.com"},
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// LoadOptions points Load at explicit files. Zero values use the defaults:
// ".env" and the ConfigPathEnvVar / DefaultConfigPaths search.
type LoadOptions struct {
	EnvFile    string
	ConfigFile string
}

// Load builds the configuration and validates it.
func Load(opts LoadOptions) (Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(&defaults, "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	path := opts.ConfigFile
	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", envValueFunc), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	if v, ok := k.Get("geo.providers").(string); ok {
		if err := k.Set("geo.providers", splitCSV(v)); err != nil {
			return Config{}, fmt.Errorf("set geo.providers: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.applyDerived()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyDerived() {
	if c.Server.Port > 0 {
		c.Server.Addr = fmt.Sprintf(":%d", c.Server.Port)
	}
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Notify.Email.Username == "" {
		c.Notify.Email.Username = c.Notify.Email.From
	}
	// Alerts go to the sender's own mailbox unless told otherwise.
	if c.Notify.Email.To == "" {
		c.Notify.Email.To = c.Notify.Email.From
	}
	for i, p := range c.Geo.Providers {
		c.Geo.Providers[i] = strings.ToLower(strings.TrimSpace(p))
	}
}

// Validate checks ranges and enumerations. Channel credentials are only
// checked for presence, by the channels themselves.
func (c Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.RateLimitPerMinute <= 0 {
		errs = append(errs, errors.New("server.rate_limit_per_minute must be positive"))
	}
	if c.Server.PublicBaseURL != "" &&
		!strings.HasPrefix(c.Server.PublicBaseURL, "http://") && !strings.HasPrefix(c.Server.PublicBaseURL, "https://") {
		errs = append(errs, fmt.Errorf("server.public_base_url %q must start with http:// or https://", c.Server.PublicBaseURL))
	}

	switch c.Storage.Driver {
	case "sqlite":
		if strings.TrimSpace(c.Storage.Path) == "" {
			errs = append(errs, errors.New("storage.path is required for the sqlite driver"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q must be sqlite or memory", c.Storage.Driver))
	}
	if c.Storage.RetentionDays < 0 {
		errs = append(errs, errors.New("storage.retention_days must not be negative"))
	}

	if c.Pipeline.QueueSize <= 0 || c.Pipeline.Workers <= 0 {
		errs = append(errs, errors.New("pipeline.queue_size and pipeline.workers must be positive"))
	}
	if c.Pipeline.EnqueueTimeout <= 0 || c.Pipeline.JobTimeout <= 0 {
		errs = append(errs, errors.New("pipeline timeouts must be positive"))
	}

	known := []string{"ipapi", "ipinfo", "geoplugin", "ip-api"}
	for _, p := range c.Geo.Providers {
		if !slices.Contains(known, p) {
			errs = append(errs, fmt.Errorf("geo.providers: unknown provider %q", p))
		}
	}
	if c.Geo.GPSDefaultAccuracyM <= 0 || c.Geo.GPSAccuracyCeilingM <= 0 {
		errs = append(errs, errors.New("geo GPS accuracies must be positive"))
	} else if c.Geo.GPSDefaultAccuracyM > c.Geo.GPSAccuracyCeilingM {
		errs = append(errs, errors.New("geo.gps_default_accuracy_m exceeds geo.gps_accuracy_ceiling_m"))
	}
	if c.Geo.ProviderTimeout <= 0 {
		errs = append(errs, errors.New("geo.provider_timeout must be positive"))
	}

	if c.Notify.Timeout <= 0 {
		errs = append(errs, errors.New("notify.timeout must be positive"))
	}
	if c.Notify.Email.Port <= 0 || c.Notify.Email.Port > 65535 {
		errs = append(errs, fmt.Errorf("notify.email.smtp_port %d out of range", c.Notify.Email.Port))
	}

	return errors.Join(errs...)
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envMappings maps lower-cased environment variable names to config keys.
var envMappings = map[string]string{
	// Legacy names.
	"port":                 "server.port",
	"smtp_server":          "notify.email.smtp_host",
	"smtp_port":            "notify.email.smtp_port",
	"email_from":           "notify.email.from",
	"email_password":       "notify.email.password",
	"email_to":             "notify.email.to",
	"whatsapp_instance_id": "notify.chat.instance_id",
	"whatsapp_token":       "notify.chat.token",
	"whatsapp_to_number":   "notify.chat.to_number",
	"ipinfo_token":         "geo.ipinfo_token",

	"docbeacon_http_addr":             "server.addr",
	"docbeacon_public_base_url":       "server.public_base_url",
	"docbeacon_rate_limit_per_minute": "server.rate_limit_per_minute",
	"docbeacon_shutdown_timeout":      "server.shutdown_timeout",
	"docbeacon_grpc_addr":             "grpc.addr",
	"docbeacon_log_level":             "log.level",
	"docbeacon_log_format":            "log.format",

	"docbeacon_storage_driver":       "storage.driver",
	"docbeacon_db_path":              "storage.path",
	"docbeacon_retention_days":       "storage.retention_days",
	"docbeacon_prune_interval_hours": "storage.prune_interval_hours",

	"docbeacon_queue_size":      "pipeline.queue_size",
	"docbeacon_workers":         "pipeline.workers",
	"docbeacon_enqueue_timeout": "pipeline.enqueue_timeout",
	"docbeacon_job_timeout":     "pipeline.job_timeout",

	"docbeacon_geo_providers":          "geo.providers",
	"docbeacon_geo_provider_timeout":   "geo.provider_timeout",
	"docbeacon_gps_default_accuracy_m": "geo.gps_default_accuracy_m",
	"docbeacon_gps_accuracy_ceiling_m": "geo.gps_accuracy_ceiling_m",
	"docbeacon_enrich_gps_with_ip":     "geo.enrich_gps_with_ip",
	"docbeacon_geo_breaker_failures":   "geo.breaker_failures",
	"docbeacon_geo_breaker_open":       "geo.breaker_open_timeout",

	"docbeacon_notify_timeout":       "notify.timeout",
	"docbeacon_notify_template_file": "notify.template_file",
	"docbeacon_smtp_username":        "notify.email.username",
	"docbeacon_smtp_insecure":        "notify.email.insecure_skip_verify",
	"docbeacon_chat_base_url":        "notify.chat.base_url",
	"docbeacon_metrics_enabled":      "metrics.enabled",
}

// envTransformFunc maps an environment variable to its config key. Unknown
// variables map to "" and are skipped.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

// envValueFunc is envTransformFunc that also skips empty values, so an
// exported but blank variable keeps the file or default value.
func envValueFunc(key, value string) (string, interface{}) {
	if strings.TrimSpace(value) == "" {
		return "", nil
	}
	return envTransformFunc(key), value
}

func splitCSV(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
