package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type RateLimitBucketConfig struct {
	RequestsPerMinute int `yaml:"requestsPerMinute"`
	BurstSize         int `yaml:"burstSize"`
}

type RateLimitConfig struct {
	Upload RateLimitBucketConfig `yaml:"upload"`
	Chat   RateLimitBucketConfig `yaml:"chat"`
}

type Config struct {
	Port      int    `yaml:"port"`
	Env       string `yaml:"env"`
	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`
	Timezone  string `yaml:"timezone"`

	// Job storage: memory | redis | sqlite.
	PersistenceProvider string `yaml:"persistenceProvider"`
	RedisAddr           string `yaml:"redisAddr"`
	RedisPassword       string `yaml:"redisPassword"`
	SQLitePath          string `yaml:"sqlitePath"`

	ArtifactsDir   string `yaml:"artifactsDir"`
	MaxUploadBytes int64  `yaml:"maxUploadBytes"`

	// Finished jobs are dropped after JobRetentionHours by a background
	// sweep every CleanupIntervalSeconds (redis and sqlite only).
	JobRetentionHours      int `yaml:"jobRetentionHours"`
	CleanupIntervalSeconds int `yaml:"cleanupIntervalSeconds"`

	// Simulated job progression for the mock analysis.
	QueuedSeconds     int    `yaml:"queuedSeconds"`
	ProcessingSeconds int    `yaml:"processingSeconds"`
	FailMarker        string `yaml:"failMarker"`

	// Optional bearer auth: "" (off) | static | hmac.
	AuthProvider string            `yaml:"authProvider"`
	AuthToken    string            `yaml:"authToken"`
	AuthTokens   map[string]string `yaml:"authTokens"`
	AuthSecret   string            `yaml:"authSecret"`
	AuthIssuer   string            `yaml:"authIssuer"`
	AuthAudience string            `yaml:"authAudience"`

	CORSOrigins []string        `yaml:"corsOrigins"`
	RateLimit   RateLimitConfig `yaml:"rateLimit"`

	TracingEnabled   bool    `yaml:"tracingEnabled"`
	OTLPEndpoint     string  `yaml:"otlpEndpoint"`
	OTLPInsecure     bool    `yaml:"otlpInsecure"`
	TraceSampleRatio float64 `yaml:"traceSampleRatio"`
}

// LoadConfigOptional loads filePath when it exists; an empty or missing path
// yields defaults plus environment overrides.
func LoadConfigOptional(filePath string) (*Config, error) {
	filePath = strings.TrimSpace(filePath)
	if filePath == "" {
		return finish(&Config{}), nil
	}
	if _, err := os.Stat(filePath); errors.Is(err, os.ErrNotExist) {
		return finish(&Config{}), nil
	}
	return LoadConfig(filePath)
}

func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return finish(&c), nil
}

func finish(c *Config) *Config {
	applyEnv(c)
	applyDefaults(c)
	log.Printf("Server Config: {Port:%d Env:%s Store:%s Artifacts:%s Auth:%s}\n",
		c.Port, c.Env, c.PersistenceProvider, c.ArtifactsDir, emptyOr(c.AuthProvider, "off"))
	return c
}

func applyEnv(c *Config) {
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Port = p
		}
	}
	if v := os.Getenv("ENV"); v != "" {
		c.Env = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("PERSISTENCE_PROVIDER"); v != "" {
		c.PersistenceProvider = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.RedisPassword = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.SQLitePath = v
	}
	if v := os.Getenv("ARTIFACTS_DIR"); v != "" {
		c.ArtifactsDir = v
	}
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("QUEUED_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.QueuedSeconds = n
		}
	}
	if v := os.Getenv("PROCESSING_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ProcessingSeconds = n
		}
	}
	if v := os.Getenv("FAIL_MARKER"); v != "" {
		c.FailMarker = v
	}
	if v := os.Getenv("AUTH_PROVIDER"); v != "" {
		c.AuthProvider = v
	}
	if v := os.Getenv("AUTH_TOKEN"); v != "" {
		c.AuthToken = v
	}
	if v := os.Getenv("AUTH_SECRET"); v != "" {
		c.AuthSecret = v
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.CORSOrigins = splitList(v)
	}
	if v := os.Getenv("TRACING_ENABLED"); v != "" {
		c.TracingEnabled = parseBool(v)
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.OTLPEndpoint = v
	}
}

func applyDefaults(c *Config) {
	if c.Port == 0 {
		c.Port = 8000
	}
	if c.Env == "" {
		c.Env = "dev"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.PersistenceProvider == "" {
		c.PersistenceProvider = "memory"
	}
	if c.RedisAddr == "" && c.PersistenceProvider == "redis" {
		c.RedisAddr = "localhost:6379"
	}
	if c.SQLitePath == "" {
		c.SQLitePath = "./storage/jobs.db"
	}
	if c.ArtifactsDir == "" {
		c.ArtifactsDir = "./storage/uploads"
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 200 << 20
	}
	if c.JobRetentionHours <= 0 {
		c.JobRetentionHours = 24
	}
	if c.CleanupIntervalSeconds <= 0 {
		c.CleanupIntervalSeconds = 300
	}
	if c.QueuedSeconds < 0 {
		c.QueuedSeconds = 0
	}
	if c.ProcessingSeconds < 0 {
		c.ProcessingSeconds = 0
	}
	if len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{"http://localhost:3000"}
	}
	if c.AuthAudience == "" {
		c.AuthAudience = "gaitkeepr"
	}
}

func (c *Config) Validate() error {
	var errs []string
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, "port must be between 0 and 65535")
	}
	switch c.PersistenceProvider {
	case "memory":
	case "redis":
		if strings.TrimSpace(c.RedisAddr) == "" {
			errs = append(errs, "redisAddr is required for the redis provider")
		}
	case "sqlite":
		if strings.TrimSpace(c.SQLitePath) == "" {
			errs = append(errs, "sqlitePath is required for the sqlite provider")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown persistenceProvider %q (memory|redis|sqlite)", c.PersistenceProvider))
	}
	switch c.AuthProvider {
	case "":
	case "static":
		if strings.TrimSpace(c.AuthToken) == "" && len(c.AuthTokens) == 0 {
			errs = append(errs, "authToken or authTokens is required for the static auth provider")
		}
	case "hmac":
		if len(strings.TrimSpace(c.AuthSecret)) < 16 {
			errs = append(errs, "authSecret must be at least 16 characters for the hmac auth provider")
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown authProvider %q (static|hmac)", c.AuthProvider))
	}
	for _, o := range c.CORSOrigins {
		if o == "*" {
			continue
		}
		u, err := url.Parse(o)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Sprintf("corsOrigins entry %q must be an http(s) origin or *", o))
		}
	}
	if c.TraceSampleRatio < 0 || c.TraceSampleRatio > 1 {
		errs = append(errs, "traceSampleRatio must be within [0,1]")
	}
	if !strings.EqualFold(c.Env, "dev") && c.AuthProvider == "" {
		errs = append(errs, "authProvider is required in non-dev")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, e := range strings.Split(s, ",") {
		e = strings.TrimSpace(e)
		if e != "" {
			out = append(out, e)
		}
	}
	return out
}

func parseBool(v string) bool {
	v = strings.TrimSpace(strings.ToLower(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func emptyOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
