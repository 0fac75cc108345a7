package config

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig                 `yaml:"app"`
	Logging   LoggingConfig             `yaml:"logging"`
	Transport TransportConfig           `yaml:"transport"`
	Exchanges map[string]ExchangeConfig `yaml:"exchanges"`
	Collector CollectorConfig           `yaml:"collector"`
	Storage   StorageConfig             `yaml:"storage"`
	Metrics   MetricsConfig             `yaml:"metrics"`
	Server    ServerConfig              `yaml:"server"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type TransportConfig struct {
	Timeout        time.Duration        `yaml:"timeout"`
	UserAgent      string               `yaml:"user_agent"`
	LocalIP        string               `yaml:"local_ip"`
	ConnectionPool ConnectionPoolConfig `yaml:"connection_pool"`
}

type ConnectionPoolConfig struct {
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size"`
}

// ExchangeConfig holds the credentials and options of one exchange adapter.
type ExchangeConfig struct {
	Enabled        bool            `yaml:"enabled"`
	APIKey         string          `yaml:"api_key"`
	Secret         string          `yaml:"secret"`
	Password       string          `yaml:"password"`
	BaseURL        string          `yaml:"base_url"`
	RecvWindow     int64           `yaml:"recv_window"`
	TimeInForce    string          `yaml:"time_in_force"`
	DefaultNetwork string          `yaml:"default_network"`
	Symbols        []string        `yaml:"symbols"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
}

// HasCredentials reports whether private endpoints can be signed.
func (e ExchangeConfig) HasCredentials() bool {
	return e.APIKey != "" && e.Secret != ""
}

type CollectorConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	Depth         int           `yaml:"depth"`
	Tickers       bool          `yaml:"tickers"`
	Trades        bool          `yaml:"trades"`
	Buffer        int           `yaml:"buffer"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

type StorageConfig struct {
	S3    S3Config    `yaml:"s3"`
	Kafka KafkaConfig `yaml:"kafka"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type KafkaConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`
}

type MetricsConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Listen     string           `yaml:"listen"`
	UsedWeight bool             `yaml:"used_weight"`
	QueueSize  bool             `yaml:"queue_size"`
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
}

type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Mode    string `yaml:"mode"`
}

type LoggingConfig struct {
	Level          string                 `yaml:"level"`
	Format         string                 `yaml:"format"`
	Output         string                 `yaml:"output"`
	MaxAge         int                    `yaml:"max_age"`
	Fields         map[string]interface{} `yaml:"fields"`
	ReportInterval time.Duration          `yaml:"report_interval"`
}

// SupportedExchanges lists the exchange ids accepted under exchanges.
var SupportedExchanges = []string{"commex", "indodax", "kucoin", "upbit"}

// passwordExchanges need an API passphrase in addition to key and secret.
var passwordExchanges = map[string]bool{"kucoin": true}

func defaults() Config {
	return Config{
		Logging: LoggingConfig{
			Level:          "info",
			Format:         "json",
			Output:         "stdout",
			ReportInterval: time.Minute,
		},
		Transport: TransportConfig{
			Timeout:   10 * time.Second,
			UserAgent: "exchangeflow/1.0",
			ConnectionPool: ConnectionPoolConfig{
				MaxIdleConns:    100,
				MaxConnsPerHost: 10,
				IdleConnTimeout: 90 * time.Second,
			},
		},
		Collector: CollectorConfig{
			Interval:      5 * time.Second,
			Depth:         20,
			Buffer:        1000,
			BatchSize:     500,
			FlushInterval: time.Minute,
		},
		Storage: StorageConfig{
			Kafka: KafkaConfig{BatchSize: 100, BatchTimeout: time.Second},
		},
		Metrics: MetricsConfig{
			Listen:     ":2112",
			UsedWeight: true,
			QueueSize:  true,
			CloudWatch: CloudWatchConfig{Namespace: "ExchangeFlow"},
		},
		Server: ServerConfig{Address: ":8080", Mode: "release"},
	}
}

func LoadConfig(path string) (*Config, error) {
	path = ResolvePath(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML, applies defaults and environment overrides and
// validates the result.
func Parse(data []byte) (*Config, error) {
	config := defaults()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(&config)

	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyEnvOverrides(config *Config) {
	for name, ex := range config.Exchanges {
		prefix := strings.ToUpper(name) + "_"
		if v := os.Getenv(prefix + "API_KEY"); v != "" {
			ex.APIKey = strings.TrimSpace(v)
		}
		if v := os.Getenv(prefix + "SECRET"); v != "" {
			ex.Secret = strings.TrimSpace(v)
		}
		if v := os.Getenv(prefix + "PASSWORD"); v != "" {
			ex.Password = strings.TrimSpace(v)
		}
		config.Exchanges[name] = ex
	}

	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
}

// EnabledExchanges returns the enabled exchange ids in sorted order.
func (c *Config) EnabledExchanges() []string {
	names := make([]string, 0, len(c.Exchanges))
	for name, ex := range c.Exchanges {
		if ex.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func isSupported(name string) bool {
	for _, s := range SupportedExchanges {
		if s == name {
			return true
		}
	}
	return false
}

func validateConfig(cfg *Config) error {
	if cfg.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}

	if cfg.Transport.Timeout <= 0 {
		return fmt.Errorf("transport.timeout must be positive")
	}

	for _, name := range sortedKeys(cfg.Exchanges) {
		ex := cfg.Exchanges[name]
		if !isSupported(name) {
			return fmt.Errorf("exchanges.%s is not a supported exchange (supported: %s)", name, strings.Join(SupportedExchanges, ", "))
		}
		if ex.APIKey != "" && ex.Secret == "" {
			return fmt.Errorf("exchanges.%s.secret is required when api_key is set", name)
		}
		if ex.APIKey != "" && passwordExchanges[name] && ex.Password == "" {
			return fmt.Errorf("exchanges.%s.password is required when api_key is set", name)
		}
		if ex.RateLimit.RequestsPerSecond < 0 || ex.RateLimit.BurstSize < 0 {
			return fmt.Errorf("exchanges.%s.rate_limit must not be negative", name)
		}
		if ex.RecvWindow < 0 {
			return fmt.Errorf("exchanges.%s.recv_window must not be negative", name)
		}
	}

	if cfg.Collector.Enabled {
		if cfg.Collector.Interval <= 0 {
			return fmt.Errorf("collector.interval must be positive when the collector is enabled")
		}
		if cfg.Collector.Buffer <= 0 {
			return fmt.Errorf("collector.buffer must be positive when the collector is enabled")
		}
		hasSymbols := false
		for _, name := range cfg.EnabledExchanges() {
			if len(cfg.Exchanges[name].Symbols) > 0 {
				hasSymbols = true
			}
		}
		if !hasSymbols {
			return fmt.Errorf("collector requires at least one enabled exchange with symbols")
		}
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	if cfg.Storage.Kafka.Enabled {
		if len(cfg.Storage.Kafka.Brokers) == 0 {
			return fmt.Errorf("storage.kafka.brokers is required when Kafka is enabled")
		}
		if cfg.Storage.Kafka.Topic == "" {
			return fmt.Errorf("storage.kafka.topic is required when Kafka is enabled")
		}
	}

	if cfg.Server.Enabled && cfg.Server.Address == "" {
		return fmt.Errorf("server.address is required when the server is enabled")
	}

	return nil
}

func sortedKeys(m map[string]ExchangeConfig) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
