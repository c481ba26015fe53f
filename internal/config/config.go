package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config stores all configuration for the extraction and analyzer processes.
type Config struct {
	PostgresURL   string `mapstructure:"POSTGRES_URL"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	ServerPort    string `mapstructure:"SERVER_PORT"`
	SnapshotDir   string `mapstructure:"SNAPSHOT_DIR"`

	// Streams. ArticleStream carries extracted articles to the analyzer;
	// MetadataStream carries batch extraction requests from the dispatcher.
	ArticleStream    string `mapstructure:"ARTICLE_STREAM"`
	MetadataStream   string `mapstructure:"METADATA_STREAM"`
	DeadLetterStream string `mapstructure:"DEAD_LETTER_STREAM"`
	ConsumerGroup    string `mapstructure:"CONSUMER_GROUP"`
	ConsumerName     string `mapstructure:"CONSUMER_NAME"`
	MaxStreamLen     int64  `mapstructure:"MAX_STREAM_LEN"`

	BrowserTimeout int  `mapstructure:"BROWSER_TIMEOUT"` // seconds
	PageWait       int  `mapstructure:"PAGE_WAIT"`       // seconds, default batch pacing
	ProxyEnabled   bool `mapstructure:"PROXY_ENABLED"`
	// Comma-separated proxy URLs, rotated per session when a source opts in.
	Proxies string `mapstructure:"PROXIES"`

	// Enrichment model settings. AIAPIKeys is a comma-separated ordered pool.
	AIAPIKeys           string  `mapstructure:"AI_API_KEYS"`
	AIModel             string  `mapstructure:"AI_MODEL"`
	AIMaxOutputTokens   int     `mapstructure:"AI_MAX_OUTPUT_TOKENS"`
	AITemperature       float64 `mapstructure:"AI_TEMPERATURE"`
	AITopP              float64 `mapstructure:"AI_TOP_P"`
	AITopK              int     `mapstructure:"AI_TOP_K"`
	AIMaxAttempts       int     `mapstructure:"AI_MAX_ATTEMPTS"`
	ValidationThreshold float64 `mapstructure:"VALIDATION_THRESHOLD"`
}

// Load reads configuration from file or environment variables.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	// Attempt to read the .env file, but don't fail if it's not present
	// This allows configuration purely through environment variables in production
	_ = viper.ReadInConfig()

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SNAPSHOT_DIR", "failed_articles")
	viper.SetDefault("ARTICLE_STREAM", "articles:extracted")
	viper.SetDefault("METADATA_STREAM", "articles:metadata")
	viper.SetDefault("DEAD_LETTER_STREAM", "articles:dead-letter")
	viper.SetDefault("CONSUMER_GROUP", "extractor")
	viper.SetDefault("CONSUMER_NAME", "consumer-1")
	viper.SetDefault("MAX_STREAM_LEN", 10000)
	viper.SetDefault("BROWSER_TIMEOUT", 60) // in seconds
	viper.SetDefault("PAGE_WAIT", 10)
	viper.SetDefault("AI_MODEL", "command-r-plus")
	viper.SetDefault("AI_MAX_OUTPUT_TOKENS", 4096)
	viper.SetDefault("AI_TEMPERATURE", 0.2)
	viper.SetDefault("AI_TOP_P", 0.9)
	viper.SetDefault("AI_TOP_K", 40)
	viper.SetDefault("AI_MAX_ATTEMPTS", 5)
	viper.SetDefault("VALIDATION_THRESHOLD", 3)

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// APIKeys returns the ordered enrichment key pool.
func (c *Config) APIKeys() []string {
	return splitList(c.AIAPIKeys)
}

// ProxyList returns the configured proxy URLs.
func (c *Config) ProxyList() []string {
	return splitList(c.Proxies)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
