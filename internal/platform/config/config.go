package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	strutil "recibos/pkg/platform/strings"
)

// Config holds all configuration for the receipt service and CLI.
type Config struct {
	Server    Server
	Twilio    Twilio
	Postgres  Postgres
	Redis     RedisConfig
	Kafka     Kafka
	Documents Documents
	Session   Session
	Media     Media
	Log       Log
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr string `mapstructure:"addr"`
	// PublicBaseURL is the externally reachable origin used for media links
	// and status callbacks.
	PublicBaseURL string `mapstructure:"public_base_url"`
	AdminToken    string `mapstructure:"admin_token"`
	// AdminTokenHash takes precedence over AdminToken when set.
	AdminTokenHash string `mapstructure:"admin_token_hash"`
}

// Twilio configures the WhatsApp transport.
type Twilio struct {
	AccountSID        string        `mapstructure:"account_sid"`
	AuthToken         string        `mapstructure:"auth_token"`
	From              string        `mapstructure:"from"`
	TemplateSID       string        `mapstructure:"template_sid"`
	PromptTemplateSID string        `mapstructure:"prompt_template_sid"`
	CountryPrefix     string        `mapstructure:"country_prefix"`
	APIBaseURL        string        `mapstructure:"api_base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	ValidateSignature bool          `mapstructure:"validate_signature"`
}

// Postgres configures durable ack state and the delivery ledger. An empty DSN
// selects the in-memory stores.
type Postgres struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig configures the conversation session store. An empty URL
// selects the in-memory store.
type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Kafka configures acknowledgment event publishing. No brokers disables it.
type Kafka struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// Documents locates receipts and the recipient registry.
type Documents struct {
	Root         string        `mapstructure:"root"`
	RegistryPath string        `mapstructure:"registry_path"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MessagesFile string        `mapstructure:"messages_file"`
}

// Session bounds conversation state.
type Session struct {
	TTL           time.Duration `mapstructure:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// TurnTimeout bounds one inbound turn, including the wait behind an
	// earlier turn from the same phone.
	TurnTimeout time.Duration `mapstructure:"turn_timeout"`
}

// Media configures signed document links.
type Media struct {
	SigningKey string        `mapstructure:"signing_key"`
	LinkTTL    time.Duration `mapstructure:"link_ttl"`
}

// Log configures slog output.
type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// EnvPrefix is prepended to every environment variable, e.g.
// RECIBOS_TWILIO_ACCOUNT_SID.
const EnvPrefix = "RECIBOS"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.public_base_url", "http://localhost:8080")
	v.SetDefault("server.admin_token", "")
	v.SetDefault("server.admin_token_hash", "")

	v.SetDefault("twilio.account_sid", "")
	v.SetDefault("twilio.auth_token", "")
	v.SetDefault("twilio.from", "")
	v.SetDefault("twilio.template_sid", "")
	v.SetDefault("twilio.prompt_template_sid", "")
	v.SetDefault("twilio.country_prefix", "549")
	v.SetDefault("twilio.api_base_url", "https://api.twilio.com")
	v.SetDefault("twilio.timeout", 10*time.Second)
	v.SetDefault("twilio.validate_signature", false)

	v.SetDefault("postgres.dsn", "")

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "receipt-acknowledgments")

	v.SetDefault("documents.root", "./recibos")
	v.SetDefault("documents.registry_path", "./padron.csv")
	v.SetDefault("documents.timeout", 5*time.Second)
	v.SetDefault("documents.messages_file", "")

	v.SetDefault("session.ttl", 30*time.Minute)
	v.SetDefault("session.sweep_interval", time.Minute)
	v.SetDefault("session.turn_timeout", 30*time.Second)

	v.SetDefault("media.signing_key", "dev-media-key-change-in-production")
	v.SetDefault("media.link_ttl", 15*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads defaults, an optional config.yaml, and RECIBOS_* environment
// variables, in increasing precedence.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	// Accept both a YAML list and a comma separated env value.
	cfg.Kafka.Brokers = strutil.SplitList(cfg.Kafka.Brokers)
	return &cfg, nil
}

// TransportConfigured reports whether outbound sends can reach Twilio.
func (c *Config) TransportConfigured() bool {
	return c.Twilio.AccountSID != "" && c.Twilio.AuthToken != "" && c.Twilio.From != ""
}
