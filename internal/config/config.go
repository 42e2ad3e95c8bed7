package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Shopify/sarama"
	"github.com/ReyAyanami/invoicing-pipeline-sub000/internal/types"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Configuration is the root configuration object for the pipeline. It is
// loaded once at process start and passed around via dependency injection;
// nothing reads environment variables directly outside this package.
type Configuration struct {
	Deployment DeploymentConfig `validate:"required"`
	Server     ServerConfig     `validate:"omitempty"`
	Logging    LoggingConfig    `validate:"required"`
	Kafka      KafkaConfig      `validate:"required"`
	Postgres   PostgresConfig   `validate:"required"`
	Window     WindowConfig     `validate:"required"`
	Event      EventConfig      `validate:"required"`
	Sentry     SentryConfig     `validate:"omitempty"`
}

type DeploymentConfig struct {
	Mode types.RunMode `mapstructure:"mode" validate:"required"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

type LoggingConfig struct {
	Level types.LogLevel `mapstructure:"level" validate:"required"`
}

// KafkaConfig carries the broker list, the stream topic names, and the
// consumer group timeouts.
type KafkaConfig struct {
	Brokers       []string             `mapstructure:"brokers" validate:"required"`
	ClientID      string               `mapstructure:"client_id" validate:"required"`
	UseSASL       bool                 `mapstructure:"use_sasl"`
	SASLMechanism sarama.SASLMechanism `mapstructure:"sasl_mechanism"`
	SASLUser      string               `mapstructure:"sasl_user"`
	SASLPassword  string               `mapstructure:"sasl_password"`

	TopicEvents      string `mapstructure:"topic_events" default:"telemetry-events"`
	TopicLateEvents  string `mapstructure:"topic_late_events" default:"telemetry-events-late"`
	TopicAggUsage    string `mapstructure:"topic_aggregated_usage" default:"aggregated-usage"`
	TopicRatedCharge string `mapstructure:"topic_rated_charges" default:"rated-charges"`

	AggregationConsumerGroup string `mapstructure:"aggregation_consumer_group" default:"aggregation-service-group"`
	ReratingConsumerGroup    string `mapstructure:"rerating_consumer_group" default:"re-rating-group"`

	SessionTimeout    time.Duration `mapstructure:"session_timeout" default:"30s"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" default:"3s"`
}

type PostgresConfig struct {
	Host                   string        `mapstructure:"host" validate:"required"`
	Port                   int           `mapstructure:"port" validate:"required"`
	User                   string        `mapstructure:"user" validate:"required"`
	Password               string        `mapstructure:"password" validate:"required"`
	DBName                 string        `mapstructure:"dbname" validate:"required"`
	SSLMode                string        `mapstructure:"sslmode" validate:"required"`
	MaxOpenConns           int           `mapstructure:"max_open_conns" default:"20"`
	MaxIdleConns           int           `mapstructure:"max_idle_conns" default:"5"`
	ConnMaxLifetimeMinutes int           `mapstructure:"conn_max_lifetime_minutes" default:"30"`
	ConnectTimeout         time.Duration `mapstructure:"connect_timeout" default:"2s"`
}

// WindowConfig carries the three tunables for the windowed-aggregation
// core: window length, watermark lag, and finalization tick period.
type WindowConfig struct {
	WindowSize        time.Duration `mapstructure:"window_size_ms" default:"1h"`
	AllowedLateness   time.Duration `mapstructure:"allowed_lateness_ms" default:"1h"`
	WatermarkInterval time.Duration `mapstructure:"watermark_interval_ms" default:"5m"`
}

type EventConfig struct {
	RateLimit int `mapstructure:"rate_limit" default:"500"`
}

type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate" default:"1.0"`
}

// NewConfig loads configuration from an optional `.env` file, a YAML file
// under ./internal/config or ./config, then environment variables
// (prefixed PIPELINE_) taking precedence over both.
func NewConfig() (*Configuration, error) {
	v := viper.New()

	_ = godotenv.Load()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("PIPELINE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Window.WindowSize == 0 {
		cfg.Window.WindowSize = time.Hour
	}
	if cfg.Window.AllowedLateness == 0 {
		cfg.Window.AllowedLateness = time.Hour
	}
	if cfg.Window.WatermarkInterval == 0 {
		cfg.Window.WatermarkInterval = 5 * time.Minute
	}
	if cfg.Kafka.TopicEvents == "" {
		cfg.Kafka.TopicEvents = "telemetry-events"
	}
	if cfg.Kafka.TopicLateEvents == "" {
		cfg.Kafka.TopicLateEvents = "telemetry-events-late"
	}
	if cfg.Kafka.TopicAggUsage == "" {
		cfg.Kafka.TopicAggUsage = "aggregated-usage"
	}
	if cfg.Kafka.TopicRatedCharge == "" {
		cfg.Kafka.TopicRatedCharge = "rated-charges"
	}
	if cfg.Kafka.AggregationConsumerGroup == "" {
		cfg.Kafka.AggregationConsumerGroup = "aggregation-service-group"
	}
	if cfg.Kafka.ReratingConsumerGroup == "" {
		cfg.Kafka.ReratingConsumerGroup = "re-rating-group"
	}

	return &cfg, nil
}

// Validate runs struct-tag validation over the fully loaded configuration.
func (c Configuration) Validate() error {
	return validator.New().Struct(c)
}

// GetDefaultConfig returns sane local-development defaults, used by tests
// and one-off scripts that don't want to read a YAML file or environment.
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Deployment: DeploymentConfig{Mode: types.ModeLocal},
		Logging:    LoggingConfig{Level: types.LogLevelDebug},
		Kafka: KafkaConfig{
			Brokers:                  []string{"localhost:9092"},
			ClientID:                 "invoicing-pipeline",
			TopicEvents:              "telemetry-events",
			TopicLateEvents:          "telemetry-events-late",
			TopicAggUsage:            "aggregated-usage",
			TopicRatedCharge:         "rated-charges",
			AggregationConsumerGroup: "aggregation-service-group",
			ReratingConsumerGroup:    "re-rating-group",
			SessionTimeout:           30 * time.Second,
			HeartbeatInterval:        3 * time.Second,
		},
		Postgres: PostgresConfig{
			MaxOpenConns:           20,
			MaxIdleConns:           5,
			ConnMaxLifetimeMinutes: 30,
			ConnectTimeout:         2 * time.Second,
		},
		Window: WindowConfig{
			WindowSize:        time.Hour,
			AllowedLateness:   time.Hour,
			WatermarkInterval: 5 * time.Minute,
		},
		Event: EventConfig{RateLimit: 500},
	}
}

func (c PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"user=%s password=%s dbname=%s host=%s port=%d sslmode=%s connect_timeout=%d",
		c.User,
		c.Password,
		c.DBName,
		c.Host,
		c.Port,
		c.SSLMode,
		int(c.ConnectTimeout.Seconds()),
	)
}

func (c KafkaConfig) GetSaramaConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.ClientID = c.ClientID
	cfg.Consumer.Group.Session.Timeout = c.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.HeartbeatInterval
	cfg.Producer.Retry.Max = 8
	cfg.Producer.Retry.Backoff = 100 * time.Millisecond
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true

	if !c.UseSASL {
		return cfg
	}

	cfg.Net.SASL.Enable = true
	cfg.Net.TLS.Enable = true
	cfg.Net.SASL.Mechanism = c.SASLMechanism
	cfg.Net.SASL.User = c.SASLUser
	cfg.Net.SASL.Password = c.SASLPassword

	return cfg
}
