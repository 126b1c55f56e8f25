package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	LogLevel   string        `mapstructure:"log_level"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	SendBuffer int           `mapstructure:"send_buffer"`
	RelayMode  string        `mapstructure:"relay_mode"`
	// Backpressure decides what happens to a peer whose send queue is full.
	Backpressure string `mapstructure:"backpressure"`

	Auth     AuthConfig     `mapstructure:"auth"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	Workers  WorkersConfig  `mapstructure:"workers"`
	Probe    ProbeConfig    `mapstructure:"probe"`
	Encoder  EncoderConfig  `mapstructure:"encoder"`
	NATS     NATSConfig     `mapstructure:"nats"`
	S3       S3Config       `mapstructure:"s3"`
}

type AuthConfig struct {
	Secret    string `mapstructure:"secret"`
	Algorithm string `mapstructure:"algorithm"`
}

type StorageConfig struct {
	Root          string `mapstructure:"root"`
	RecordingsDir string `mapstructure:"recordings_dir"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type WorkersConfig struct {
	PoolSize  int `mapstructure:"pool_size"`
	PoolQueue int `mapstructure:"pool_queue"`
	// Assembly gets its own pool, separate from chunk persistence.
	AssemblySize  int `mapstructure:"assembly_size"`
	AssemblyQueue int `mapstructure:"assembly_queue"`
}

type ProbeConfig struct {
	QueueSize int    `mapstructure:"queue_size"`
	Binary    string `mapstructure:"binary"`
}

type EncoderConfig struct {
	Binary string `mapstructure:"binary"`
}

type NATSConfig struct {
	URL string `mapstructure:"url"`
}

type S3Config struct {
	Bucket   string `mapstructure:"bucket"`
	Region   string `mapstructure:"region"`
	Endpoint string `mapstructure:"endpoint"`
	Prefix   string `mapstructure:"prefix"`
}

const (
	RelayMetadata = "metadata"
	RelayFull     = "full"

	BackpressureDrop = "drop"
	BackpressureKick = "kick"
)

func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile reads fileName if it exists, then applies VLINK_* overrides.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)

	v.SetEnvPrefix("VLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).
		Str("db", cfg.Database.Driver).Str("relay", cfg.RelayMode).Msg("config ready")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", 4<<20)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("relay_mode", RelayMetadata)
	v.SetDefault("backpressure", BackpressureDrop)

	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.algorithm", "HS256")

	v.SetDefault("storage.root", "./uploads/live")
	v.SetDefault("storage.recordings_dir", "./uploads/recordings")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "file:vlink.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")

	v.SetDefault("workers.pool_size", 4)
	v.SetDefault("workers.pool_queue", 1024)
	v.SetDefault("workers.assembly_size", 1)
	v.SetDefault("workers.assembly_queue", 64)

	v.SetDefault("probe.queue_size", 1024)
	v.SetDefault("probe.binary", "ffprobe")
	v.SetDefault("encoder.binary", "ffmpeg")

	// empty disables the integration
	v.SetDefault("nats.url", "")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.prefix", "recordings")
}

func (c *Config) Validate() error {
	if c.RelayMode != RelayMetadata && c.RelayMode != RelayFull {
		return fmt.Errorf("relay_mode must be %q or %q, got %q", RelayMetadata, RelayFull, c.RelayMode)
	}
	if c.Backpressure != BackpressureDrop && c.Backpressure != BackpressureKick {
		return fmt.Errorf("backpressure must be %q or %q, got %q", BackpressureDrop, BackpressureKick, c.Backpressure)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.PingPeriod <= 0 {
		return errors.New("ping_period must be positive")
	}
	if c.SendBuffer <= 0 {
		return errors.New("send_buffer must be positive")
	}
	if c.Workers.PoolSize <= 0 || c.Workers.AssemblySize <= 0 {
		return errors.New("worker pool sizes must be positive")
	}
	return nil
}

// PongWait is how long a connection may stay silent before it is dropped.
func (c *Config) PongWait() time.Duration {
	return c.PingPeriod * 10 / 9
}
