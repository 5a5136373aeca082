package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Mode          string        `mapstructure:"mode"`
	Port          int           `mapstructure:"port"`
	LogLevel      string        `mapstructure:"log_level"`
	ReadLimit     int64         `mapstructure:"read_limit"`
	PingPeriod    time.Duration `mapstructure:"ping_period"`
	SendBuffer    int           `mapstructure:"send_buffer"`
	Secret        string        `mapstructure:"secret"`
	TrustedHeader string        `mapstructure:"trusted_header"`
	DBPath        string        `mapstructure:"db_path"`
	RingTimeout   time.Duration `mapstructure:"ring_timeout"`
	RateLimit     int           `mapstructure:"rate_limit"`
	RateInterval  time.Duration `mapstructure:"rate_interval"`

	MeshEnforceInitiator bool   `mapstructure:"mesh_enforce_initiator"`
	FrameBackpressure    string `mapstructure:"frame_backpressure"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("secret", "")
	v.SetDefault("trusted_header", "")
	v.SetDefault("db_path", "./relay.db")
	v.SetDefault("ring_timeout", "0s")
	v.SetDefault("rate_limit", 20)
	v.SetDefault("rate_interval", "10s")
	v.SetDefault("mesh_enforce_initiator", true)
	v.SetDefault("frame_backpressure", "drop")
}

// Load reads config/config.<CONFIG_ENV>.yaml unless file is given, then
// applies RELAY_* environment variables and any flags bound in flags.
func Load(file string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if file == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		file = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(file)

	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", file).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", file).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("db", cfg.DBPath).Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.SendBuffer <= 0 {
		return fmt.Errorf("send_buffer must be positive")
	}
	if c.PingPeriod <= 0 {
		return fmt.Errorf("ping_period must be positive")
	}
	if c.RateLimit <= 0 || c.RateInterval <= 0 {
		return fmt.Errorf("rate_limit and rate_interval must be positive")
	}
	switch c.FrameBackpressure {
	case "drop", "kick":
	default:
		return fmt.Errorf("frame_backpressure must be drop or kick, got %q", c.FrameBackpressure)
	}
	// Sessions cannot be signed without a secret, so one identity source is required.
	if c.Secret == "" && c.TrustedHeader == "" {
		return fmt.Errorf("no identity source: set secret or trusted_header")
	}
	return nil
}

// PongWait is how long a connection may stay silent before it is dropped.
func (c *Config) PongWait() time.Duration {
	return c.PingPeriod * 10 / 9
}
