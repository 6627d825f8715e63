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
	Mode string `mapstructure:"mode"`
	Port int    `mapstructure:"port"`

	// Relay
	ReadLimit       int64         `mapstructure:"read_limit"`
	PingPeriod      time.Duration `mapstructure:"ping_period"`
	WriteWait       time.Duration `mapstructure:"write_wait"`
	SendQueue       int           `mapstructure:"send_queue"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	DisconnectScope string        `mapstructure:"disconnect_scope"`
	Backpressure    string        `mapstructure:"backpressure"`
	InviteLimit     int           `mapstructure:"invite_limit"`
	InviteInterval  time.Duration `mapstructure:"invite_interval"`

	// Peer
	RelayURL      string        `mapstructure:"relay_url"`
	ICEServers    []string      `mapstructure:"ice_servers"`
	InviteTimeout time.Duration `mapstructure:"invite_timeout"`
	AnswerMode    string        `mapstructure:"answer_mode"`
}

// Load reads config/config.<CONFIG_ENV>.yaml (or CONFIG_FILE when set),
// then PEERCALL_* environment variables, then flags in fs that were set
// explicitly. fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	fileName := os.Getenv("CONFIG_FILE")
	if fileName == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		fileName = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(fileName)

	v.SetDefault("mode", "release")
	v.SetDefault("port", 4000)
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("write_wait", "5s")
	v.SetDefault("send_queue", 32)
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("disconnect_scope", "broadcast")
	v.SetDefault("backpressure", "drop")
	v.SetDefault("invite_limit", 10)
	v.SetDefault("invite_interval", "1m")

	v.SetDefault("relay_url", "ws://localhost:4000/socket")
	v.SetDefault("ice_servers", []string{"stun:stun.l.google.com:19302"})
	v.SetDefault("invite_timeout", "30s")
	v.SetDefault("answer_mode", "auto")

	v.SetEnvPrefix("PEERCALL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		if err := bindFlags(v, fs); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("disconnect_scope", cfg.DisconnectScope).
		Msg("config ready")
	return &cfg, nil
}

// bindFlags maps dashed flag names onto the underscored config keys.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		key := strings.ReplaceAll(f.Name, "-", "_")
		err = v.BindPFlag(key, f)
	})
	if err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.SendQueue <= 0 {
		return fmt.Errorf("send_queue must be positive, got %d", c.SendQueue)
	}
	if c.PingPeriod <= 0 {
		return fmt.Errorf("ping_period must be positive, got %s", c.PingPeriod)
	}
	if c.InviteTimeout < 0 {
		return fmt.Errorf("invite_timeout must not be negative, got %s", c.InviteTimeout)
	}
	return nil
}
