package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`

	MemberPassword string `mapstructure:"member_password"`
	AdminPassword  string `mapstructure:"admin_password"`

	// Client-side negotiation timings.
	OfferStagger    time.Duration `mapstructure:"offer_stagger"`
	JoinOfferDelay  time.Duration `mapstructure:"join_offer_delay"`
	RestartDelay    time.Duration `mapstructure:"restart_delay"`
	DisconnectGrace time.Duration `mapstructure:"disconnect_grace"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("member_password", "voice2024")
	v.SetDefault("admin_password", "change-me")
	v.SetDefault("offer_stagger", "200ms")
	v.SetDefault("join_offer_delay", "100ms")
	v.SetDefault("restart_delay", "1s")
	v.SetDefault("disconnect_grace", "5s")

	v.SetEnvPrefix("voicemesh")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// Timings is the subset of config the client negotiation layer needs.
type Timings struct {
	OfferStagger    time.Duration
	JoinOfferDelay  time.Duration
	RestartDelay    time.Duration
	DisconnectGrace time.Duration
}

func (c *Config) Timings() Timings {
	return Timings{
		OfferStagger:    c.OfferStagger,
		JoinOfferDelay:  c.JoinOfferDelay,
		RestartDelay:    c.RestartDelay,
		DisconnectGrace: c.DisconnectGrace,
	}
}
