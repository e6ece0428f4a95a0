package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Game   GameConfig   `mapstructure:"game"`
	Log    LogConfig    `mapstructure:"log"`
}

type ServerConfig struct {
	HTTPAddress      string        `mapstructure:"http_address"`
	RPCAddress       string        `mapstructure:"rpc_address"`
	HealthAddress    string        `mapstructure:"health_address"`
	MetricsAddress   string        `mapstructure:"metrics_address"`
	MetricsNamespace string        `mapstructure:"metrics_namespace"`
	Heartbeat        time.Duration `mapstructure:"heartbeat"`
}

// GameConfig 房间参数
type GameConfig struct {
	DefaultRoom     string        `mapstructure:"default_room"`
	MaxPlayers      int           `mapstructure:"max_players"`
	StartingBalance int64         `mapstructure:"starting_balance"`
	BettingWindow   time.Duration `mapstructure:"betting_window"`
	SpinDelay       time.Duration `mapstructure:"spin_delay"`
	TickInterval    time.Duration `mapstructure:"tick_interval"`
	HistoryLimit    int           `mapstructure:"history_limit"`
	TimerResolution time.Duration `mapstructure:"timer_resolution"`
}

type LogConfig struct {
	Development bool `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_address", ":8080")
	v.SetDefault("server.rpc_address", ":8081")
	v.SetDefault("server.health_address", ":8082")
	v.SetDefault("server.metrics_address", ":9090")
	v.SetDefault("server.metrics_namespace", "roulette")
	v.SetDefault("server.heartbeat", "30s")

	v.SetDefault("game.default_room", "main")
	v.SetDefault("game.max_players", 5)
	v.SetDefault("game.starting_balance", 1000)
	v.SetDefault("game.betting_window", "30s")
	v.SetDefault("game.spin_delay", "1600ms")
	v.SetDefault("game.tick_interval", "250ms")
	v.SetDefault("game.history_limit", 20)
	v.SetDefault("game.timer_resolution", "25ms")

	v.SetDefault("log.development", false)
}

// LoadConfig reads config.yaml from path. A missing file is not an error;
// defaults and ROULETTE_* environment variables still apply, e.g.
// ROULETTE_GAME_MAX_PLAYERS=8.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("ROULETTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	g := c.Game
	switch {
	case g.MaxPlayers <= 0:
		return errors.New("game.max_players must be positive")
	case g.StartingBalance < 0:
		return errors.New("game.starting_balance must not be negative")
	case g.BettingWindow <= 0 || g.SpinDelay <= 0 || g.TickInterval <= 0:
		return errors.New("game durations must be positive")
	case g.DefaultRoom == "":
		return errors.New("game.default_room must not be empty")
	}
	return nil
}
