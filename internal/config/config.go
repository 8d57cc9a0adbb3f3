// Package config loads puckserver configuration from an optional YAML file
// and PUCK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/LemmyAI/puckserver/internal/transport"
)

// Config is the root application configuration.
type Config struct {
	Net    NetConfig    `mapstructure:"net"`
	Game   GameConfig   `mapstructure:"game"`
	Status StatusConfig `mapstructure:"status"`
	Bridge BridgeConfig `mapstructure:"bridge"`
	Log    LogConfig    `mapstructure:"log"`
}

// NetConfig configures the session transport.
type NetConfig struct {
	Port               int    `mapstructure:"port"`
	KeepAliveTimeoutMS int    `mapstructure:"keep_alive_timeout_ms"`
	WriteTimeoutMS     int    `mapstructure:"write_timeout_ms"`
	WriteQueueSize     int    `mapstructure:"write_queue_size"`
	MaxFrameSize       int    `mapstructure:"max_frame_size"`
	KickReason         string `mapstructure:"kick_reason"`
}

// GameConfig configures the puck simulation.
type GameConfig struct {
	TickRate    int     `mapstructure:"tick_rate"`
	SendRate    int     `mapstructure:"send_rate"`
	TableWidth  float64 `mapstructure:"table_width"`
	TableHeight float64 `mapstructure:"table_height"`
}

// StatusConfig configures the HTTP status endpoint. An empty Addr disables it.
type StatusConfig struct {
	Addr string `mapstructure:"addr"`
}

// BridgeConfig configures the WebSocket bridge.
type BridgeConfig struct {
	Addr     string `mapstructure:"addr"`
	Upstream string `mapstructure:"upstream"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: stdout, stderr, or file paths
	Outputs     []string       `mapstructure:"outputs"`
	Rotation    RotationConfig `mapstructure:"rotation"`
	Development bool           `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	tc := transport.DefaultConfig()
	return &Config{
		Net: NetConfig{
			Port:               tc.Port,
			KeepAliveTimeoutMS: int(tc.KeepAliveTimeout / time.Millisecond),
			WriteTimeoutMS:     int(tc.WriteTimeout / time.Millisecond),
			WriteQueueSize:     tc.WriteQueueSize,
			MaxFrameSize:       tc.MaxFrameSize,
			KickReason:         tc.KickReason,
		},
		Game: GameConfig{
			TickRate:    60,
			SendRate:    20,
			TableWidth:  800,
			TableHeight: 600,
		},
		Bridge: BridgeConfig{
			Addr:     ":8080",
			Upstream: "localhost:9000",
		},
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			Outputs:     []string{"stdout"},
			Development: true,
			Rotation: RotationConfig{
				Filename:   "logs/puckserver.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
	}
}

// Load reads configuration from path (if non-empty), otherwise it searches
// common locations. Environment variables use the prefix PUCK with `.` and
// `-` replaced by `_`, e.g. PUCK_NET_PORT=9100.
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("PUCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults so env-only configs work
	v.SetDefault("net.port", cfg.Net.Port)
	v.SetDefault("net.keep_alive_timeout_ms", cfg.Net.KeepAliveTimeoutMS)
	v.SetDefault("net.write_timeout_ms", cfg.Net.WriteTimeoutMS)
	v.SetDefault("net.write_queue_size", cfg.Net.WriteQueueSize)
	v.SetDefault("net.max_frame_size", cfg.Net.MaxFrameSize)
	v.SetDefault("net.kick_reason", cfg.Net.KickReason)
	v.SetDefault("game.tick_rate", cfg.Game.TickRate)
	v.SetDefault("game.send_rate", cfg.Game.SendRate)
	v.SetDefault("game.table_width", cfg.Game.TableWidth)
	v.SetDefault("game.table_height", cfg.Game.TableHeight)
	v.SetDefault("status.addr", cfg.Status.Addr)
	v.SetDefault("bridge.addr", cfg.Bridge.Addr)
	v.SetDefault("bridge.upstream", cfg.Bridge.Upstream)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)

	if path == "" {
		path = os.Getenv("PUCK_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("puckserver")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".puckserver"))
		}
	}

	// a missing config file is fine; defaults and env still apply
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and fills empty optional fields.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Log.Level)) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	if c.Net.Port < 0 || c.Net.Port > 65535 {
		return fmt.Errorf("invalid net.port: %d", c.Net.Port)
	}
	if c.Net.KeepAliveTimeoutMS <= 0 {
		return fmt.Errorf("invalid net.keep_alive_timeout_ms: %d", c.Net.KeepAliveTimeoutMS)
	}
	if c.Game.TickRate <= 0 {
		return fmt.Errorf("invalid game.tick_rate: %d", c.Game.TickRate)
	}
	if c.Game.SendRate <= 0 || c.Game.SendRate > c.Game.TickRate {
		return fmt.Errorf("invalid game.send_rate: %d", c.Game.SendRate)
	}
	if c.Game.TableWidth <= 0 || c.Game.TableHeight <= 0 {
		return fmt.Errorf("invalid table size: %vx%v", c.Game.TableWidth, c.Game.TableHeight)
	}

	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stdout"}
	}
	return nil
}

// Transport converts the net section into a transport.Config.
func (c *Config) Transport() transport.Config {
	return transport.Config{
		Port:             c.Net.Port,
		KeepAliveTimeout: time.Duration(c.Net.KeepAliveTimeoutMS) * time.Millisecond,
		WriteTimeout:     time.Duration(c.Net.WriteTimeoutMS) * time.Millisecond,
		WriteQueueSize:   c.Net.WriteQueueSize,
		MaxFrameSize:     c.Net.MaxFrameSize,
		KickReason:       c.Net.KickReason,
	}
}

// MustLoad is a convenience that panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}
