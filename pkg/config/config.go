// Package config provides YAML-based configuration loading for radiomesh.
package config

import (
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "strings"
    "time"

    "github.com/spf13/viper"
)

// Config is the root application configuration.
type Config struct {
    // AppName optional logical name of the node/application
    AppName string `mapstructure:"app_name"`

    // NodeID is the node's mesh address. 0 means "derive from identity".
    NodeID int32 `mapstructure:"node_id"`

    // Group selects the radio group; nodes on different groups never
    // hear each other.
    Group uint8 `mapstructure:"group"`

    // Log holds logging configuration
    Log LogConfig `mapstructure:"log"`

    // Radio configures the UDP radio channel
    Radio RadioConfig `mapstructure:"radio"`

    // Mesh holds protocol tuning knobs
    Mesh MeshConfig `mapstructure:"mesh"`

    // Identity controls the persisted node identity key.
    Identity IdentityConfig `mapstructure:"identity"`
}

// LogConfig defines logger settings.
type LogConfig struct {
    // Level: debug, info, warn, error
    Level string `mapstructure:"level"`
    // Format: console or json
    Format string `mapstructure:"format"`
    // Outputs: list of outputs: stdout, stderr, or file paths
    Outputs []string `mapstructure:"outputs"`

    // Rotation controls file rotation when writing to files
    Rotation RotationConfig `mapstructure:"rotation"`
    // Development toggles development-friendly logging options
    Development bool `mapstructure:"development"`
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

// RadioConfig configures the multicast channel emulating the shared radio.
type RadioConfig struct {
    GroupAddr string `mapstructure:"group_addr"` // multicast group address
    BasePort  int    `mapstructure:"base_port"`  // port for group 0
    TxPower   int    `mapstructure:"tx_power"`   // reported to receivers as rssi, dBm
}

// MeshConfig holds protocol tuning. Durations are milliseconds on disk.
type MeshConfig struct {
    TTL             int `mapstructure:"ttl"`
    DedupCapacity   int `mapstructure:"dedup_capacity"`
    RouteTimeoutMS  int `mapstructure:"route_timeout_ms"`
    HelloMinMS      int `mapstructure:"hello_min_ms"`
    HelloMaxMS      int `mapstructure:"hello_max_ms"`
    AckJitterMinMS  int `mapstructure:"ack_jitter_min_ms"`
    AckJitterMaxMS  int `mapstructure:"ack_jitter_max_ms"`
}

// IdentityConfig describes where the node identity key lives.
type IdentityConfig struct {
    PrivateKey     string `mapstructure:"private_key"`      // base64url(no padding) of raw private key bytes
    PrivateKeyFile string `mapstructure:"private_key_file"` // path to file containing base64 or raw bytes
}

// RouteTimeout returns the route expiry as a duration.
func (m MeshConfig) RouteTimeout() time.Duration { return time.Duration(m.RouteTimeoutMS) * time.Millisecond }

// HelloWindow returns the discovery interval window.
func (m MeshConfig) HelloWindow() (time.Duration, time.Duration) {
    return time.Duration(m.HelloMinMS) * time.Millisecond, time.Duration(m.HelloMaxMS) * time.Millisecond
}

// AckJitterWindow returns the reply jitter window.
func (m MeshConfig) AckJitterWindow() (time.Duration, time.Duration) {
    return time.Duration(m.AckJitterMinMS) * time.Millisecond, time.Duration(m.AckJitterMaxMS) * time.Millisecond
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
    return &Config{
        AppName: "radiomesh-node",
        NodeID:  0,
        Group:   0,
        Log: LogConfig{
            Level:       "info",
            Format:      "console",
            Outputs:     []string{"stdout"},
            Development: true,
            Rotation: RotationConfig{
                Enable:     false,
                Filename:   "logs/radiomesh.log",
                MaxSizeMB:  50,
                MaxBackups: 3,
                MaxAgeDays: 28,
                Compress:   true,
            },
        },
        Radio: RadioConfig{
            GroupAddr: "239.82.77.1",
            BasePort:  42100,
            TxPower:   -50,
        },
        Mesh: MeshConfig{
            TTL:            4,
            DedupCapacity:  20,
            RouteTimeoutMS: 60000,
            HelloMinMS:     15000,
            HelloMaxMS:     25000,
            AckJitterMinMS: 10,
            AckJitterMaxMS: 60,
        },
    }
}

// Load reads configuration from the provided path (if non-empty),
// otherwise it searches common locations and supports environment overrides.
// Environment variables use the prefix RADIOMESH and `.`/`-` are replaced
// with `_`. Example: RADIOMESH_LOG_LEVEL=debug
func Load(path string) (*Config, error) {
    cfg := Default()

    v := viper.New()
    v.SetConfigType("yaml")
    v.SetEnvPrefix("RADIOMESH")
    v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
    v.AutomaticEnv()

    // seed defaults for viper so env-only configs work
    v.SetDefault("app_name", cfg.AppName)
    v.SetDefault("node_id", cfg.NodeID)
    v.SetDefault("group", cfg.Group)
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
    v.SetDefault("radio.group_addr", cfg.Radio.GroupAddr)
    v.SetDefault("radio.base_port", cfg.Radio.BasePort)
    v.SetDefault("radio.tx_power", cfg.Radio.TxPower)
    v.SetDefault("mesh.ttl", cfg.Mesh.TTL)
    v.SetDefault("mesh.dedup_capacity", cfg.Mesh.DedupCapacity)
    v.SetDefault("mesh.route_timeout_ms", cfg.Mesh.RouteTimeoutMS)
    v.SetDefault("mesh.hello_min_ms", cfg.Mesh.HelloMinMS)
    v.SetDefault("mesh.hello_max_ms", cfg.Mesh.HelloMaxMS)
    v.SetDefault("mesh.ack_jitter_min_ms", cfg.Mesh.AckJitterMinMS)
    v.SetDefault("mesh.ack_jitter_max_ms", cfg.Mesh.AckJitterMaxMS)
    v.SetDefault("identity.private_key", cfg.Identity.PrivateKey)
    v.SetDefault("identity.private_key_file", cfg.Identity.PrivateKeyFile)

    if path == "" {
        if envPath := os.Getenv("RADIOMESH_CONFIG"); envPath != "" {
            path = envPath
        }
    }

    if path != "" {
        v.SetConfigFile(path)
    } else {
        // Search common locations with base name `radiomesh`
        v.SetConfigName("radiomesh")
        v.AddConfigPath(".")
        v.AddConfigPath("./configs")
        if home, err := os.UserHomeDir(); err == nil {
            v.AddConfigPath(filepath.Join(home, ".radiomesh"))
        }
    }

    // Read config file if present; if not found, continue with defaults/env
    if err := v.ReadInConfig(); err != nil {
        var notFound viper.ConfigFileNotFoundError
        if !errors.As(err, &notFound) {
            return nil, fmt.Errorf("read config: %w", err)
        }
    }

    if err := v.Unmarshal(&cfg); err != nil {
        return nil, fmt.Errorf("decode config: %w", err)
    }

    if err := cfg.validate(); err != nil {
        return nil, err
    }
    return cfg, nil
}

func (c *Config) validate() error {
    lvl := strings.ToLower(strings.TrimSpace(c.Log.Level))
    switch lvl {
    case "debug", "info", "warn", "warning", "error":
        // ok
    default:
        return fmt.Errorf("invalid log.level: %q", c.Log.Level)
    }

    if c.Log.Format == "" {
        c.Log.Format = "console"
    }
    if len(c.Log.Outputs) == 0 {
        c.Log.Outputs = []string{"stdout"}
    }
    if c.Mesh.TTL < 1 || c.Mesh.TTL > 7 {
        return fmt.Errorf("mesh.ttl must be 1..7, got %d", c.Mesh.TTL)
    }
    if c.Mesh.DedupCapacity < 1 {
        return fmt.Errorf("mesh.dedup_capacity must be positive, got %d", c.Mesh.DedupCapacity)
    }
    if c.Mesh.HelloMaxMS < c.Mesh.HelloMinMS {
        return fmt.Errorf("mesh.hello_max_ms below mesh.hello_min_ms")
    }
    if c.Mesh.AckJitterMaxMS < c.Mesh.AckJitterMinMS {
        return fmt.Errorf("mesh.ack_jitter_max_ms below mesh.ack_jitter_min_ms")
    }
    if c.Radio.BasePort < 1 || c.Radio.BasePort+255 > 65535 {
        return fmt.Errorf("radio.base_port out of range: %d", c.Radio.BasePort)
    }
    return nil
}

// MustLoad is a convenience that panics on error.
func MustLoad(path string) *Config {
    cfg, err := Load(path)
    if err != nil {
        panic(err)
    }
    return cfg
}
