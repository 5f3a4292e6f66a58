package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/eddielth/vbox-mqtt/logger"
	"github.com/eddielth/vbox-mqtt/validator"
)

// EnvPrefix is the prefix for environment overrides, e.g. VBOXMQTT_MQTT_HOST
const EnvPrefix = "VBOXMQTT"

// Config is the complete runtime configuration
type Config struct {
	MQTT      MQTTConfig      `mapstructure:"mqtt"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	VBox      VBoxConfig      `mapstructure:"vbox"`
	Poll      PollConfig      `mapstructure:"poll"`
	Filter    FilterConfig    `mapstructure:"filter"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// MQTTConfig describes the broker connection
type MQTTConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ClientID       string        `mapstructure:"client_id"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	KeepAlive      time.Duration `mapstructure:"keep_alive"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
	// Inbound command queue length between the paho router and the bridge loop
	CommandBuffer int `mapstructure:"command_buffer"`
}

// BrokerURL returns the paho broker address
func (c MQTTConfig) BrokerURL() string {
	return fmt.Sprintf("tcp://%s:%d", c.Host, c.Port)
}

// DiscoveryConfig names the topic trees used on the bus
type DiscoveryConfig struct {
	// Home Assistant discovery prefix
	Prefix string `mapstructure:"prefix"`
	// Namespace for status, command and availability topics; also the unique_id prefix
	Namespace string `mapstructure:"namespace"`
}

// CommandTopic is the single topic the bridge subscribes to
func (c DiscoveryConfig) CommandTopic() string {
	return c.Namespace + "/command"
}

// StatusTopic is the retained per-VM state topic
func (c DiscoveryConfig) StatusTopic(vm string) string {
	return c.Namespace + "/" + vm + "/status"
}

// AvailabilityTopic carries the bridge's online/offline marker
func (c DiscoveryConfig) AvailabilityTopic() string {
	return c.Namespace + "/availability"
}

// ConfigTopic returns <prefix>/<component>/<vm>_<object>/config
func (c DiscoveryConfig) ConfigTopic(component, vm, object string) string {
	return fmt.Sprintf("%s/%s/%s_%s/config", c.Prefix, component, vm, object)
}

// VBoxConfig controls how VBoxManage is invoked
type VBoxConfig struct {
	Binary string `mapstructure:"binary"`
	// Privilege elevation command, empty runs the binary directly
	Sudo    string        `mapstructure:"sudo"`
	User    string        `mapstructure:"user"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// PollConfig controls the status refresh loop
type PollConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// FilterConfig selects the optional VM exposure script
type FilterConfig struct {
	ScriptPath string `mapstructure:"script_path"`
	ScriptCode string `mapstructure:"script_code"`
}

// Enabled reports whether a script is configured
func (c FilterConfig) Enabled() bool {
	return c.ScriptPath != "" || c.ScriptCode != ""
}

// LoggerConfig controls log level, rotation and console output
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	Console    bool   `mapstructure:"console"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	// Listen address such as ":9101", empty disables the endpoint
	Listen string `mapstructure:"listen"`
	Path   string `mapstructure:"path"`
}

// ConfigChangeCallback receives each validated config after the file changes
type ConfigChangeCallback func(cfg *Config) error

func setDefaults() {
	viper.SetDefault("mqtt.host", "192.168.1.65")
	viper.SetDefault("mqtt.port", 1883)
	viper.SetDefault("mqtt.client_id", "")
	viper.SetDefault("mqtt.username", "mqtt")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.keep_alive", 60*time.Second)
	viper.SetDefault("mqtt.connect_timeout", 10*time.Second)
	viper.SetDefault("mqtt.publish_timeout", 5*time.Second)
	viper.SetDefault("mqtt.command_buffer", 16)

	viper.SetDefault("discovery.prefix", "homeassistant")
	viper.SetDefault("discovery.namespace", "virtualbox")

	viper.SetDefault("vbox.binary", "VBoxManage")
	viper.SetDefault("vbox.sudo", "sudo")
	viper.SetDefault("vbox.user", "vbox")
	viper.SetDefault("vbox.timeout", 30*time.Second)

	viper.SetDefault("poll.interval", 5*time.Second)

	viper.SetDefault("filter.script_path", "")
	viper.SetDefault("filter.script_code", "")

	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.file_path", "")
	viper.SetDefault("logger.max_size", 10)
	viper.SetDefault("logger.max_backups", 5)
	viper.SetDefault("logger.console", true)

	viper.SetDefault("metrics.listen", "")
	viper.SetDefault("metrics.path", "/metrics")
}

// BindFlags lets command line flags override file and env values
func BindFlags(flags *pflag.FlagSet) error {
	if f := flags.Lookup("log-level"); f != nil {
		if err := viper.BindPFlag("logger.level", f); err != nil {
			return err
		}
	}
	if f := flags.Lookup("metrics-listen"); f != nil {
		if err := viper.BindPFlag("metrics.listen", f); err != nil {
			return err
		}
	}
	return nil
}

// LoadConfig reads configPath on top of the built-in defaults. A missing
// file is not an error; defaults and environment overrides still apply.
func LoadConfig(configPath string) (*Config, error) {
	setDefaults()
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if configPath != "" {
		viper.SetConfigFile(configPath)
		viper.SetConfigType("yaml")
		if err := viper.ReadInConfig(); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("read config %s: %w", configPath, err)
			}
			logger.Warn("config file %s not found, using defaults", configPath)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Validate checks ranges and required names
func (c *Config) Validate() error {
	return errors.Join(
		validator.ValidateAll(c.MQTT,
			&validator.NotEmptyValidator{Field: "Host"},
			&validator.RangeValidator{Field: "Port", Min: 1, Max: 65535},
			&validator.RangeValidator{Field: "CommandBuffer", Min: 1, Max: 4096},
			&validator.RangeValidator{Field: "PublishTimeout", Min: float64(time.Millisecond), Max: float64(time.Hour)},
		),
		validator.ValidateAll(c.Discovery,
			&validator.NotEmptyValidator{Field: "Prefix"},
			&validator.NotEmptyValidator{Field: "Namespace"},
		),
		validator.ValidateAll(c.VBox,
			&validator.NotEmptyValidator{Field: "Binary"},
			&validator.RangeValidator{Field: "Timeout", Min: float64(time.Millisecond), Max: float64(24 * time.Hour)},
		),
		validator.ValidateAll(c.Poll,
			&validator.RangeValidator{Field: "Interval", Min: float64(100 * time.Millisecond), Max: float64(24 * time.Hour)},
		),
	)
}

// WatchConfig re-reads configPath whenever it changes and hands the result
// to callback. Rewrites that fail to decode or validate are logged and
// dropped, leaving the running config in place.
func WatchConfig(configPath string, callback ConfigChangeCallback) error {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return err
	}

	viper.SetConfigFile(absPath)
	viper.WatchConfig()

	// editors often emit several writes per save
	var lastChangeTime time.Time
	var debounceInterval = 2 * time.Second

	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		now := time.Now()
		if now.Sub(lastChangeTime) < debounceInterval {
			return
		}
		lastChangeTime = now

		logger.Info("config file changed: %s", e.Name)

		var newConfig Config
		if err := viper.Unmarshal(&newConfig); err != nil {
			logger.Error("failed to decode updated config: %v", err)
			return
		}
		if err := newConfig.Validate(); err != nil {
			logger.Error("updated config rejected: %v", err)
			return
		}

		if err := callback(&newConfig); err != nil {
			logger.Error("failed to apply updated config: %v", err)
			return
		}

		logger.Info("updated config applied")
	})

	return nil
}
