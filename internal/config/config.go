// Package config loads runtime configuration from a file, TFLUNA_*
// environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/banshee-data/tfluna/internal/monitoring"
	"github.com/banshee-data/tfluna/internal/serialmux"
)

// EnvPrefix is prepended to environment overrides, e.g. TFLUNA_SERIAL_PORT.
const EnvPrefix = "TFLUNA"

// SerialConfig describes the sensor's serial port.
type SerialConfig struct {
	Port        string        `mapstructure:"port"`
	BaudRate    int           `mapstructure:"baudRate"`
	DataBits    int           `mapstructure:"dataBits"`
	StopBits    int           `mapstructure:"stopBits"`
	Parity      string        `mapstructure:"parity"`
	ReadTimeout time.Duration `mapstructure:"readTimeout"`
}

// PortOptions converts the serial settings for serialmux.OpenPort.
func (s SerialConfig) PortOptions() serialmux.PortOptions {
	return serialmux.PortOptions{
		BaudRate:    s.BaudRate,
		DataBits:    s.DataBits,
		StopBits:    s.StopBits,
		Parity:      s.Parity,
		ReadTimeout: s.ReadTimeout,
	}
}

// DBConfig locates the sqlite recording database.
type DBConfig struct {
	Path string `mapstructure:"path"`
}

// HTTPConfig configures the debug/admin listener used by serve.
type HTTPConfig struct {
	Listen string `mapstructure:"listen"`
}

// MetricsConfig toggles Prometheus metrics.
type MetricsConfig struct {
	Enable bool `mapstructure:"enable"`
}

// Config is the top level configuration.
type Config struct {
	Serial  SerialConfig             `mapstructure:"serial"`
	DB      DBConfig                 `mapstructure:"db"`
	HTTP    HTTPConfig               `mapstructure:"http"`
	Logging monitoring.LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig            `mapstructure:"metrics"`
}

// Load reads configuration from path (YAML, JSON or TOML by extension). An
// empty path falls back to $TFLUNA_CONFIG, then to an optional tfluna.yaml in
// the working directory or ./config. Environment variables override file
// values.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = v.GetString("CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.SetConfigName("tfluna")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		// a missing default file is fine; defaults and env still apply
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if _, err := cfg.Serial.PortOptions().Normalize(); err != nil {
		return nil, fmt.Errorf("serial config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("serial.port", "/dev/ttyUSB0")
	v.SetDefault("serial.baudRate", serialmux.DefaultBaudRate)
	v.SetDefault("serial.dataBits", 8)
	v.SetDefault("serial.stopBits", 1)
	v.SetDefault("serial.parity", "N")
	v.SetDefault("serial.readTimeout", "1s")

	v.SetDefault("db.path", "tfluna.db")

	v.SetDefault("http.listen", "localhost:8080")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.maxSize", 50)
	v.SetDefault("logging.file.maxBackups", 5)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", true)
}
