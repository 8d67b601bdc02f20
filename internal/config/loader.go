package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// ConfigLoader handles configuration loading using Viper.
type ConfigLoader struct {
	viper  *viper.Viper
	logger *logrus.Logger
}

// NewConfigLoader creates a new configuration loader.
func NewConfigLoader() *ConfigLoader {
	v := viper.New()

	v.SetConfigType("yaml")

	v.SetEnvPrefix("NVR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &ConfigLoader{
		viper:  v,
		logger: logrus.New(),
	}
}

// LoadConfig loads configuration from the specified file path.
func (cl *ConfigLoader) LoadConfig(configPath string) (*Config, error) {
	cl.viper.SetConfigFile(configPath)

	cl.setDefaults()

	if err := cl.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			cl.logger.Warn("Configuration file not found, using defaults")
		} else if os.IsNotExist(err) {
			cl.logger.Warn("Configuration file not found, using defaults")
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := cl.viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	cl.logger.Info("Configuration loaded successfully")
	return &config, nil
}

// setDefaults sets default configuration values matching SPEC_FULL.md §6.
func (cl *ConfigLoader) setDefaults() {
	cl.viper.SetDefault("recording.file_format", "mp4")
	cl.viper.SetDefault("recording.codec", "h264")
	cl.viper.SetDefault("recording.rotation_minutes", 60)
	cl.viper.SetDefault("recording.fragment_duration_ms", 1000)
	cl.viper.SetDefault("recording.max_segment_bytes", int64(2*1024*1024*1024))

	cl.viper.SetDefault("streaming.latency_ms", 200)
	cl.viper.SetDefault("streaming.tcp_timeout_ms", 10000)
	cl.viper.SetDefault("streaming.keepalive_timeout_s", 5)
	cl.viper.SetDefault("streaming.use_hardware_acceleration", false)
	cl.viper.SetDefault("streaming.decoder_preference", []string{"h264", "h265"})
	cl.viper.SetDefault("streaming.osd.show_timestamp", true)
	cl.viper.SetDefault("streaming.osd.show_camera_name", true)
	cl.viper.SetDefault("streaming.osd.font", "sans")
	cl.viper.SetDefault("streaming.osd.color", "white")
	cl.viper.SetDefault("streaming.osd.alignment", "top-left")
	cl.viper.SetDefault("streaming.osd.padding", 8)
	cl.viper.SetDefault("streaming.default_layout", "grid")
	cl.viper.SetDefault("streaming.max_reconnect_attempts", 10)
	cl.viper.SetDefault("streaming.reconnect_delay_seconds", 5)

	cl.viper.SetDefault("storage.recording_path", "/var/lib/nvr/recordings")
	cl.viper.SetDefault("storage.min_free_space_gb", 1.0)
	cl.viper.SetDefault("storage.warn_free_space_gb", 5.0)

	cl.viper.SetDefault("logging.level", "info")
	cl.viper.SetDefault("logging.format", "text")
	cl.viper.SetDefault("logging.file_enabled", true)
	cl.viper.SetDefault("logging.file_path", "/var/log/nvr/pipeline.log")
	cl.viper.SetDefault("logging.max_file_size_mb", 10)
	cl.viper.SetDefault("logging.backup_count", 5)
	cl.viper.SetDefault("logging.console_enabled", true)
}

// GetViper returns the underlying Viper instance for advanced usage.
func (cl *ConfigLoader) GetViper() *viper.Viper {
	return cl.viper
}
