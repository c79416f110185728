// This file defines the configuration structure for the application.
package config

import (
	// use Viper for loading the config.yml file.
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration settings for the application.
// It maps directly to the structure of config.yml.
type Config struct {
	Port     int `mapstructure:"port"`
	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`
	Webhook struct {
		// Secret is the shared secret the worker tier must present on
		// completion webhooks. Empty means every webhook is rejected.
		Secret string `mapstructure:"secret"`
	} `mapstructure:"webhook"`
	Processing struct {
		StaleAfterMinutes    int `mapstructure:"stale_after_minutes"`
		SweepIntervalMinutes int `mapstructure:"sweep_interval_minutes"`
	} `mapstructure:"processing"`
	Events struct {
		BufferSize       int `mapstructure:"buffer_size"`
		BufferTTLMinutes int `mapstructure:"buffer_ttl_minutes"`
	} `mapstructure:"events"`
	Subscriptions struct {
		MaxConnections     int `mapstructure:"max_connections"`
		IdleTimeoutMinutes int `mapstructure:"idle_timeout_minutes"`
	} `mapstructure:"subscriptions"`
}

// Load reads configuration from a file named "config.yml" in the
// current directory and unmarshals it into a Config struct.
func Load() (*Config, error) {
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")    // or "yaml"
	viper.AddConfigPath(".")      // looking for config in the current directory

	// --- Environment Variable Overrides ---
	// This tells Viper to look for environment variables with a "MOVEBOARD_"
	// prefix. e.g., MOVEBOARD_DATABASE_PATH overrides the `database.path` key.
	viper.SetEnvPrefix("MOVEBOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set default values
	viper.SetDefault("port", 8080)
	viper.SetDefault("database.path", "./moveboard.db")
	viper.SetDefault("webhook.secret", "")
	viper.SetDefault("processing.stale_after_minutes", 10)
	viper.SetDefault("processing.sweep_interval_minutes", 5)
	viper.SetDefault("events.buffer_size", 20)
	viper.SetDefault("events.buffer_ttl_minutes", 5)
	viper.SetDefault("subscriptions.max_connections", 100)
	viper.SetDefault("subscriptions.idle_timeout_minutes", 15)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; ignore error and use defaults
		} else {
			// Config file was found but another error was produced
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
