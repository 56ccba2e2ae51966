// Package config loads the .adsenv configuration for the ads CLI.
// The file is a key=value list (with # comments) discovered in the
// current directory, the user's home directory, ~/.config, or /etc/ads.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	fileName  = ".adsenv"
	envPrefix = "ADS"

	keyAPIKey       = "API_KEY"
	keyBaseURL      = "BASE_URL"
	keyModel        = "MODEL"
	keySystemPrompt = "SYSTEM_PROMPT"

	// DefaultModel is used when the config file does not name one.
	DefaultModel = "deepseek-chat"
	// DefaultSystemPrompt seeds the system message of every request.
	DefaultSystemPrompt = "You are a helpful assistant."
)

// Config holds the resolved API configuration. It is passed around by
// reference; nothing in the process retains shared mutable config state.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string

	// Source is the config file the values came from, empty when the
	// configuration was assembled from environment and defaults only.
	Source string
}

// Load reads configuration from path, or discovers a .adsenv file when
// path is empty. ADS_-prefixed environment variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("env")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(fileName)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
			v.AddConfigPath(filepath.Join(home, ".config"))
		}
		v.AddConfigPath("/etc/ads")
	}

	v.SetDefault(keyModel, DefaultModel)
	v.SetDefault(keySystemPrompt, DefaultSystemPrompt)
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read %s: %w", fileName, err)
		}
		// No file anywhere. Environment variables may still carry the keys.
	}

	cfg := &Config{
		APIKey:       v.GetString(keyAPIKey),
		BaseURL:      v.GetString(keyBaseURL),
		Model:        v.GetString(keyModel),
		SystemPrompt: v.GetString(keySystemPrompt),
		Source:       v.ConfigFileUsed(),
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	return cfg, nil
}

// Validate reports whether the configuration can authorize a request.
func (c *Config) Validate() error {
	if c.APIKey == "" || c.BaseURL == "" {
		return fmt.Errorf("invalid configuration: API_KEY and BASE_URL must be set in %s (searched ., ~, ~/.config, /etc/ads) or via %s_* environment variables", fileName, envPrefix)
	}
	return nil
}

// DumpJSON renders the configuration and the built-in defaults the way
// `ads --print-env` reports them.
func (c *Config) DumpJSON() (string, error) {
	doc := map[string]any{
		"configuration": map[string]string{
			"api_key":       c.APIKey,
			"base_url":      c.BaseURL,
			"model":         c.Model,
			"system_prompt": c.SystemPrompt,
		},
		"constants": map[string]string{
			"DEFAULT_MODEL":         DefaultModel,
			"DEFAULT_SYSTEM_PROMPT": DefaultSystemPrompt,
		},
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
