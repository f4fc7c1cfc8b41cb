// Copyright 2025 Insights Agent Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var (
	// ErrMissingRequiredField is returned when a required configuration field is missing
	ErrMissingRequiredField = errors.New("missing required configuration field")
	// ErrInvalidConfigValue is returned when a configuration value is invalid
	ErrInvalidConfigValue = errors.New("invalid configuration value")
)

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	PostHog    PostHogConfig    `mapstructure:"posthog"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	ElevenLabs ElevenLabsConfig `mapstructure:"elevenlabs"`
	Recall     RecallConfig     `mapstructure:"recall"`
	Agent      AgentConfig      `mapstructure:"agent"`
	Transcript TranscriptConfig `mapstructure:"transcript"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port string `mapstructure:"port"`
}

// PostHogConfig contains analytics provider API configuration
type PostHogConfig struct {
	Host           string `mapstructure:"host"`
	ProjectID      string `mapstructure:"project_id"`
	PersonalAPIKey string `mapstructure:"personal_api_key"`
}

// OpenAIConfig contains OpenAI API configuration
type OpenAIConfig struct {
	APIKey    string `mapstructure:"apikey"`
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

// ElevenLabsConfig contains text-to-speech configuration
type ElevenLabsConfig struct {
	APIKey       string `mapstructure:"apikey"`
	VoiceID      string `mapstructure:"voice_id"`
	ModelID      string `mapstructure:"model_id"`
	OutputFormat string `mapstructure:"output_format"`
}

// RecallConfig contains meeting-bot platform configuration
type RecallConfig struct {
	Host          string `mapstructure:"host"`
	APIToken      string `mapstructure:"api_token"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// AgentConfig contains agent flow configuration
type AgentConfig struct {
	StandingQuery        string `mapstructure:"standing_query"`
	PendingAudioTTLMin   int    `mapstructure:"pending_audio_ttl_minutes"`
	ScreenshareImagePath string `mapstructure:"screenshare_image_path"`
}

// TranscriptConfig contains transcript webhook configuration
type TranscriptConfig struct {
	TriggerPhrase string `mapstructure:"trigger_phrase"`
	DedupDBPath   string `mapstructure:"dedup_db_path"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed for field '%s': %s", e.Field, e.Message)
}

// LoadOptions contains options for configuration loading
type LoadOptions struct {
	ConfigPath       string
	ValidateRequired bool
}

// Load loads configuration from file and environment variables.
// Environment variables take precedence over config file values.
func Load(configPath string) (*Config, error) {
	return LoadWithOptions(LoadOptions{
		ConfigPath:       configPath,
		ValidateRequired: true,
	})
}

// LoadWithOptions loads configuration with additional options
func LoadWithOptions(opts LoadOptions) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// A missing config file is fine as long as the environment carries the secrets
	if err := setConfigFile(v, opts.ConfigPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setEnvironmentMappings(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if opts.ValidateRequired {
		if err := validateConfig(&config); err != nil {
			return nil, fmt.Errorf("configuration validation failed: %w", err)
		}
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8000")

	v.SetDefault("posthog.host", "https://us.posthog.com")

	v.SetDefault("openai.model", "gpt-4o-2024-08-06")
	v.SetDefault("openai.max_tokens", 2048)

	// Adam pre-made voice, turbo model for low latency
	v.SetDefault("elevenlabs.voice_id", "pNInz6obpgDQGcFmaJgB")
	v.SetDefault("elevenlabs.model_id", "eleven_turbo_v2")
	v.SetDefault("elevenlabs.output_format", "mp3_22050_32")

	v.SetDefault("recall.host", "https://us-west-2.recall.ai")

	v.SetDefault("agent.standing_query", "What are my top insights from yesterday?")
	v.SetDefault("agent.pending_audio_ttl_minutes", 15)

	v.SetDefault("transcript.trigger_phrase", "hey insights")
	v.SetDefault("transcript.dedup_db_path", "./transcripts.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// setConfigFile sets the configuration file path with fallback logic
func setConfigFile(v *viper.Viper, configPath string) error {
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		if _, err := os.Stat(envPath); err != nil {
			return fmt.Errorf("config file specified by CONFIG_PATH does not exist: %s", envPath)
		}
		v.SetConfigFile(envPath)
		return nil
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return fmt.Errorf("config file does not exist: %s", configPath)
		}
		v.SetConfigFile(configPath)
		return nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	for _, path := range []string{"./configs/config.yaml", "./config.yaml"} {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
	}

	return fmt.Errorf("no config file found in default locations (./configs/config.yaml, ./config.yaml)")
}

// setEnvironmentMappings sets explicit environment variable mappings
func setEnvironmentMappings(v *viper.Viper) {
	envMappings := map[string]string{
		"POSTHOG_PERSONAL_API_KEY": "posthog.personal_api_key",
		"POSTHOG_PROJECT_ID":       "posthog.project_id",
		"POSTHOG_HOST":             "posthog.host",
		"OPENAI_API_KEY":           "openai.apikey",
		"ELEVENLABS_API_KEY":       "elevenlabs.apikey",
		"RECALL_API_KEY":           "recall.api_token",
		"RECALL_WEBHOOK_SECRET":    "recall.webhook_secret",
		"PORT":                     "server.port",
		"LOG_LEVEL":                "logging.level",
		"LOG_FORMAT":               "logging.format",
	}

	for envVar, configKey := range envMappings {
		if value := os.Getenv(envVar); value != "" {
			v.Set(configKey, value)
		}
	}
}

// validateConfig validates the configuration for required fields and valid values
func validateConfig(config *Config) error {
	var errs []ValidationError

	if config.PostHog.PersonalAPIKey == "" {
		errs = append(errs, ValidationError{
			Field:   "posthog.personal_api_key",
			Message: "PostHog personal API key is required. Set via config file or POSTHOG_PERSONAL_API_KEY environment variable",
		})
	}

	if config.PostHog.ProjectID == "" {
		errs = append(errs, ValidationError{
			Field:   "posthog.project_id",
			Message: "PostHog project id is required. Set via config file or POSTHOG_PROJECT_ID environment variable",
		})
	}

	if config.OpenAI.APIKey == "" {
		errs = append(errs, ValidationError{
			Field:   "openai.apikey",
			Message: "OpenAI API key is required. Set via config file or OPENAI_API_KEY environment variable",
		})
	}

	if config.ElevenLabs.APIKey == "" {
		errs = append(errs, ValidationError{
			Field:   "elevenlabs.apikey",
			Message: "ElevenLabs API key is required. Set via config file or ELEVENLABS_API_KEY environment variable",
		})
	}

	if config.Recall.APIToken == "" {
		errs = append(errs, ValidationError{
			Field:   "recall.api_token",
			Message: "Recall API token is required. Set via config file or RECALL_API_KEY environment variable",
		})
	}

	if config.OpenAI.MaxTokens <= 0 {
		errs = append(errs, ValidationError{
			Field:   "openai.max_tokens",
			Message: "max_tokens must be greater than 0",
		})
	}

	if config.Agent.PendingAudioTTLMin <= 0 {
		errs = append(errs, ValidationError{
			Field:   "agent.pending_audio_ttl_minutes",
			Message: "pending_audio_ttl_minutes must be greater than 0",
		})
	}

	if config.Transcript.TriggerPhrase == "" {
		errs = append(errs, ValidationError{
			Field:   "transcript.trigger_phrase",
			Message: "trigger_phrase must not be empty",
		})
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, config.Logging.Level) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("log level must be one of: %s", strings.Join(validLogLevels, ", ")),
		})
	}

	validLogFormats := []string{"json", "text"}
	if !contains(validLogFormats, config.Logging.Format) {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("log format must be one of: %s", strings.Join(validLogFormats, ", ")),
		})
	}

	if len(errs) > 0 {
		var errorMessages []string
		for _, err := range errs {
			errorMessages = append(errorMessages, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errorMessages, "\n"))
	}

	return nil
}

// MaskSensitiveValues returns a copy of the config with sensitive values masked
func (c *Config) MaskSensitiveValues() *Config {
	masked := *c

	masked.PostHog.PersonalAPIKey = maskValue(masked.PostHog.PersonalAPIKey)
	masked.OpenAI.APIKey = maskValue(masked.OpenAI.APIKey)
	masked.ElevenLabs.APIKey = maskValue(masked.ElevenLabs.APIKey)
	masked.Recall.APIToken = maskValue(masked.Recall.APIToken)
	masked.Recall.WebhookSecret = maskValue(masked.Recall.WebhookSecret)

	return &masked
}

// maskValue masks sensitive values, showing only the first 8 characters
func maskValue(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 8 {
		return strings.Repeat("*", len(value))
	}
	return value[:8] + strings.Repeat("*", len(value)-8)
}

// contains checks if a slice contains a specific string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// WatchConfig enables configuration hot-reloading for development
func WatchConfig(configPath string, callback func(*Config)) error {
	v := viper.New()

	if err := setConfigFile(v, configPath); err != nil {
		return err
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		config, err := LoadWithOptions(LoadOptions{
			ConfigPath:       configPath,
			ValidateRequired: true,
		})
		if err != nil {
			fmt.Printf("Failed to reload config after change to %s: %v\n", e.Name, err)
			return
		}
		callback(config)
	})

	return nil
}
