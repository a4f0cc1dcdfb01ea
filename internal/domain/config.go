// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

// Config holds the application configuration after viper unmarshals it.
type Config struct {
	Version string `mapstructure:"-"`

	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	BaseURL string `mapstructure:"baseUrl"`

	LogLevel      string `mapstructure:"logLevel"`
	LogPath       string `mapstructure:"logPath"`
	LogMaxSize    int    `mapstructure:"logMaxSize"` // MB
	LogMaxBackups int    `mapstructure:"logMaxBackups"`

	DefinitionsDir string `mapstructure:"definitionsDir"`

	// Search tuning.
	MaxConcurrentSearches  int `mapstructure:"maxConcurrentSearches"`
	InstanceTimeoutSeconds int `mapstructure:"instanceTimeoutSeconds"`
	RateLimitRequests      int `mapstructure:"rateLimitRequests"`
	RateLimitWindowSeconds int `mapstructure:"rateLimitWindowSeconds"`
	RateLimitMaxWaitMillis int `mapstructure:"rateLimitMaxWaitMillis"`

	// Dedup policy. Fuzzy title matching is off unless a threshold is set.
	FuzzyDedupeThreshold int `mapstructure:"fuzzyDedupeThreshold"`
}
