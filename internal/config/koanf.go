// Coursetrace - Course Activity Log Analytics
// Copyright 2026 A. Moroz (amoroz)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/amoroz/coursetrace

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/coursetrace/config.yaml",
	"/etc/coursetrace/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "COURSETRACE_CONFIG"

// envPrefix is the prefix for all environment variable overrides.
const envPrefix = "COURSETRACE_"

// Load loads configuration using Koanf v2 with layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. COURSETRACE_* environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	// COURSETRACE_DATABASE_MAX_MEMORY -> database.max_memory
	envProvider := env.Provider(envPrefix, ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Comma-separated env values for slice-typed settings.
	if raw := k.String("processor.pipelines"); raw != "" && strings.Contains(raw, ",") {
		parts := strings.Split(raw, ",")
		ids := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				ids = append(ids, p)
			}
		}
		if err := k.Set("processor.pipelines", ids); err != nil {
			return nil, fmt.Errorf("failed to set pipeline list: %w", err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// envTransformFunc maps an environment variable name to a koanf path.
// The first token after the prefix selects the section; the remainder is
// the field name. All config sections are exactly one level deep.
func envTransformFunc(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	section, field, found := strings.Cut(s, "_")
	if !found {
		return s
	}
	return section + "." + field
}

// findConfigFile searches for a config file in the default paths.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
