// Package config loads and validates application configuration from
// environment variables (PATHFORGE_ prefix) and an optional config.yaml.
// It gives every component type-safe access to its settings while keeping
// configuration sources out of business logic.
package config
