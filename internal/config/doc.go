// Package config provides configuration loading and validation for the ASR
// bridge service. It handles YAML-based configuration with struct validation,
// named session profiles, and coercion of KEY=VALUE engine option pairs.
package config
