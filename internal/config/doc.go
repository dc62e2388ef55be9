// Package config loads and validates backtest run configuration from
// YAML. Environment variables in ${VAR} form are expanded before
// parsing; defaults are applied before validation.
package config
