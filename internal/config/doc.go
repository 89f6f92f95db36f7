// Package config defines application configuration structures and handles
// loading configuration values from environment variables and config files
// with defined precedence rules.
package config
