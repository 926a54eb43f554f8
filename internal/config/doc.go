// Package config loads the SuiCoPilot daemon configuration from a JSON file,
// overlays secrets from the environment (optionally sourced from a .env file)
// and fills in defaults relative to the configuration directory.
package config
