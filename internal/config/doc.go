// Package config loads, normalizes, and validates tankobon configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads an optional .env file next to the
// configuration, and honours environment fallbacks such as TANKOBON_API_TOKEN.
// The Config type centralizes every knob the daemon and CLI need so the
// staging, archive, and catalog locations are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
