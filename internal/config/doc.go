// Package config handles configuration loading for groupwarden.
//
// Configuration is loaded from a YAML file with environment variable
// expansion. The default location is
// $XDG_CONFIG_HOME/groupwarden/config.yaml, overridable with the
// GROUPWARDEN_CONFIG environment variable.
//
// Values can reference environment variables with ${VAR_NAME} syntax:
//
//	matrix:
//	  access_token: "${GROUPWARDEN_MATRIX_TOKEN}"
//
// Duration values use Go's time.ParseDuration syntax:
//
//	moderation:
//	  notice_cooldown: "10m"
//
// Load validates required fields and fills defaults, including the
// receipt status code the self-heal layer listens for.
package config
