// Package config loads gitstate settings.
//
// Settings are resolved in layers, each overriding the previous one:
//
//  1. Built-in defaults (Default)
//  2. One config file: --config, else .gitstate.toml, .gitstate.yaml or
//     .gitstate.yml in the repository root, else config.{toml,yaml,yml}
//     in the user config directory under gitstate/
//  3. GITSTATE_* environment variables (EnvVars lists them)
//
// The result is validated before use. Durations are written as strings:
//
//	[watcher]
//	debounce = "100ms"
//
//	[coordinator]
//	settle = "25ms"
//	max_parallelism = 4
package config
