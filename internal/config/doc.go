// Package config loads extload's configuration.
//
// Configuration is organized in layers with higher layers overriding lower:
//
//	┌─────────────────────────────┐
//	│  5. Command Line Flags      │  ← Highest priority
//	├─────────────────────────────┤
//	│  4. Environment Variables   │  ← EXTLOAD_*, plus .env
//	├─────────────────────────────┤
//	│  3. Explicit --config file  │
//	├─────────────────────────────┤
//	│  2. Project/User files      │  ← .extload/config.toml, ~/.config/extload/config.toml
//	├─────────────────────────────┤
//	│  1. Built-in Defaults       │  ← Lowest priority
//	└─────────────────────────────┘
//
// Files may be TOML, YAML or JSON. Environment variables map to keys by
// upper-casing and replacing dots with underscores, so
// EXTLOAD_EXTENSIONS_INIT_TIMEOUT sets extensions.init_timeout.
package config
