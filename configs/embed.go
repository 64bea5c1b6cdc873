// Package configs provides embedded configuration templates for markrag.
//
// Templates are embedded at build time so `markrag config init` works for
// source builds and binary releases alike.
//
// Configuration hierarchy (see internal/config Load()):
//  1. Hardcoded defaults (internal/config NewConfig())
//  2. User config (~/.config/markrag/config.yaml)
//  3. Explicit --config file
//  4. .env in the working directory
//  5. Environment variables (MARKRAG_*, OPENAI_API_KEY)
package configs

import _ "embed"

// UserConfigTemplate is written by `markrag config init` to
// ~/.config/markrag/config.yaml.
//
//go:embed user-config.example.yaml
var UserConfigTemplate string
