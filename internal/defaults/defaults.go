// Package defaults provides embedded copies of the example config,
// persona, and shipped skill descriptors for use by the init
// subcommand. The files live here because go:embed requires embedded
// files to reside in or below the embedding package directory.
package defaults

import "embed"

// ConfigYAML is the example configuration file.
//
//go:embed config.example.yaml
var ConfigYAML []byte

// PersonaMD is the example persona file.
//
//go:embed persona.example.md
var PersonaMD []byte

// SkillFiles contains the shipped skill descriptor documents.
//
//go:embed skills/*.md
var SkillFiles embed.FS
