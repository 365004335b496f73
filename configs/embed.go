// Package configs holds configuration templates embedded at build time,
// so `bookrag init` works the same from source builds and binary releases.
package configs

import _ "embed"

// ProjectConfigTemplate is the commented template written by
// `bookrag init` as .bookrag.yaml in the library directory.
//
//go:embed project-config.example.yaml
var ProjectConfigTemplate string
