// Package meta holds build metadata shared by the engine and the CLI.
package meta

// Version is the release version, overridden at build time via
// -ldflags "-X github.com/pgveil/pgveil/internal/meta.Version=...".
var Version = "dev"
