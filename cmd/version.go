// -- cmd/version.go --
package cmd

// Version is the current release. Overridden at build time via -ldflags.
var Version = "0.3.0"
