// Package common holds process-wide helpers shared by all binaries.
package common

// PackageName is used as the metrics namespace.
const PackageName = "certificate_trust"

// Version is set at build time via -ldflags.
var Version = "dev"
