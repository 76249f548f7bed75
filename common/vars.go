// Package common holds process-wide settings shared by the binaries.
package common

// Version is overridden at build time with -ldflags "-X .../common.Version=...".
var Version = "dev"

// PackageName is the service name used in logs by default.
const PackageName = "accesskeys-registry"
