// Package common contains process-wide helpers shared by the commands.
package common

// Version is overridden at build time with -ldflags "-X .../common.Version=..."
var Version = "dev"

// PackageName is used as the Prometheus namespace.
const PackageName = "kms_identity"
