// Package version provides build and version information for watermon.
package version

// Version is the current release version of watermon.
// This can be overridden at build time using:
//
//	go build -ldflags "-X github.com/AaronLay10/watermon/internal/version.Version=x.y.z"
var Version = "1.0.0"
