// Package version holds the pvectl build version, set at link time with
// -ldflags "-X github.com/MrEthical07/pveauth/internal/version.Version=...".
package version

var Version = "0.1.0-dev"
