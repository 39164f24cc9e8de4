// Package version contains the linksweep build version.
package version

// Version is the symbolic version of this build. It is meant to be
// overridden at build time with -ldflags.
var Version = "v0.0.0-dev"
