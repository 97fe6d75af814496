package api

// Version is the release version of the validator.
// It is overridden at build time via -ldflags.
var Version = "v0.1.0-dev"
