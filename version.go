package trellis

// Version identifies the build. Release builds set it with -ldflags.
var Version = "0.1.0-dev"
