package version

// Version wird beim Build via -ldflags "-X github.com/nanochat/nanochat/version.Version=..." gesetzt
var Version string = "0.0.0"
