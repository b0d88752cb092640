package sagaflow

// Version is overridden at build time with -ldflags "-X github.com/aretw0/sagaflow.Version=...".
var Version = "v0.1.0-dev"
