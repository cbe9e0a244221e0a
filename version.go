package arbor

// Version is the release version, set at build time with
// -ldflags "-X github.com/aretw0/arbor.Version=...".
var Version = "dev"
