package photobooth

// Version is the release version. Builds may override it with
// -ldflags "-X github.com/aretw0/photobooth.Version=...".
var Version = "0.1.0"
