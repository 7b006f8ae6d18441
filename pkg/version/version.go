package version

// Version is set at build time:
// go build -ldflags "-X github.com/pulpfiction/pulpfiction/pkg/version.Version=1.0.0".
var Version = "dev"
