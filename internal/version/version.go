package version

// Set at build time with
// -ldflags "-X github.com/OjusWiZard/triton-bot/internal/version.Version=... -X ...Commit=..."
var (
	Version = "unreleased"
	Commit  = "unknown"
)

func GetVersion() string {
	return Version
}

func GetCommit() string {
	return Commit
}
