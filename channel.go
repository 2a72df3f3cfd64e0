package condapypi

// Channel is one of a closed, configurable set of named conda upstreams.
// A Channel value is immutable once constructed.
type Channel struct {
	Name string
	// BaseURLs are tried in order for repodata and artifact retrieval.
	BaseURLs []string
	// HasChanneldata reports whether channeldata.json enumerates this
	// channel's subdirs. When false, Subdir discovery falls back to a
	// built-in default list (or, for labelled channels, to parsing the
	// label index page).
	HasChanneldata bool
	// SupportsRange reports whether the channel's artifact host honors
	// HTTP range requests. Channels known not to support ranges force
	// the full-download backend.
	SupportsRange bool
}

// DefaultSubdirs is the built-in subdir list used for channels whose
// channeldata.json is absent or doesn't enumerate subdirs.
var DefaultSubdirs = []Subdir{
	"linux-64",
	"linux-aarch64",
	"linux-ppc64le",
	"osx-64",
	"osx-arm64",
	"win-64",
	"noarch",
}

// Subdir is an architecture tag, e.g. "linux-64" or "noarch".
type Subdir string

// Label names a view inside a channel, e.g. "main" or a custom release
// label. Only channels lacking channeldata support labels.
type Label string

// ArtifactRef identifies a single conda artifact by its location and
// content hash.
type ArtifactRef struct {
	Channel  string
	Subdir   Subdir
	Filename string
	SHA256   string
}

// ShardKey is the sharding unit used by the Producer and Shard Worker:
// one subdir crossed with the first letter of the artifact filename.
func ShardKey(subdir Subdir, filename string) string {
	letter := "_"
	if len(filename) > 0 {
		letter = string(filename[0])
	}
	return string(subdir) + "@" + letter
}
