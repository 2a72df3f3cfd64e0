package condapypi

// KnownChannels is the closed set of conda-forge-style upstreams this
// system understands out of the box, resolved from the original
// system's SupportedChannels/ChannelUrls enum. A deployment targeting a
// labelled, private channel constructs its own Channel value instead of
// looking it up here.
var KnownChannels = map[string]Channel{
	"conda-forge": {
		Name:           "conda-forge",
		BaseURLs:       []string{"https://conda.anaconda.org/conda-forge"},
		HasChanneldata: true,
		SupportsRange:  true,
	},
	"pytorch": {
		Name:           "pytorch",
		BaseURLs:       []string{"https://conda.anaconda.org/pytorch"},
		HasChanneldata: true,
		SupportsRange:  true,
	},
	"bioconda": {
		Name:           "bioconda",
		BaseURLs:       []string{"https://conda.anaconda.org/bioconda"},
		HasChanneldata: true,
		SupportsRange:  true,
	},
	"tango-controls": {
		Name:           "tango-controls",
		BaseURLs:       []string{"https://conda.anaconda.org/tango-controls"},
		HasChanneldata: false,
		SupportsRange:  true,
	},
}

// LookupChannel resolves name against KnownChannels, falling back to a
// bare Channel pointed at the standard anaconda.org mirror layout for
// any name outside the known set.
func LookupChannel(name string) Channel {
	if ch, ok := KnownChannels[name]; ok {
		return ch
	}
	return Channel{
		Name:          name,
		BaseURLs:      []string{"https://conda.anaconda.org/" + name},
		SupportsRange: true,
	}
}
