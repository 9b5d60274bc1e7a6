package envelope

import "strconv"

// Version identifies the wire format of an envelope.
type Version uint8

const (
	// Unknown is reported when neither the legacy predicate nor any mask
	// recognises a buffer.
	Unknown Version = iota
	// V1 is the first headered format.
	V1
	// Legacy marks buffers written before envelopes had a header. It is
	// selected by the legacy predicate, never by unmasking, and never written.
	Legacy
)

// Current is the version used for every new envelope.
const Current = V1

func (v Version) String() string {
	switch v {
	case Unknown:
		return "unknown"
	case V1:
		return "V1"
	case Legacy:
		return "legacy"
	}
	return "Version(" + strconv.Itoa(int(v)) + ")"
}

// versionInfo is one row of the version table.
type versionInfo struct {
	version Version
	mask    []byte
	decode  func(c *Codec, data []byte, compress bool, timestamp float64, dest any) error
}

// versions is checked in order by DecodeVersion. Legacy is deliberately absent.
var versions = []versionInfo{
	{version: V1, mask: []byte("V1"), decode: (*Codec).decodeV1},
}

func lookupVersion(v Version) (versionInfo, bool) {
	for _, info := range versions {
		if info.version == v {
			return info, true
		}
	}
	return versionInfo{}, false
}
