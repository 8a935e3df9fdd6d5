package media

import "strings"

// Kind is the media category a generation produces.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
	KindMusic Kind = "music"
)

var kinds = []Kind{KindImage, KindVideo, KindAudio, KindMusic}

// Kinds lists every supported kind.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

// ParseKind normalizes value and reports whether it names a supported kind.
func ParseKind(value string) (Kind, bool) {
	k := Kind(strings.ToLower(strings.TrimSpace(value)))
	for _, known := range kinds {
		if k == known {
			return k, true
		}
	}
	return "", false
}

func (k Kind) String() string { return string(k) }
