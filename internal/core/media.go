package core

import "strings"

// MediaType is a bit-flag set of stream channels a session subscribes to.
type MediaType uint32

const (
	MediaAudio       MediaType = 1 << iota // 1
	MediaVideo                             // 2
	MediaScreenShare                       // 4
	MediaTranscript                        // 8
	MediaChat                              // 16

	// MediaAll is the union of every defined flag.
	MediaAll = MediaAudio | MediaVideo | MediaScreenShare | MediaTranscript | MediaChat
)

// legacyAll is the sentinel some older configurations use for "everything".
// It is not a valid flag combination and is normalized to MediaAll on parse.
const legacyAll = 32

// ParseMediaTypes converts a raw bitmask into a MediaType, normalizing the
// legacy "all" sentinel and masking out undefined bits.
func ParseMediaTypes(raw uint32) MediaType {
	if raw&legacyAll != 0 {
		return MediaAll
	}
	return MediaType(raw) & MediaAll
}

func (m MediaType) Has(flag MediaType) bool {
	return m&flag != 0
}

func (m MediaType) String() string {
	if m == 0 {
		return "none"
	}
	names := []struct {
		flag MediaType
		name string
	}{
		{MediaAudio, "audio"},
		{MediaVideo, "video"},
		{MediaScreenShare, "screen_share"},
		{MediaTranscript, "transcript"},
		{MediaChat, "chat"},
	}
	parts := make([]string, 0, len(names))
	for _, n := range names {
		if m.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}
