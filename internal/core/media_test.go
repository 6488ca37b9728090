package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMediaAllIsUnionOfFlags(t *testing.T) {
	assert.Equal(t, MediaType(31), MediaAll)
	assert.Equal(t, MediaAudio|MediaVideo|MediaScreenShare|MediaTranscript|MediaChat, MediaAll)
}

func TestParseMediaTypes(t *testing.T) {
	cases := []struct {
		name string
		raw  uint32
		want MediaType
	}{
		{"single flag", 1, MediaAudio},
		{"combination", 9, MediaAudio | MediaTranscript},
		{"union", 31, MediaAll},
		{"legacy all sentinel", 32, MediaAll},
		{"legacy sentinel mixed with flags", 33, MediaAll},
		{"undefined high bits masked", 64 | 1, MediaAudio},
		{"zero", 0, MediaType(0)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseMediaTypes(tc.raw))
		})
	}
}

func TestMediaTypeHas(t *testing.T) {
	m := MediaAudio | MediaChat
	assert.True(t, m.Has(MediaAudio))
	assert.True(t, m.Has(MediaChat))
	assert.False(t, m.Has(MediaVideo))
	assert.False(t, m.Has(MediaTranscript))
}

func TestMediaTypeString(t *testing.T) {
	assert.Equal(t, "none", MediaType(0).String())
	assert.Equal(t, "audio", MediaAudio.String())
	assert.Equal(t, "audio|transcript|chat", (MediaAudio | MediaTranscript | MediaChat).String())
	assert.Equal(t, "audio|video|screen_share|transcript|chat", MediaAll.String())
}
