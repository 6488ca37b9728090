package config

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dkeye/Relay/internal/core"
)

func TestSubscribedMediaNormalizesLegacyAll(t *testing.T) {
	cfg := &Config{MediaTypes: 32}
	assert.Equal(t, core.MediaAll, cfg.SubscribedMedia())

	cfg = &Config{MediaTypes: 25}
	assert.Equal(t, core.MediaAudio|core.MediaTranscript|core.MediaChat, cfg.SubscribedMedia())
}
