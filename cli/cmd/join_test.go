package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoomInput(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"calm-graph-otter", "calm-graph-otter"},
		{"  calm-graph-otter ", "calm-graph-otter"},
		{"https://warproom.qzz.io/r/calm-graph-otter", "calm-graph-otter"},
		{"https://warproom.qzz.io/r/calm-graph-otter/", "calm-graph-otter"},
		{"warproom.qzz.io/r/calm-graph-otter", "calm-graph-otter"},
	}
	for _, tt := range tests {
		got, err := parseRoomInput(tt.input)
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got)
	}
}

func TestParseRoomInputErrors(t *testing.T) {
	for _, input := range []string{"", "   ", "https://warproom.qzz.io/", "https://warproom.qzz.io/r/"} {
		_, err := parseRoomInput(input)
		assert.Error(t, err, input)
	}
}

func TestRoomFlagsMedia(t *testing.T) {
	f := roomFlags{audio: true, video: true}
	assert.True(t, f.media().Audio)
	assert.True(t, f.media().Video)

	f.video = false
	assert.False(t, f.media().Video)

	f.noMedia = true
	assert.False(t, f.media().Audio)
}
