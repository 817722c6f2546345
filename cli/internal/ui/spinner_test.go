package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpinnerSuccessClearsLine(t *testing.T) {
	var out bytes.Buffer
	sp := NewConnectionSpinner("Connecting to relay...")
	sp.out = &out

	sp.Start()
	sp.Success("Connected")
	sp.Stop()

	assert.Contains(t, out.String(), "Connecting to relay...")
	assert.Contains(t, out.String(), "\r\033[K")
	assert.Contains(t, out.String(), "Connected\n")
}

func TestSpinnerStopWithoutStart(t *testing.T) {
	var out bytes.Buffer
	sp := NewConnectionSpinner("idle")
	sp.out = &out

	sp.Error("failed")
	assert.Contains(t, out.String(), "failed")
	assert.NotContains(t, out.String(), "idle")
}
