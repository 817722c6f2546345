package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newCountingEnv() (*TerminalEnvironment, *int, *int) {
	env := NewTerminalEnvironment()
	var exits, losses int
	env.OnFullscreenExit(func() { exits++ })
	env.OnVisibilityLost(func() { losses++ })
	return env, &exits, &losses
}

func TestShrinkingBelowBaselineExitsFullscreenOnce(t *testing.T) {
	env, exits, _ := newCountingEnv()

	env.Resize(200, 60)
	assert.Equal(t, 0, *exits)

	env.Resize(120, 60)
	env.Resize(100, 40)
	assert.Equal(t, 1, *exits, "fires once until restored")

	env.Resize(200, 60)
	env.Resize(200, 50)
	assert.Equal(t, 2, *exits)
}

func TestGrowingRaisesBaseline(t *testing.T) {
	env, exits, _ := newCountingEnv()

	env.Resize(80, 24)
	env.Resize(200, 60)
	env.Resize(80, 24)
	assert.Equal(t, 1, *exits)
}

func TestBlurLosesVisibilityUntilFocused(t *testing.T) {
	env, _, losses := newCountingEnv()

	env.Blur()
	env.Blur()
	assert.Equal(t, 1, *losses)

	env.Focus()
	env.Blur()
	assert.Equal(t, 2, *losses)
}
