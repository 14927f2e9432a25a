package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otaviobraga/registry-harvester/internal/scraper"
)

func TestUserAgentForSlotRotates(t *testing.T) {
	seen := map[string]bool{}
	for slot := 0; slot < len(defaultUserAgents); slot++ {
		ua := UserAgentForSlot(slot)
		require.NotEmpty(t, ua)
		assert.False(t, seen[ua], "slot %d repeats an identity early", slot)
		seen[ua] = true
	}
	// Rotation wraps around past the list length.
	assert.Equal(t, UserAgentForSlot(0), UserAgentForSlot(len(defaultUserAgents)))
}

func TestUserAgentForSlotNegativeClamped(t *testing.T) {
	assert.Equal(t, defaultUserAgents[0], UserAgentForSlot(-3))
}

func TestNewPoolRejectsZeroSize(t *testing.T) {
	_, err := NewPool(context.Background(), 0, Config{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, scraper.ErrSessionStart)
}

func TestEmptyPoolShutdownIsSafe(t *testing.T) {
	p := &Pool{}
	p.Shutdown()
	assert.Zero(t, p.Size())
}
