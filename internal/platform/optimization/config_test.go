package optimization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForProfile(t *testing.T) {
	for name, want := range map[string]int{"": 4, "default": 4, "stress": 16, "low": 1} {
		cfg, err := ForProfile(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, cfg.MaxClientsPerSession, name)
		assert.Positive(t, cfg.ClientSendBuffer)
		assert.LessOrEqual(t, cfg.MaxMessagesPerSecond, float64(cfg.MessageBurst))
	}

	_, err := ForProfile("ludicrous")
	assert.ErrorContains(t, err, "unknown tuning profile")
}
