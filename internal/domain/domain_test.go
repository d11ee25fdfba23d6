package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSpeed(t *testing.T) {
	for _, v := range []int{0, 1, 3, 8} {
		s, err := ParseSpeed(v)
		require.NoError(t, err)
		assert.Equal(t, Speed(v), s)
	}

	for _, v := range []int{-1, 2, 4, 16} {
		_, err := ParseSpeed(v)
		assert.True(t, IsValidation(err), "speed %d should be rejected", v)
	}
}

func TestPlayerDebitFloorsAtZero(t *testing.T) {
	p := &Player{Balance: 1500}
	taken := p.Debit(3000)

	assert.Equal(t, int64(1500), taken)
	assert.Equal(t, int64(0), p.Balance)
}

func TestErrorsMatchSentinels(t *testing.T) {
	wrapped := fmt.Errorf("failed to connect: %w", NewValidationError("bounce chain is empty"))
	assert.True(t, errors.Is(wrapped, ErrValidation))
	assert.False(t, errors.Is(wrapped, ErrNotFound))

	nf := fmt.Errorf("lookup: %w", NewNotFoundError("host", "1.2.3.4"))
	assert.True(t, IsNotFound(nf))
	assert.Equal(t, `host "1.2.3.4" not found`, errors.Unwrap(nf).Error())
}

func TestEventKindValid(t *testing.T) {
	for _, k := range EventKinds {
		assert.True(t, k.Valid(), string(k))
	}
	assert.False(t, EventKind("meteor_strike").Valid())
}

func TestScreenTypeListing(t *testing.T) {
	assert.False(t, ScreenPassword.Listed())
	assert.False(t, ScreenHighSecurity.Listed())
	assert.False(t, ScreenMenu.Listed())
	assert.False(t, ScreenMessage.Listed())
	assert.True(t, ScreenFileServer.Listed())
	assert.True(t, ScreenLog.Listed())
}

func TestSecuritySystemDetects(t *testing.T) {
	tests := []struct {
		name   string
		system SecuritySystem
		want   bool
	}{
		{"active monitor", SecuritySystem{Kind: SecurityMonitor, Level: 2, Active: true}, true},
		{"level zero monitor", SecuritySystem{Kind: SecurityMonitor, Active: true}, true},
		{"disabled monitor", SecuritySystem{Kind: SecurityMonitor, Level: 2}, false},
		{"firewall", SecuritySystem{Kind: SecurityFirewall, Level: 2, Active: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.system.Detects())
		})
	}
}
