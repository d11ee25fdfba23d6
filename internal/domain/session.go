// Package domain defines the core entities of the simulation.
// This package is PURE and must NOT import any infrastructure packages (network, events, platform).
package domain

import (
	"fmt"
	"time"
)

// Speed is the game-time multiplier of a session.
type Speed int

const (
	SpeedPaused Speed = 0
	SpeedNormal Speed = 1
	SpeedFast   Speed = 3
	SpeedTurbo  Speed = 8
)

// ParseSpeed accepts only the supported multipliers.
func ParseSpeed(v int) (Speed, error) {
	switch s := Speed(v); s {
	case SpeedPaused, SpeedNormal, SpeedFast, SpeedTurbo:
		return s, nil
	default:
		return 0, NewValidationError(fmt.Sprintf("unsupported speed %d (allowed: 0, 1, 3, 8)", v))
	}
}

// Paused reports whether the session is frozen.
func (s Speed) Paused() bool { return s == SpeedPaused }

// Session is one player's simulation run.
type Session struct {
	ID         string    `json:"id"`
	AccountRef string    `json:"account_ref"`
	GameTick   int64     `json:"game_tick"`
	Speed      Speed     `json:"speed"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

// Player is the hacker a session belongs to.
type Player struct {
	ID           int64  `json:"id"`
	SessionID    string `json:"session_id"`
	Handle       string `json:"handle"`
	Balance      int64  `json:"balance"`
	UpRating     int    `json:"uplink_rating"`
	NeuroRating  int    `json:"neuromancer_rating"`
	LocalAddress string `json:"local_address"`
	GatewayID    int64  `json:"gateway_id"`
}

// Debit subtracts amount from the balance, flooring at zero, and returns
// the amount actually taken.
func (p *Player) Debit(amount int64) int64 {
	if amount <= 0 {
		return 0
	}
	if amount > p.Balance {
		amount = p.Balance
	}
	p.Balance -= amount
	return amount
}

// Credit adds amount to the balance.
func (p *Player) Credit(amount int64) {
	if amount > 0 {
		p.Balance += amount
	}
}

// Gateway is the player's own machine. CPUSpeed scales tool run time.
type Gateway struct {
	ID         int64 `json:"id"`
	PlayerID   int64 `json:"player_id"`
	CPUSpeed   int   `json:"cpu_speed"`
	ModemSpeed int   `json:"modem_speed"`
	MemorySize int   `json:"memory_size"`
}

// SessionStatus is the HUD snapshot served to request/response clients.
type SessionStatus struct {
	SessionID     string  `json:"session_id"`
	GameTick      int64   `json:"game_tick"`
	Speed         Speed   `json:"speed"`
	Active        bool    `json:"active"`
	Balance       int64   `json:"balance"`
	UpRating      int     `json:"uplink_rating"`
	Connected     bool    `json:"connected"`
	TargetAddress string  `json:"target_address,omitempty"`
	TraceActive   bool    `json:"trace_active"`
	TraceProgress float64 `json:"trace_progress"`
}
