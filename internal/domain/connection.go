package domain

// Connection is the player's link into the world. It always routes through
// at least one bounce node while active.
type Connection struct {
	ID            int64   `json:"id"`
	SessionID     string  `json:"session_id"`
	PlayerID      int64   `json:"player_id"`
	TargetAddress string  `json:"target_address"`
	Active        bool    `json:"active"`
	TraceProgress float64 `json:"trace_progress"`
	TraceActive   bool    `json:"trace_active"`

	// Screen navigation state, valid while Active.
	HostID  int64 `json:"host_id"`
	SubPage int   `json:"sub_page"`
}

// ResetTrace clears trace pursuit state.
func (c *Connection) ResetTrace() {
	c.TraceActive = false
	c.TraceProgress = 0
}

// BounceNode is one hop of a connection. Positions are contiguous from zero.
type BounceNode struct {
	ID           int64  `json:"id"`
	ConnectionID int64  `json:"connection_id"`
	Position     int    `json:"position"`
	Address      string `json:"address"`
	Traced       bool   `json:"traced"`
}
