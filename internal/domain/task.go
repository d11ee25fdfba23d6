package domain

// Tool names a piece of hacking software that runs as a task.
type Tool string

const (
	ToolPasswordBreaker Tool = "Password_Breaker"
	ToolFileCopier      Tool = "File_Copier"
	ToolFileDeleter     Tool = "File_Deleter"
	ToolLogDeleter      Tool = "Log_Deleter"
	ToolDecrypter       Tool = "Decrypter"
	ToolTraceTracker    Tool = "Trace_Tracker"
	ToolLogUnDeleter    Tool = "Log_UnDeleter"
	ToolMonitorBypass   Tool = "Monitor_Bypass"
	ToolFirewallDisable Tool = "Firewall_Disable"
	ToolProxyDisable    Tool = "Proxy_Disable"
)

// Indefinite marks TicksRemaining of a task that never completes on its own.
const Indefinite = -1.0

// TaskParams carries tool specific arguments and results.
type TaskParams struct {
	FileID   int64  `json:"file_id,omitempty"`
	LogID    int64  `json:"log_id,omitempty"`
	ScreenID int64  `json:"screen_id,omitempty"`
	Revealed string `json:"revealed,omitempty"`

	// Trace_Tracker readings of the player's connection.
	TraceProgress float64 `json:"trace_progress,omitempty"`
	TraceActive   bool    `json:"trace_active,omitempty"`
}

// RunningTask is a tool executing over time against a target.
type RunningTask struct {
	ID             int64      `json:"id"`
	SessionID      string     `json:"session_id"`
	PlayerID       int64      `json:"player_id"`
	ToolName       Tool       `json:"tool_name"`
	ToolVersion    int        `json:"tool_version"`
	TargetAddress  string     `json:"target_address"`
	Params         TaskParams `json:"params"`
	Progress       float64    `json:"progress"`
	TicksRemaining float64    `json:"ticks_remaining"`
	InitialTicks   float64    `json:"initial_ticks"`
	Active         bool       `json:"active"`
}

// Indefinite reports whether the task runs until stopped.
func (t *RunningTask) Indefinite() bool { return t.InitialTicks < 0 }
