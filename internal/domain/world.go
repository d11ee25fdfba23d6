package domain

// HostKind classifies a remote computer.
type HostKind string

const (
	HostKindGateway    HostKind = "gateway"
	HostKindPublic     HostKind = "public"
	HostKindCorporate  HostKind = "corporate"
	HostKindBank       HostKind = "bank"
	HostKindGovernment HostKind = "government"
)

// TargetHost is a remote computer inside a session's world.
// A TraceSpeed of zero or less makes the host immune to tracing.
type TargetHost struct {
	ID             int64    `json:"id"`
	SessionID      string   `json:"session_id"`
	Name           string   `json:"name"`
	Address        string   `json:"address"`
	Kind           HostKind `json:"kind"`
	TraceSpeed     float64  `json:"trace_speed"`
	HackDifficulty float64  `json:"hack_difficulty"`
}

// Traceable reports whether the host can trace a connection.
func (h *TargetHost) Traceable() bool { return h.TraceSpeed > 0 }

// ScreenType is the kind of interface a remote screen renders.
type ScreenType int

const (
	ScreenMessage      ScreenType = 1
	ScreenPassword     ScreenType = 2
	ScreenMenu         ScreenType = 3
	ScreenBBS          ScreenType = 4
	ScreenFileServer   ScreenType = 6
	ScreenLinks        ScreenType = 7
	ScreenLog          ScreenType = 8
	ScreenSWSales      ScreenType = 9
	ScreenHWSales      ScreenType = 10
	ScreenHighSecurity ScreenType = 30
)

// Gate reports whether the screen blocks navigation until a code is entered.
func (t ScreenType) Gate() bool {
	return t == ScreenPassword || t == ScreenHighSecurity
}

// Listed reports whether the screen appears as a menu option.
func (t ScreenType) Listed() bool {
	return !t.Gate() && t != ScreenMenu && t != ScreenMessage
}

// ScreenDefinition is one page of a host's interface.
// Data1 holds the text of message screens and the code of gate screens.
type ScreenDefinition struct {
	ID         int64      `json:"id"`
	HostID     int64      `json:"host_id"`
	ScreenType ScreenType `json:"screen_type"`
	SubPage    int        `json:"sub_page"`
	NextPage   *int       `json:"next_page,omitempty"`
	Title      string     `json:"title"`
	Data1      string     `json:"data1"`
	Data2      string     `json:"data2"`
	Data3      string     `json:"data3"`
}

// SecurityKind identifies a security system.
type SecurityKind int

const (
	SecurityProxy    SecurityKind = 1
	SecurityFirewall SecurityKind = 2
	SecurityMonitor  SecurityKind = 3
)

// SecuritySystem is installed on a host.
type SecuritySystem struct {
	ID     int64        `json:"id"`
	HostID int64        `json:"host_id"`
	Kind   SecurityKind `json:"kind"`
	Level  int          `json:"level"`
	Active bool         `json:"active"`
}

// Detects reports whether the system starts a trace on an active connection.
func (s *SecuritySystem) Detects() bool {
	return s.Active && s.Kind == SecurityMonitor
}

// FileKind separates plain data from installable software.
type FileKind string

const (
	FileData     FileKind = "data"
	FileSoftware FileKind = "software"
)

// DataFile lives on a host's file server.
type DataFile struct {
	ID        int64    `json:"id"`
	HostID    int64    `json:"host_id"`
	Name      string   `json:"name"`
	Size      int      `json:"size"`
	Kind      FileKind `json:"kind"`
	Version   int      `json:"version"`
	Encrypted int      `json:"encrypted"`
	Owner     string   `json:"owner"`
}

// LogKind classifies an access log entry.
type LogKind string

const (
	LogConnectionRouted      LogKind = "routed"
	LogConnectionEstablished LogKind = "connection"
	LogFileCopied            LogKind = "file_copied"
	LogFileDeleted           LogKind = "file_deleted"
)

// AccessLog is a record on a host of activity that passed through it.
type AccessLog struct {
	ID            int64   `json:"id"`
	HostID        int64   `json:"host_id"`
	SessionID     string  `json:"session_id"`
	CreatedAtTick int64   `json:"created_at_tick"`
	FromAddress   string  `json:"from_address"`
	FromName      string  `json:"from_name"`
	Subject       string  `json:"subject"`
	Kind          LogKind `json:"kind"`
	Visible       bool    `json:"visible"`
	Deleted       bool    `json:"deleted"`
}
