package domain

// Message is an immutable inbox entry.
type Message struct {
	ID            int64  `json:"id"`
	SessionID     string `json:"session_id"`
	PlayerID      int64  `json:"player_id"`
	From          string `json:"from"`
	Subject       string `json:"subject"`
	Body          string `json:"body"`
	CreatedAtTick int64  `json:"created_at_tick"`
}

// MissionKind is the job type offered on a bulletin board.
type MissionKind string

const (
	MissionStealFile   MissionKind = "steal_file"
	MissionDestroyFile MissionKind = "destroy_file"
	MissionFindData    MissionKind = "find_data"
	MissionChangeData  MissionKind = "change_data"
)

// CompletedBy returns the tool whose completion fulfils the mission, if any.
func (k MissionKind) CompletedBy() (Tool, bool) {
	switch k {
	case MissionStealFile:
		return ToolFileCopier, true
	case MissionDestroyFile:
		return ToolFileDeleter, true
	default:
		return "", false
	}
}

// Mission is a paid job.
type Mission struct {
	ID            int64       `json:"id"`
	SessionID     string      `json:"session_id"`
	Kind          MissionKind `json:"kind"`
	Description   string      `json:"description"`
	Employer      string      `json:"employer"`
	Payment       int64       `json:"payment"`
	Difficulty    int         `json:"difficulty"`
	MinRating     int         `json:"min_rating"`
	TargetAddress string      `json:"target_address"`
	TargetFile    string      `json:"target_file"`
	Accepted      bool        `json:"accepted"`
	Completed     bool        `json:"completed"`
	AcceptedBy    *int64      `json:"accepted_by,omitempty"`
	CreatedAtTick int64       `json:"created_at_tick"`
}

// NewsArticle is a headline posted to a session's news feed.
type NewsArticle struct {
	ID            int64  `json:"id"`
	SessionID     string `json:"session_id"`
	Headline      string `json:"headline"`
	Body          string `json:"body"`
	CreatedAtTick int64  `json:"created_at_tick"`
}
