package domain

// EventKind is the closed set of deferred consequences.
type EventKind string

const (
	EventWarning         EventKind = "warning"
	EventFine            EventKind = "fine"
	EventLegalWarning    EventKind = "legal_warning"
	EventTacticalWarning EventKind = "tactical_warning"
	EventArrest          EventKind = "arrest"
	EventShotByFeds      EventKind = "shot_by_feds"
	EventGatewaySeizure  EventKind = "gateway_seizure"
	EventBankRobbery     EventKind = "bank_robbery"
	EventUplinkFee       EventKind = "uplink_fee"
	EventExpireOld       EventKind = "expire_old"
	EventMissionGenerate EventKind = "mission_generate"
)

// EventKinds lists every kind in dispatch order of declaration.
var EventKinds = []EventKind{
	EventWarning, EventFine, EventLegalWarning, EventTacticalWarning,
	EventArrest, EventShotByFeds, EventGatewaySeizure, EventBankRobbery,
	EventUplinkFee, EventExpireOld, EventMissionGenerate,
}

// Valid reports whether k is a known kind.
func (k EventKind) Valid() bool {
	for _, known := range EventKinds {
		if k == known {
			return true
		}
	}
	return false
}

// EventPayload is the JSON body stored with a scheduled event.
type EventPayload struct {
	TargetName string `json:"target_name,omitempty"`
	Amount     int64  `json:"amount,omitempty"`
	Count      int    `json:"count,omitempty"`
	Recurring  bool   `json:"recurring,omitempty"`
}

// ScheduledEvent is a consequence due at a future game tick.
type ScheduledEvent struct {
	ID          int64        `json:"id"`
	SessionID   string       `json:"session_id"`
	Kind        EventKind    `json:"kind"`
	TriggerTick int64        `json:"trigger_tick"`
	Payload     EventPayload `json:"payload"`
	Processed   bool         `json:"processed"`
}
