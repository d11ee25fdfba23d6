package events

// Sink delivers notifications to a session's push channel.
// Delivery is fire-and-forget: an error means the push was dropped.
type Sink interface {
	Send(sessionID string, n Notification) error
}

// Outbox collects notifications during a tick, keeping per-session order.
// It is not safe for concurrent use; the tick loop owns it.
type Outbox struct {
	order   []string
	pending map[string][]Notification
}

// NewOutbox creates an empty outbox.
func NewOutbox() *Outbox {
	return &Outbox{pending: make(map[string][]Notification)}
}

// Add queues a notification for a session.
func (o *Outbox) Add(sessionID string, kind Kind, data any) {
	if _, ok := o.pending[sessionID]; !ok {
		o.order = append(o.order, sessionID)
	}
	o.pending[sessionID] = append(o.pending[sessionID], Notification{Kind: kind, Data: data})
}

// Merge appends everything queued in other, preserving its order.
func (o *Outbox) Merge(other *Outbox) {
	if other == nil {
		return
	}
	for _, sessionID := range other.order {
		for _, n := range other.pending[sessionID] {
			o.Add(sessionID, n.Kind, n.Data)
		}
	}
}

// For returns the queued notifications of one session.
func (o *Outbox) For(sessionID string) []Notification {
	return o.pending[sessionID]
}

// Len is the total number of queued notifications.
func (o *Outbox) Len() int {
	total := 0
	for _, list := range o.pending {
		total += len(list)
	}
	return total
}

// Flush sends everything to sink and empties the outbox. Failed sends are
// counted and handed to onDrop; they never stop the flush.
func (o *Outbox) Flush(sink Sink, onDrop func(sessionID string, n Notification, err error)) (sent, dropped int) {
	for _, sessionID := range o.order {
		for _, n := range o.pending[sessionID] {
			if err := sink.Send(sessionID, n); err != nil {
				dropped++
				if onDrop != nil {
					onDrop(sessionID, n, err)
				}
				continue
			}
			sent++
		}
	}
	o.order = nil
	o.pending = make(map[string][]Notification)
	return sent, dropped
}
