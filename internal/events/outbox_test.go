package events

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	sent []string
	fail map[Kind]bool
}

func (s *recordingSink) Send(sessionID string, n Notification) error {
	if s.fail[n.Kind] {
		return errors.New("push channel closed")
	}
	s.sent = append(s.sent, sessionID+":"+string(n.Kind))
	return nil
}

func TestOutboxKeepsPerSessionOrder(t *testing.T) {
	o := NewOutbox()
	o.Add("a", KindTaskUpdate, TaskUpdate{})
	o.Add("b", KindTraceUpdate, TraceUpdate{})
	o.Add("a", KindGameTime, GameTime{Ticks: 1, Speed: 1})

	sink := &recordingSink{}
	sent, dropped := o.Flush(sink, nil)

	assert.Equal(t, 3, sent)
	assert.Equal(t, 0, dropped)
	assert.Equal(t, []string{"a:task_update", "a:game_time", "b:trace_update"}, sink.sent)
	assert.Equal(t, 0, o.Len())
}

func TestOutboxDropsFailedSendsAndContinues(t *testing.T) {
	o := NewOutbox()
	o.Add("a", KindGameOver, GameOver{Reason: "arrested"})
	o.Add("a", KindGameTime, GameTime{})

	var drops int
	sink := &recordingSink{fail: map[Kind]bool{KindGameOver: true}}
	sent, dropped := o.Flush(sink, func(string, Notification, error) { drops++ })

	assert.Equal(t, 1, sent)
	assert.Equal(t, 1, dropped)
	assert.Equal(t, 1, drops)
}

func TestOutboxMerge(t *testing.T) {
	tick := NewOutbox()
	session := NewOutbox()
	session.Add("s1", KindTaskComplete, TaskComplete{})
	session.Add("s1", KindBalanceChanged, BalanceChanged{Balance: 10})

	tick.Merge(session)
	tick.Merge(nil)

	require.Len(t, tick.For("s1"), 2)
	assert.Equal(t, KindBalanceChanged, tick.For("s1")[1].Kind)
}

func TestNotificationWireFormat(t *testing.T) {
	fine := int64(3000)
	raw, err := json.Marshal(Notification{Kind: KindBalanceChanged, Data: BalanceChanged{Balance: 0, Fine: &fine}})
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, "balance_changed", body["type"])
	assert.Equal(t, float64(0), body["balance"])
	assert.Equal(t, float64(3000), body["fine"])

	raw, err = json.Marshal(Notification{Kind: KindTraceComplete})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"trace_complete"}`, string(raw))
}
