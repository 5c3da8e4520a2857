package game

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubSendToEncodesEnvelope(t *testing.T) {
	hub := NewHub(nil)
	c := NewConnection("c-1", "u-1", "alice")
	hub.Register(c)

	hub.SendTo("c-1", EventTurnChange, TurnChange{CurrentTurn: "defender", CurrentRound: 3})
	hub.SendTo("c-missing", EventTurnChange, TurnChange{})

	require.Len(t, c.Send, 1)
	var msg Message
	require.NoError(t, json.Unmarshal(<-c.Send, &msg))
	assert.Equal(t, EventTurnChange, msg.Type)

	var tc TurnChange
	require.NoError(t, json.Unmarshal(msg.Payload, &tc))
	assert.Equal(t, 3, tc.CurrentRound)
}

func TestHubBroadcastAndUnregister(t *testing.T) {
	hub := NewHub(nil)
	a := NewConnection("c-a", "u-a", "a")
	b := NewConnection("c-b", "u-b", "b")
	hub.Register(a)
	hub.Register(b)
	assert.Equal(t, 2, hub.Count())

	hub.Broadcast(EventRoomListUpdate, RoomList{})
	assert.Len(t, a.Send, 1)
	assert.Len(t, b.Send, 1)

	hub.Unregister("c-a")
	assert.Equal(t, 1, hub.Count())
	<-a.Send
	_, open := <-a.Send
	assert.False(t, open)

	// 重复关闭不会 panic
	a.Close()
	hub.Unregister("c-a")
}

func TestHubClosesFullConnection(t *testing.T) {
	hub := NewHub(nil)
	c := NewConnection("c-1", "u-1", "alice")
	hub.Register(c)

	for i := 0; i < sendBufferSize; i++ {
		hub.SendTo("c-1", EventChatMessage, ChatMessage{Message: "x"})
	}
	hub.SendTo("c-1", EventChatMessage, ChatMessage{Message: "overflow"})
	assert.False(t, c.push([]byte("after close")))

	hub.CloseAll()
	assert.Equal(t, 0, hub.Count())
}

func TestTimerQueueOrdering(t *testing.T) {
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	var q timerQueue

	late := q.schedule(base.Add(2*time.Minute), timerReconnect, "late")
	q.schedule(base.Add(time.Minute), timerReconnect, "first")
	q.schedule(base.Add(time.Minute), timerRemove, "second")
	cancelled := q.schedule(base.Add(30*time.Second), timerReconnect, "cancelled")
	q.cancel(cancelled)
	assert.Equal(t, 3, q.pending())

	assert.Empty(t, q.due(base))

	due := q.due(base.Add(time.Minute))
	require.Len(t, due, 2)
	assert.Equal(t, "first", due[0].userID)
	assert.Equal(t, "second", due[1].userID)
	assert.Equal(t, timerRemove, due[1].kind)

	q.clear()
	assert.True(t, late.cancelled)
	assert.Empty(t, q.due(base.Add(time.Hour)))
	assert.Equal(t, 0, q.pending())
}
