package mailbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/edgelisp/internal/testutil"
)

func newTestMailbox(opts ...Option) (*Mailbox, *testutil.ManualClock) {
	clock := testutil.NewManualClock(time.Time{})
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return New(opts...), clock
}

func TestPushEvent_FIFO(t *testing.T) {
	m, _ := newTestMailbox()

	require.True(t, m.PushEvent([]byte(`{"eventID":"door","value":1}`)))
	require.True(t, m.PushEvent([]byte(`{"eventID":"door","value":2}`)))

	assert.Equal(t, Event{Value: 1}, m.PopEvent("door"))
	assert.Equal(t, Event{Value: 2}, m.PopEvent("door"))
	assert.Equal(t, Event{Code: CodeEmpty}, m.PopEvent("door"))
}

func TestPushEvent_OverwritesOldest(t *testing.T) {
	m, _ := newTestMailbox()

	for i := 1; i <= 3; i++ {
		m.Push("x", int32(i))
	}

	assert.Equal(t, int32(2), m.PopEvent("x").Value)
	assert.Equal(t, int32(3), m.PopEvent("x").Value)
	assert.False(t, m.PopEvent("x").OK())
	assert.Equal(t, 1, m.Stats().Dropped)
}

func TestPushEvent_Capacity(t *testing.T) {
	m, _ := newTestMailbox(WithCapacity(4))

	for i := 1; i <= 6; i++ {
		m.Push("x", int32(i))
	}
	for want := int32(3); want <= 6; want++ {
		assert.Equal(t, want, m.PopEvent("x").Value)
	}
}

func TestPushEvent_Decoding(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		ok    bool
		value int32
	}{
		{"integer", `{"eventID":"a","value":7}`, true, 7},
		{"negative", `{"eventID":"a","value":-7}`, true, -7},
		{"string integer", `{"eventID":"a","value":"42"}`, true, 42},
		{"string zero", `{"eventID":"a","value":"0"}`, true, 0},
		{"extra fields", `{"eventID":"a","value":1,"timestamp":5,"sender":{"type":"device","id":"d1"}}`, true, 1},
		{"float elsewhere", `{"eventID":"a","value":1,"timestamp":1697000000.5}`, true, 1},
		{"null elsewhere", `{"eventID":"a","value":1,"sender":null}`, true, 1},
		{"nested float", `{"eventID":"a","value":3,"meta":{"rssi":-1.5e1}}`, true, 3},
		{"missing value", `{"eventID":"a"}`, false, 0},
		{"null value", `{"eventID":"a","value":null}`, false, 0},
		{"missing id", `{"value":1}`, false, 0},
		{"empty id", `{"eventID":"","value":1}`, false, 0},
		{"non numeric string", `{"eventID":"a","value":"abc"}`, false, 0},
		{"float", `{"eventID":"a","value":1.5}`, false, 0},
		{"out of range", `{"eventID":"a","value":4294967296}`, false, 0},
		{"bool value", `{"eventID":"a","value":true}`, false, 0},
		{"numeric id", `{"eventID":1,"value":1}`, false, 0},
		{"not an object", `[1,2]`, false, 0},
		{"garbage", `{{`, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestMailbox()
			assert.Equal(t, tt.ok, m.PushEvent([]byte(tt.raw)))
			if tt.ok {
				assert.Equal(t, Event{Value: tt.value}, m.PopEvent("a"))
			} else {
				assert.Equal(t, 0, m.Len(), "rejected payload must not create a queue")
			}
		})
	}
}

func TestPopEvent_UnknownID(t *testing.T) {
	m, _ := newTestMailbox()

	ev := m.PopEvent("nope")
	assert.Equal(t, CodeEmpty, ev.Code)
	assert.Equal(t, int32(0), ev.Value)
	assert.False(t, m.Has("nope"), "popping must not create a queue")
}

func TestEventIDsAreCaseSensitive(t *testing.T) {
	m, _ := newTestMailbox()

	m.Push("Door", 1)
	assert.False(t, m.IsEventAvailable("door"))
	assert.True(t, m.IsEventAvailable("Door"))
}

func TestIsEventAvailable(t *testing.T) {
	m, _ := newTestMailbox()

	assert.False(t, m.IsEventAvailable("x"))
	m.Push("x", 1)
	assert.True(t, m.IsEventAvailable("x"))
	m.PopEvent("x")
	assert.False(t, m.IsEventAvailable("x"))
	assert.True(t, m.Has("x"), "an empty queue is kept")
}

func TestCleanupUnusedEvents_RemovesIdleUnread(t *testing.T) {
	m, clock := newTestMailbox()

	m.Push("idle", 1)
	clock.Advance(DefaultTTL)
	assert.Equal(t, 0, m.CleanupUnusedEvents(), "exactly TTL is not yet expired")

	clock.Advance(time.Millisecond)
	assert.Equal(t, 1, m.CleanupUnusedEvents())
	assert.False(t, m.Has("idle"))
	assert.Equal(t, 1, m.Stats().Expired)
}

func TestCleanupUnusedEvents_PushRefreshesIdleTime(t *testing.T) {
	m, clock := newTestMailbox()

	m.Push("x", 1)
	clock.Advance(20 * time.Second)
	m.Push("x", 2)
	clock.Advance(20 * time.Second)

	assert.Equal(t, 0, m.CleanupUnusedEvents())
	assert.True(t, m.Has("x"))
}

func TestCleanupUnusedEvents_KeepsQueuesReadOnce(t *testing.T) {
	m, clock := newTestMailbox()

	m.Push("read", 1)
	m.Push("polled", 1)
	m.PopEvent("read")
	m.IsEventAvailable("polled")

	clock.Advance(24 * time.Hour)
	assert.Equal(t, 0, m.CleanupUnusedEvents())
	assert.True(t, m.Has("read"))
	assert.True(t, m.Has("polled"))
}

func TestCleanupUnusedEvents_CustomTTL(t *testing.T) {
	m, clock := newTestMailbox(WithTTL(time.Second))

	m.Push("x", 1)
	clock.Advance(2 * time.Second)
	assert.Equal(t, 1, m.CleanupUnusedEvents())
}

func TestClean(t *testing.T) {
	m, _ := newTestMailbox()

	m.Push("a", 1)
	m.Push("b", 2)
	m.PopEvent("a")
	require.Equal(t, 2, m.Len())

	m.Clean()
	assert.Equal(t, 0, m.Len())
	assert.False(t, m.IsEventAvailable("b"))
}

func TestStats(t *testing.T) {
	m, _ := newTestMailbox()

	m.Push("b", 1)
	m.Push("a", 1)
	m.Push("a", 2)
	m.PushEvent([]byte(`{}`))

	s := m.Stats()
	assert.Equal(t, 2, s.Queues)
	assert.Equal(t, []string{"a", "b"}, s.IDs)
	assert.Equal(t, 3, s.Pending)
	assert.Equal(t, 3, s.Pushed)
	assert.Equal(t, 1, s.Invalid)
}
