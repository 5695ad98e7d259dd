package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchTopic(t *testing.T) {
	tests := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"events/x", "events/x", true},
		{"events/x", "events/y", false},
		{"events/+", "events/x", true},
		{"events/+", "events/x/y", false},
		{"events/#", "events/x/y", true},
		{"events/#", "events", true},
		{"#", "devices/a/script", true},
		{"devices/+/script", "devices/a/script", true},
		{"devices/+/script", "devices/a/log", false},
		{"events/x", "events/x/y", false},
		{"Events/x", "events/x", false},
	}

	for _, tt := range tests {
		t.Run(tt.filter+"|"+tt.topic, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchTopic(tt.filter, tt.topic))
		})
	}
}

func TestValidateFilter(t *testing.T) {
	assert.NoError(t, ValidateFilter("events/#"))
	assert.NoError(t, ValidateFilter("+/+/script"))
	assert.Error(t, ValidateFilter(""))
	assert.Error(t, ValidateFilter("events/#/x"))
	assert.Error(t, ValidateFilter("events/a+"))
}

func TestValidateTopic(t *testing.T) {
	assert.NoError(t, ValidateTopic("events/x"))
	assert.Error(t, ValidateTopic(""))
	assert.Error(t, ValidateTopic("events/+"))
}

func TestBroker_PublishDeliversToMatching(t *testing.T) {
	b := NewBroker()

	var got []Message
	_, err := b.Subscribe("events/+", func(m Message) { got = append(got, m) })
	require.NoError(t, err)

	n, err := b.Publish("events/a", []byte("1"), false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = b.Publish("devices/a/log", []byte("x"), false)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.Len(t, got, 1)
	assert.Equal(t, "events/a", got[0].Topic)
	assert.Equal(t, []byte("1"), got[0].Payload)
	assert.False(t, got[0].Retained)
}

func TestBroker_RetainedReplayOnSubscribe(t *testing.T) {
	b := NewBroker()
	_, err := b.Publish("events/b", []byte("2"), true)
	require.NoError(t, err)
	_, err = b.Publish("events/a", []byte("1"), true)
	require.NoError(t, err)
	_, err = b.Publish("events/a", []byte("3"), true)
	require.NoError(t, err)
	_, err = b.Publish("other/x", []byte("9"), true)
	require.NoError(t, err)

	var got []Message
	_, err = b.Subscribe("events/#", func(m Message) { got = append(got, m) })
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, Message{Topic: "events/a", Payload: []byte("3"), Retained: true}, got[0])
	assert.Equal(t, Message{Topic: "events/b", Payload: []byte("2"), Retained: true}, got[1])
}

func TestBroker_EmptyRetainedClears(t *testing.T) {
	b := NewBroker()
	_, err := b.Publish("events/a", []byte("1"), true)
	require.NoError(t, err)

	_, err = b.Publish("events/a", nil, true)
	require.NoError(t, err)

	_, ok := b.Retained("events/a")
	assert.False(t, ok)
}

func TestBroker_Unsubscribe(t *testing.T) {
	b := NewBroker()
	calls := 0
	unsub, err := b.Subscribe("#", func(Message) { calls++ })
	require.NoError(t, err)
	assert.Equal(t, 1, b.Subscriptions())

	unsub()
	unsub()
	_, err = b.Publish("a", []byte("x"), false)
	require.NoError(t, err)

	assert.Zero(t, calls)
	assert.Zero(t, b.Subscriptions())
}

func TestBroker_HandlerMayPublish(t *testing.T) {
	b := NewBroker()
	var echoed []byte
	_, err := b.Subscribe("ping", func(m Message) {
		_, _ = b.Publish("pong", m.Payload, false)
	})
	require.NoError(t, err)
	_, err = b.Subscribe("pong", func(m Message) { echoed = m.Payload })
	require.NoError(t, err)

	_, err = b.Publish("ping", []byte("hi"), false)
	require.NoError(t, err)
	assert.Equal(t, []byte("hi"), echoed)
}
