package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	ev := NewEvent(EventConfigSaved, "saved", map[string]string{"tunnel": "web"})

	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.Timestamp.IsZero())
	assert.Equal(t, EventConfigSaved, ev.Type)
	assert.NotEqual(t, ev.ID, NewEvent(EventConfigSaved, "", nil).ID)
}

func TestBrokerBroadcast(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub1 := b.Subscribe()
	sub2 := b.Subscribe()
	assert.Equal(t, 2, b.SubscriberCount())

	b.Publish(&Event{Type: EventControllerAdded, Message: "added"})

	for _, sub := range []Subscriber{sub1, sub2} {
		select {
		case ev := <-sub:
			assert.Equal(t, EventControllerAdded, ev.Type)
			assert.NotEmpty(t, ev.ID)
			assert.False(t, ev.Timestamp.IsZero())
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}

	b.Unsubscribe(sub1)
	b.Unsubscribe(sub1)
	assert.Equal(t, 1, b.SubscriberCount())
}

func TestPublishNeverBlocks(t *testing.T) {
	b := NewBroker()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			b.Publish(NewEvent(EventGroupState, "", nil))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on an unstarted broker")
	}
}

func TestNilBroker(t *testing.T) {
	var b *Broker
	require.NotPanics(t, func() { b.Publish(NewEvent(EventGroupState, "", nil)) })
}

func TestStopTwice(t *testing.T) {
	b := NewBroker()
	b.Start()
	b.Stop()
	require.NotPanics(t, b.Stop)
}
