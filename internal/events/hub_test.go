package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/cloudmaint/internal/repair"
)

func TestHub_DeliversToAllSubscribers(t *testing.T) {
	hub := NewHub()
	first, cancelFirst := hub.Subscribe(4)
	defer cancelFirst()
	second, cancelSecond := hub.Subscribe(4)
	defer cancelSecond()

	hub.DispatchTyped(context.Background(), repair.StepEvent{StepName: "A test repair step"})

	for _, ch := range []<-chan Message{first, second} {
		msg := <-ch
		assert.Equal(t, "repair.step", msg.Name)
		assert.JSONEq(t, `{"step_name":"A test repair step"}`, string(msg.Data))
		assert.False(t, msg.Time.IsZero())
	}
}

func TestHub_CancelUnsubscribes(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe(1)
	require.Equal(t, 1, hub.Subscribers())

	cancel()
	cancel()
	assert.Zero(t, hub.Subscribers())
	_, open := <-ch
	assert.False(t, open)

	hub.DispatchTyped(context.Background(), repair.InfoEvent{Message: "nobody listens"})
}

func TestHub_FullBufferDrops(t *testing.T) {
	hub := NewHub()
	ch, cancel := hub.Subscribe(1)
	defer cancel()

	hub.DispatchTyped(context.Background(), repair.InfoEvent{Message: "one"})
	hub.DispatchTyped(context.Background(), repair.InfoEvent{Message: "two"})

	msg := <-ch
	assert.JSONEq(t, `{"message":"one"}`, string(msg.Data))
	assert.Equal(t, uint64(1), hub.Dropped())
}

func TestHub_IsRepairDispatcher(t *testing.T) {
	var _ repair.Dispatcher = NewHub()
}
