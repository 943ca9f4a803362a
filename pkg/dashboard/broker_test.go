package dashboard

import (
	"testing"
	"time"

	"github.com/cuemby/gaggle/pkg/metrics"
	"github.com/stretchr/testify/assert"
)

func TestBrokerDeliversToSubscriber(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	snap := &metrics.Snapshot{}
	b.Publish(snap)

	select {
	case got := <-sub:
		assert.Same(t, snap, got)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive published snapshot")
	}
}

func TestBrokerDropsWhenSubscriberBufferFull(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	defer b.Unsubscribe(sub)

	for i := 0; i < 20; i++ {
		b.Publish(&metrics.Snapshot{})
	}

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, b.SubscriberCount())
}

func TestBrokerUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	assert.Equal(t, 1, b.SubscriberCount())
	b.Unsubscribe(sub)
	assert.Equal(t, 0, b.SubscriberCount())

	_, ok := <-sub
	assert.False(t, ok)
}
