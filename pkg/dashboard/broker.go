package dashboard

import (
	"sync"

	"github.com/cuemby/gaggle/pkg/metrics"
)

// Subscriber is a channel that receives metrics snapshots.
type Subscriber chan *metrics.Snapshot

// Broker fans a stream of metrics snapshots out to every connected
// dashboard websocket client. Delivery is non-blocking: a slow or
// stalled client drops snapshots rather than backing up the publisher.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]bool
	publishCh   chan *metrics.Snapshot
	stopCh      chan struct{}
}

// NewBroker builds an idle Broker; call Start to begin distribution.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		publishCh:   make(chan *metrics.Snapshot, 16),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's distribution loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop halts distribution and closes every subscriber channel.
func (b *Broker) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	close(b.stopCh)
	for sub := range b.subscribers {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Subscribe registers a new dashboard client and returns its channel.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := make(Subscriber, 4)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a client's channel.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[sub]; ok {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish enqueues a snapshot for broadcast. Blocks only until the
// broker's internal buffer has room, or Stop is called.
func (b *Broker) Publish(snap *metrics.Snapshot) {
	select {
	case b.publishCh <- snap:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case snap := <-b.publishCh:
			b.broadcast(snap)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(snap *metrics.Snapshot) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subscribers {
		select {
		case sub <- snap:
		default:
		}
	}
}

// SubscriberCount returns the number of currently connected clients.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
