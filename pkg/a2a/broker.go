package a2a

import "sync"

const subscriberBuffer = 64

// broker fans task events out to subscribers. A subscriber that falls
// behind is dropped and its channel closed.
type broker struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

func newBroker() *broker {
	return &broker{subs: make(map[string]map[chan Event]struct{})}
}

// subscribe returns a channel of events for taskID. The channel is closed
// after the final event or when cancel is called.
func (b *broker) subscribe(taskID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	set := b.subs[taskID]
	if set == nil {
		set = make(map[chan Event]struct{})
		b.subs[taskID] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[taskID][ch]; ok {
			delete(b.subs[taskID], ch)
			close(ch)
		}
	}
	return ch, cancel
}

func (b *broker) publish(e Event) {
	id := e.taskID()
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[id] {
		select {
		case ch <- e:
		default:
			delete(b.subs[id], ch)
			close(ch)
		}
	}
	if e.final() {
		for ch := range b.subs[id] {
			close(ch)
		}
		delete(b.subs, id)
	}
}
