package server

import (
	"encoding/json"
	"sync"

	"github.com/playperu/mergeclash/internal/eventlog"
)

// subscriberBuffer is how many events a slow feed may lag before it misses
// some. Peers still poll the log, so a dropped push is only a delay.
const subscriberBuffer = 64

// Broker is an in-process pub/sub of appended events, keyed by room code.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[chan []byte]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[string]map[chan []byte]struct{}),
	}
}

// Subscribe returns a channel that receives JSON-encoded events of a room.
func (b *Broker) Subscribe(roomCode string) chan []byte {
	ch := make(chan []byte, subscriberBuffer)
	b.mu.Lock()
	if b.subs[roomCode] == nil {
		b.subs[roomCode] = make(map[chan []byte]struct{})
	}
	b.subs[roomCode][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(roomCode string, ch chan []byte) {
	b.mu.Lock()
	delete(b.subs[roomCode], ch)
	if len(b.subs[roomCode]) == 0 {
		delete(b.subs, roomCode)
	}
	b.mu.Unlock()
}

// Publish fans an event out to the room's subscribers, skipping any whose
// buffer is full.
func (b *Broker) Publish(evt eventlog.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	b.mu.RLock()
	for ch := range b.subs[evt.RoomCode] {
		select {
		case ch <- data:
		default:
		}
	}
	b.mu.RUnlock()
}

// Subscribers returns how many feeds are open for a room.
func (b *Broker) Subscribers(roomCode string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[roomCode])
}
