package deltasync

import (
	"log/slog"
	"sync"
)

// Frame is one batch of updates for one unit.
type Frame struct {
	Unit    string   `json:"unit"`
	Kind    string   `json:"kind"`
	Tick    uint64   `json:"tick"`
	Full    bool     `json:"full,omitempty"`
	Updates []Update `json:"updates"`
}

// Hub fans frames out to observers. Slow observers miss frames rather
// than stalling the simulation tick; an observer that missed a frame is
// marked stale and receives a full snapshot instead of its next deltas.
type Hub struct {
	mu      sync.Mutex
	subs    map[int]*subscriber
	nextID  int
	buffer  int
	dropped uint64
}

type subscriber struct {
	ch    chan Frame
	stale bool
}

// NewHub creates a hub whose subscriber channels hold buffer frames.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{subs: make(map[int]*subscriber), buffer: buffer}
}

// Subscribe registers an observer.
func (h *Hub) Subscribe() (int, <-chan Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	sub := &subscriber{ch: make(chan Frame, h.buffer)}
	h.subs[h.nextID] = sub
	return h.nextID, sub.ch
}

// Unsubscribe removes an observer and closes its channel.
func (h *Hub) Unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(id)
}

func (h *Hub) remove(id int) {
	if sub, ok := h.subs[id]; ok {
		close(sub.ch)
		delete(h.subs, id)
	}
}

// Publish delivers a frame to every observer without blocking.
func (h *Hub) Publish(f Frame) {
	h.Broadcast([]Frame{f}, nil)
}

// Broadcast delivers one sync round of delta frames. A stale observer gets
// the frames returned by full instead, once its channel has room for all
// of them; full is called at most once per round. An observer whose
// channel could never hold a full snapshot is closed so it can reconnect
// and start over. A nil full leaves stale observers waiting.
func (h *Hub) Broadcast(deltas []Frame, full func() []Frame) {
	h.mu.Lock()
	defer h.mu.Unlock()

	var snapshot []Frame
	loaded := false
	for id, sub := range h.subs {
		if sub.stale {
			if full == nil {
				continue
			}
			if !loaded {
				snapshot, loaded = full(), true
			}
			switch {
			case len(snapshot) > cap(sub.ch):
				slog.Warn("observer cannot hold a full snapshot, closing", "sub_id", id, "frames", len(snapshot))
				h.remove(id)
			case cap(sub.ch)-len(sub.ch) >= len(snapshot):
				for _, f := range snapshot {
					sub.ch <- f
				}
				sub.stale = false
				slog.Debug("observer resynced", "sub_id", id, "frames", len(snapshot))
			}
			// The snapshot already carries this round's changes.
			continue
		}
		for i, f := range deltas {
			select {
			case sub.ch <- f:
			default:
				h.dropped += uint64(len(deltas) - i)
				sub.stale = true
				slog.Debug("observer lagging, frame dropped", "sub_id", id, "unit", f.Unit)
			}
			if sub.stale {
				break
			}
		}
	}
}

// Stale returns how many observers are waiting for a full snapshot.
func (h *Hub) Stale() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, sub := range h.subs {
		if sub.stale {
			n++
		}
	}
	return n
}

// Subscribers returns the number of connected observers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped returns how many frames were dropped for lagging observers.
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}
