// Package deltasync numbers a unit's observable fields on integer channels
// and sends only the values that changed since the last transmission.
//
// Composed sub-objects share one channel space: a tank manager claims the
// channels up to its MaxChannelID and the owning unit numbers its own
// fields from MaxChannelID()+1.
package deltasync

import (
	"fmt"
	"slices"
)

// Update is one (channel, value) pair.
type Update struct {
	Channel int `json:"ch"`
	Value   int `json:"v"`
}

// Writer collects the current values of a source's channels.
type Writer struct {
	values map[int]int
	order  []int
	dups   []int
}

// NewWriter creates an empty writer.
func NewWriter() *Writer {
	return &Writer{values: make(map[int]int)}
}

// Put records the value of a channel. Writing a channel twice is recorded
// as a collision and the later value wins.
func (w *Writer) Put(channel, value int) {
	if _, ok := w.values[channel]; ok {
		w.dups = append(w.dups, channel)
	} else {
		w.order = append(w.order, channel)
	}
	w.values[channel] = value
}

// PutBool records a boolean as 0/1.
func (w *Writer) PutBool(channel int, v bool) {
	if v {
		w.Put(channel, 1)
		return
	}
	w.Put(channel, 0)
}

// Updates returns every recorded pair ordered by channel.
func (w *Writer) Updates() []Update {
	chans := slices.Clone(w.order)
	slices.Sort(chans)
	out := make([]Update, 0, len(chans))
	for _, ch := range chans {
		out = append(out, Update{Channel: ch, Value: w.values[ch]})
	}
	return out
}

// Err reports channel collisions.
func (w *Writer) Err() error {
	if len(w.dups) == 0 {
		return nil
	}
	return fmt.Errorf("deltasync: channels written more than once: %v", w.dups)
}

// Source is anything that can describe its observable state on channels.
type Source interface {
	WriteSync(w *Writer)
}

// Sink applies received values. It reports false for channels it does not own.
type Sink interface {
	ApplySync(channel, value int) bool
}

// Apply feeds updates to a sink and returns how many were not recognised.
func Apply(sink Sink, updates []Update) int {
	unknown := 0
	for _, u := range updates {
		if !sink.ApplySync(u.Channel, u.Value) {
			unknown++
		}
	}
	return unknown
}

// Sender remembers what was last transmitted for one source.
type Sender struct {
	last map[int]int
}

// NewSender creates a sender with nothing transmitted yet.
func NewSender() *Sender {
	return &Sender{}
}

// Delta returns the channels whose value changed since the previous call,
// ordered by channel. The first call returns every channel.
func (s *Sender) Delta(src Source) ([]Update, error) {
	w := NewWriter()
	src.WriteSync(w)
	if err := w.Err(); err != nil {
		return nil, err
	}

	current := w.Updates()
	if s.last == nil {
		s.remember(current)
		return current, nil
	}

	var changed []Update
	for _, u := range current {
		if prev, ok := s.last[u.Channel]; !ok || prev != u.Value {
			changed = append(changed, u)
		}
	}
	s.remember(current)
	return changed, nil
}

// Full returns every channel regardless of history, for new observers.
// It does not affect what the next Delta considers changed.
func Full(src Source) ([]Update, error) {
	w := NewWriter()
	src.WriteSync(w)
	if err := w.Err(); err != nil {
		return nil, err
	}
	return w.Updates(), nil
}

func (s *Sender) remember(updates []Update) {
	s.last = make(map[int]int, len(updates))
	for _, u := range updates {
		s.last[u.Channel] = u.Value
	}
}

// Shadow is an observer's read-only copy of a source's channels.
type Shadow struct {
	values map[int]int
}

// NewShadow creates an empty shadow.
func NewShadow() *Shadow {
	return &Shadow{values: make(map[int]int)}
}

// ApplySync implements Sink; a shadow accepts every channel.
func (sh *Shadow) ApplySync(channel, value int) bool {
	sh.values[channel] = value
	return true
}

// Value returns the last received value of a channel.
func (sh *Shadow) Value(channel int) (int, bool) {
	v, ok := sh.values[channel]
	return v, ok
}

// Len returns how many channels have been received.
func (sh *Shadow) Len() int {
	return len(sh.values)
}
