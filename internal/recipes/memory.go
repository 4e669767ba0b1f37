package recipes

import (
	"fmt"

	"github.com/talgya/mini-factory/internal/items"
)

// MemoryCapacity is how many crafted layouts a worktable remembers. An
// index equal to it selects "clear the grid".
const MemoryCapacity = 9

// MemorizedRecipe is one remembered grid layout.
type MemorizedRecipe struct {
	Grid     Grid         `json:"grid"`
	Output   *items.Stack `json:"output"`
	LastUsed uint64       `json:"last_used"`
	Locked   bool         `json:"locked,omitempty"`
}

// Memory keeps the most recently crafted layouts. Indices stay put while
// entries are refreshed or replaced; only pruning shifts them.
type Memory struct {
	entries []*MemorizedRecipe
}

// NewMemory creates an empty memory.
func NewMemory() *Memory {
	return &Memory{}
}

// Len returns the number of remembered layouts.
func (m *Memory) Len() int { return len(m.entries) }

// Memorize records a crafted layout. A layout already remembered is only
// refreshed. When full, the least recently used unlocked entry is replaced
// in place; with every entry locked nothing is stored and false is returned.
func (m *Memory) Memorize(g Grid, output *items.Stack, tick uint64) bool {
	for _, e := range m.entries {
		if e.Grid.Equal(g) {
			e.Output = output.Copy()
			e.LastUsed = tick
			return true
		}
	}

	entry := &MemorizedRecipe{Grid: g.Copy(), Output: output.Copy(), LastUsed: tick}
	if len(m.entries) < MemoryCapacity {
		m.entries = append(m.entries, entry)
		return true
	}

	victim := -1
	for i, e := range m.entries {
		if e.Locked {
			continue
		}
		if victim < 0 || e.LastUsed < m.entries[victim].LastUsed {
			victim = i
		}
	}
	if victim < 0 {
		return false
	}
	m.entries[victim] = entry
	return true
}

// Validate drops layouts that no longer craft anything in book and
// refreshes the outputs of the rest. It returns how many were dropped.
func (m *Memory) Validate(book *Book) int {
	kept := m.entries[:0]
	for _, e := range m.entries {
		out := book.FindMatching(e.Grid)
		if out == nil {
			continue
		}
		e.Output = out
		kept = append(kept, e)
	}
	dropped := len(m.entries) - len(kept)
	clear(m.entries[len(kept):])
	m.entries = kept
	return dropped
}

// Layout returns a copy of the grid stored at index.
func (m *Memory) Layout(index int) (Grid, bool) {
	if index < 0 || index >= len(m.entries) {
		return Grid{}, false
	}
	return m.entries[index].Grid.Copy(), true
}

// Output returns the output recorded for index, or nil.
func (m *Memory) Output(index int) *items.Stack {
	if index < 0 || index >= len(m.entries) {
		return nil
	}
	return m.entries[index].Output.Copy()
}

// ToggleLock flips the lock on an entry and returns the new state.
func (m *Memory) ToggleLock(index int) bool {
	if index < 0 || index >= len(m.entries) {
		return false
	}
	e := m.entries[index]
	e.Locked = !e.Locked
	return e.Locked
}

// IsLocked reports whether the entry at index is locked.
func (m *Memory) IsLocked(index int) bool {
	return index >= 0 && index < len(m.entries) && m.entries[index].Locked
}

// Entries returns copies of every entry for persistence and observers.
func (m *Memory) Entries() []MemorizedRecipe {
	out := make([]MemorizedRecipe, len(m.entries))
	for i, e := range m.entries {
		out[i] = MemorizedRecipe{Grid: e.Grid.Copy(), Output: e.Output.Copy(), LastUsed: e.LastUsed, Locked: e.Locked}
	}
	return out
}

// Restore replaces the memory with saved entries.
func (m *Memory) Restore(entries []MemorizedRecipe) error {
	if len(entries) > MemoryCapacity {
		return fmt.Errorf("recipe memory: %d entries exceed capacity %d", len(entries), MemoryCapacity)
	}
	m.entries = make([]*MemorizedRecipe, len(entries))
	for i, e := range entries {
		m.entries[i] = &MemorizedRecipe{Grid: e.Grid.Copy(), Output: e.Output.Copy(), LastUsed: e.LastUsed, Locked: e.Locked}
	}
	return nil
}
