package observer

import (
	"github.com/talgya/mini-factory/internal/errorlogic"
	"github.com/talgya/mini-factory/internal/machines"
)

// Health holds diagnostic signals derived from a Snapshot.
type Health struct {
	Units        int                     `json:"units"`
	Blocked      int                     `json:"blocked"`
	BlockedRatio float64                 `json:"blocked_ratio"`
	ByCode       map[errorlogic.Code]int `json:"by_code"`
	BlockedKinds map[machines.Kind]int   `json:"blocked_kinds"`
	Dominant     errorlogic.Code         `json:"dominant,omitempty"` // most common error, "" when nothing is blocked
	Level        string                  `json:"level"`              // "CRITICAL", "WARNING", "WATCH", "HEALTHY"
}

// Triage computes a Health from the snapshot's unit statuses.
func Triage(snap *Snapshot) *Health {
	h := &Health{
		Units:        len(snap.Units),
		ByCode:       make(map[errorlogic.Code]int),
		BlockedKinds: make(map[machines.Kind]int),
	}

	for _, u := range snap.Units {
		if len(u.Errors) == 0 {
			continue
		}
		h.Blocked++
		h.BlockedKinds[u.Kind]++
		for _, c := range u.Errors {
			h.ByCode[c]++
		}
	}
	if h.Units > 0 {
		h.BlockedRatio = float64(h.Blocked) / float64(h.Units)
	}

	// Ties go to the code listed first.
	best := 0
	for _, c := range errorlogic.Codes {
		if n := h.ByCode[c]; n > best {
			best, h.Dominant = n, c
		}
	}

	// A unit switched off on purpose is not a fault.
	faulty := h.Blocked - h.ByCode[errorlogic.Disabled]
	switch {
	case h.Units > 0 && faulty == h.Units:
		h.Level = "CRITICAL"
	case h.BlockedRatio > 0.5:
		h.Level = "WARNING"
	case faulty > 0:
		h.Level = "WATCH"
	default:
		h.Level = "HEALTHY"
	}
	return h
}
