package decision

import "github.com/mikey/inbox-sweeper/internal/core"

// Stats accumulates decision outcomes across a run. It is owned by the
// single goroutine driving the run.
type Stats struct {
	total        int
	approved     int
	denied       int
	flagged      int
	gateFailures map[core.Gate]int
}

// Snapshot is a point-in-time copy of Stats
type Snapshot struct {
	Total        int
	Approved     int
	Denied       int
	Flagged      int
	GateFailures map[core.Gate]int
}

// NewStats creates an empty accumulator
func NewStats() *Stats {
	return &Stats{gateFailures: make(map[core.Gate]int)}
}

// Record counts one decision. Every blocking gate is counted, so a single
// denial can increment several gate counters.
func (s *Stats) Record(d core.Decision) {
	s.total++
	if d.Approved {
		s.approved++
		return
	}
	s.denied++
	if d.NeedsReview {
		s.flagged++
	}
	for _, g := range d.Blocking {
		s.gateFailures[g]++
	}
}

// Snapshot returns a copy of the current counters
func (s *Stats) Snapshot() Snapshot {
	failures := make(map[core.Gate]int, len(s.gateFailures))
	for g, n := range s.gateFailures {
		failures[g] = n
	}
	return Snapshot{
		Total:        s.total,
		Approved:     s.approved,
		Denied:       s.denied,
		Flagged:      s.flagged,
		GateFailures: failures,
	}
}
