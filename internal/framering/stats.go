package framering

// CursorStats is a snapshot of one consumer's progress.
type CursorStats struct {
	LastSeq   uint64 `json:"last_seq"`
	Delivered uint64 `json:"delivered"`
	Skipped   uint64 `json:"skipped"`
}

// Stats is a snapshot of ring operational state. Skipped and Evicted grow
// under sustained overload; that is the drop-oldest policy working, not an
// error.
type Stats struct {
	Published    uint64                 `json:"published"`
	Evicted      uint64                 `json:"evicted"`
	Backpressure uint64                 `json:"backpressure"`
	Cursors      map[string]CursorStats `json:"cursors"`
}

// Stats returns a consistent snapshot, safe for concurrent use.
func (r *Ring) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	cursors := make(map[string]CursorStats, len(r.cursors))
	for id, c := range r.cursors {
		cursors[id] = CursorStats{
			LastSeq:   c.lastSeq,
			Delivered: c.delivered,
			Skipped:   c.skipped,
		}
	}
	return Stats{
		Published:    r.published,
		Evicted:      r.evicted,
		Backpressure: r.backpressure,
		Cursors:      cursors,
	}
}
