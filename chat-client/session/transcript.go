package session

import "html/template"

// DefaultTranscriptLimit bounds the transcript when no limit is configured.
const DefaultTranscriptLimit = 1000

// Transcript is an append-only list of rendered fragments. When a limit is
// set the oldest fragment is evicted to make room. Not safe for concurrent
// use on its own; Session guards it.
type Transcript struct {
	limit int
	items []template.HTML
	seq   uint64
}

// NewTranscript returns a Transcript holding at most limit fragments.
// A limit of zero or less means unbounded.
func NewTranscript(limit int) *Transcript {
	if limit < 0 {
		limit = 0
	}
	capHint := limit
	if capHint == 0 || capHint > 64 {
		capHint = 64
	}
	return &Transcript{limit: limit, items: make([]template.HTML, 0, capHint)}
}

// Append adds f and reports whether an older fragment was evicted.
func (t *Transcript) Append(f template.HTML) bool {
	t.seq++
	if t.limit > 0 && len(t.items) == t.limit {
		copy(t.items, t.items[1:])
		t.items[len(t.items)-1] = f
		return true
	}
	t.items = append(t.items, f)
	return false
}

func (t *Transcript) Len() int { return len(t.items) }

func (t *Transcript) Limit() int { return t.limit }

// Seq counts every fragment ever appended, evicted ones included. The newest
// fragment carries this number.
func (t *Transcript) Seq() uint64 { return t.seq }

// Snapshot returns a copy of the fragments, oldest first.
func (t *Transcript) Snapshot() []template.HTML {
	out := make([]template.HTML, len(t.items))
	copy(out, t.items)
	return out
}
