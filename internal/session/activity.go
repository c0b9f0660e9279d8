package session

import "time"

// FeedSize is the number of activity entries kept per peer.
const FeedSize = 50

type ActivityEntry struct {
	Seq      int          `json:"seq"`
	Type     ActivityType `json:"type"`
	Message  string       `json:"message"`
	PlayerID string       `json:"playerId,omitempty"`
	At       time.Time    `json:"timestamp"`
}

// Feed is a fixed-capacity ring of activity entries. Once full, each new entry
// overwrites the oldest.
type Feed struct {
	buf  []ActivityEntry
	next int
	full bool
	seq  int
}

func NewFeed(capacity int) *Feed {
	return &Feed{buf: make([]ActivityEntry, capacity)}
}

func (f *Feed) Add(e ActivityEntry) {
	if len(f.buf) == 0 {
		return
	}
	f.seq++
	e.Seq = f.seq
	f.buf[f.next] = e
	f.next = (f.next + 1) % len(f.buf)
	if f.next == 0 {
		f.full = true
	}
}

func (f *Feed) Len() int {
	if f.full {
		return len(f.buf)
	}
	return f.next
}

// Entries returns the retained entries, newest first.
func (f *Feed) Entries() []ActivityEntry {
	n := f.Len()
	out := make([]ActivityEntry, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, f.buf[(f.next-i+len(f.buf))%len(f.buf)])
	}
	return out
}
