package transporttest

import (
	"slices"
	"sync"
)

// Journal records named events in the order they happen. It is shared by
// fakes and test hooks to assert ordering across layers.
type Journal struct {
	mu      sync.Mutex
	entries []string
}

// NewJournal creates an empty journal.
func NewJournal() *Journal {
	return &Journal{}
}

// Record appends an entry.
func (j *Journal) Record(entry string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

// Entries returns a copy of the recorded entries.
func (j *Journal) Entries() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return slices.Clone(j.entries)
}

// Index returns the position of the first occurrence of entry, or -1.
func (j *Journal) Index(entry string) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return slices.Index(j.entries, entry)
}

// Has reports whether entry was recorded.
func (j *Journal) Has(entry string) bool {
	return j.Index(entry) >= 0
}

// Count returns how many times entry was recorded.
func (j *Journal) Count(entry string) int {
	j.mu.Lock()
	defer j.mu.Unlock()

	n := 0
	for _, e := range j.entries {
		if e == entry {
			n++
		}
	}
	return n
}

// Before reports whether the first a was recorded before the first b.
// Both must be present.
func (j *Journal) Before(a, b string) bool {
	ia, ib := j.Index(a), j.Index(b)
	return ia >= 0 && ib >= 0 && ia < ib
}
