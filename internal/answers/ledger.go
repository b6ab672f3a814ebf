// Package answers stores the recorded answer for each question of a session.
package answers

import (
	"sort"
	"strings"
	"sync"
)

// Entry is one recorded answer.
type Entry struct {
	Index  int    `json:"index"`
	Answer string `json:"answer"`
}

// Ledger maps question index to the latest answer. Re-recording a question
// overwrites its answer.
type Ledger struct {
	mu      sync.RWMutex
	entries map[int]string
}

func NewLedger() *Ledger {
	return &Ledger{entries: make(map[int]string)}
}

// RecordAnswer stores text for the question at index. Blank text is ignored
// and reported as false.
func (l *Ledger) RecordAnswer(index int, text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	l.mu.Lock()
	l.entries[index] = text
	l.mu.Unlock()
	return true
}

func (l *Ledger) Answer(index int) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.entries[index]
	return a, ok
}

// All returns the entries ordered by question index.
func (l *Ledger) All() []Entry {
	l.mu.RLock()
	out := make([]Entry, 0, len(l.entries))
	for idx, a := range l.entries {
		out = append(out, Entry{Index: idx, Answer: a})
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
