// Package journal collects the operation trail of accountant invocations.
// Records are grouped by invocation id, summarized, and round-tripped
// through JSONL, CSV, and a SQLite store. The journal is an observability
// trail only; it is never read back into ledger state.
package journal

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/flowpoint-xyz/go-flashledger/accountant"
)

// Invocation is the record sequence of one top-level accountant call.
type Invocation struct {
	ID      string
	Records []accountant.Record
}

// Journal holds all recorded invocations. It implements
// accountant.Recorder and is safe for concurrent use.
type Journal struct {
	mu          sync.RWMutex
	invocations map[string]*Invocation
	order       []string
}

// New creates an empty journal.
func New() *Journal {
	return &Journal{invocations: make(map[string]*Invocation)}
}

// Record appends a record to its invocation, creating the invocation on
// first sight.
func (j *Journal) Record(r accountant.Record) {
	j.mu.Lock()
	defer j.mu.Unlock()
	inv, ok := j.invocations[r.Invocation]
	if !ok {
		inv = &Invocation{ID: r.Invocation}
		j.invocations[r.Invocation] = inv
		j.order = append(j.order, r.Invocation)
	}
	inv.Records = append(inv.Records, r)
}

// Invocations returns all invocations in first-seen order.
func (j *Journal) Invocations() []*Invocation {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]*Invocation, 0, len(j.order))
	for _, id := range j.order {
		out = append(out, j.invocations[id])
	}
	return out
}

// Get returns the invocation with the given id, or nil.
func (j *Journal) Get(id string) *Invocation {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.invocations[id]
}

// NumInvocations returns the number of recorded invocations.
func (j *Journal) NumInvocations() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.invocations)
}

// NumRecords returns the total record count across invocations.
func (j *Journal) NumRecords() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	total := 0
	for _, inv := range j.invocations {
		total += len(inv.Records)
	}
	return total
}

// Aborted reports whether the invocation ended with an abort record.
func (inv *Invocation) Aborted() bool {
	for _, r := range inv.Records {
		if r.Op == accountant.OpAbort {
			return true
		}
	}
	return false
}

// MaxDepth returns the deepest session nesting seen in the invocation.
func (inv *Invocation) MaxDepth() int {
	max := 0
	for _, r := range inv.Records {
		if r.Depth > max {
			max = r.Depth
		}
	}
	return max
}

// Tokens returns the sorted set of tokens the invocation touched.
func (inv *Invocation) Tokens() []accountant.Token {
	seen := make(map[accountant.Token]bool)
	for _, r := range inv.Records {
		if r.Token != "" {
			seen[r.Token] = true
		}
	}
	out := make([]accountant.Token, 0, len(seen))
	for token := range seen {
		out = append(out, token)
	}
	sort.Slice(out, func(i, k int) bool { return out[i] < out[k] })
	return out
}

// Duration returns the time from the first to the last record.
func (inv *Invocation) Duration() time.Duration {
	if len(inv.Records) < 2 {
		return 0
	}
	return inv.Records[len(inv.Records)-1].Timestamp.Sub(inv.Records[0].Timestamp)
}

// Summary provides basic statistics about a journal.
type Summary struct {
	NumInvocations int
	NumRecords     int
	NumSettled     int
	NumAborted     int
	NumTokens      int
	MaxDepth       int
}

// Summarize computes summary statistics across all invocations.
func (j *Journal) Summarize() Summary {
	j.mu.RLock()
	defer j.mu.RUnlock()

	s := Summary{NumInvocations: len(j.invocations)}
	tokens := make(map[accountant.Token]bool)
	for _, inv := range j.invocations {
		s.NumRecords += len(inv.Records)
		if inv.Aborted() {
			s.NumAborted++
		} else {
			s.NumSettled++
		}
		if d := inv.MaxDepth(); d > s.MaxDepth {
			s.MaxDepth = d
		}
		for _, token := range inv.Tokens() {
			tokens[token] = true
		}
	}
	s.NumTokens = len(tokens)
	return s
}

// String renders the summary as a short multi-line report.
func (s Summary) String() string {
	return fmt.Sprintf(
		"invocations: %d (settled %d, aborted %d)\nrecords: %d\ntokens: %d\nmax depth: %d",
		s.NumInvocations, s.NumSettled, s.NumAborted, s.NumRecords, s.NumTokens, s.MaxDepth)
}
