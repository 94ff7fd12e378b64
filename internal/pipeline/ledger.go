package pipeline

import (
	"fmt"
	"sync"

	"curator/internal/services"
)

// Set names one of the ledger's mutually exclusive collections.
type Set string

const (
	SetPendingDownload Set = "pending_download"
	SetPendingClassify Set = "pending_classify"
	SetSucceeded       Set = "succeeded"
	SetFiltered        Set = "filtered"
	SetFailed          Set = "failed"
)

// Terminal reports whether items in s are settled.
func (s Set) Terminal() bool {
	return s == SetSucceeded || s == SetFiltered || s == SetFailed
}

// Summary is a point-in-time copy of the ledger.
type Summary struct {
	Listed          int
	PendingDownload []string
	PendingClassify []string
	Succeeded       []string
	Filtered        []string
	Failed          []string
	// Reasons maps each failed id to a short failure reason.
	Reasons map[string]string
}

// Ledger tracks which set each item of a run belongs to. It is safe for
// concurrent use by the run's workers.
type Ledger struct {
	mu      sync.Mutex
	where   map[string]Set
	members map[Set][]string
	reasons map[string]string
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{
		where:   make(map[string]Set),
		members: make(map[Set][]string),
		reasons: make(map[string]string),
	}
}

// Add places a newly listed item in the pending-download set.
func (l *Ledger) Add(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.where[id]; ok {
		return fmt.Errorf("ledger: item %s already tracked", id)
	}
	l.where[id] = SetPendingDownload
	l.members[SetPendingDownload] = append(l.members[SetPendingDownload], id)
	return nil
}

// Move transfers id from one set to another. It refuses moves out of a set
// the item is not in and moves out of terminal sets.
func (l *Ledger) Move(id string, from, to Set) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.moveLocked(id, from, to)
}

// Fail moves id into the failed set and records why.
func (l *Ledger) Fail(id string, from Set, cause error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.moveLocked(id, from, SetFailed); err != nil {
		return err
	}
	l.reasons[id] = services.Reason(cause)
	return nil
}

func (l *Ledger) moveLocked(id string, from, to Set) error {
	current, ok := l.where[id]
	if !ok {
		return fmt.Errorf("ledger: item %s not tracked", id)
	}
	if current != from {
		return fmt.Errorf("ledger: item %s is %s, not %s", id, current, from)
	}
	if current.Terminal() {
		return fmt.Errorf("ledger: item %s already settled as %s", id, current)
	}
	if from == to {
		return fmt.Errorf("ledger: item %s moved to its own set %s", id, to)
	}
	l.members[from] = remove(l.members[from], id)
	l.members[to] = append(l.members[to], id)
	l.where[id] = to
	return nil
}

// In reports the set id currently belongs to.
func (l *Ledger) In(id string) (Set, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.where[id]
	return s, ok
}

// Count returns the size of s.
func (l *Ledger) Count(s Set) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.members[s])
}

// Summary returns ordered copies of every set. Ids appear in the order they
// entered their set.
func (l *Ledger) Summary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()
	reasons := make(map[string]string, len(l.reasons))
	for id, reason := range l.reasons {
		reasons[id] = reason
	}
	return Summary{
		Listed:          len(l.where),
		PendingDownload: clone(l.members[SetPendingDownload]),
		PendingClassify: clone(l.members[SetPendingClassify]),
		Succeeded:       clone(l.members[SetSucceeded]),
		Filtered:        clone(l.members[SetFiltered]),
		Failed:          clone(l.members[SetFailed]),
		Reasons:         reasons,
	}
}

func remove(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func clone(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	return append([]string(nil), ids...)
}
