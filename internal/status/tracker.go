// Package status tracks the lifecycle of the service's long-running
// operations (provider connectivity, contract check, wallet session, gas
// estimate, mint) so they can be reported over the API.
package status

import (
	"sort"
	"sync"
	"time"
)

type State string

const (
	Idle      State = "idle"
	Pending   State = "pending"
	Succeeded State = "succeeded"
	Failed    State = "failed"
)

type Operation string

const (
	Provider Operation = "provider"
	Contract Operation = "contract"
	Wallet   Operation = "wallet"
	Estimate Operation = "estimate"
	Mint     Operation = "mint"
)

// Operations lists every operation a new Tracker starts with.
var Operations = []Operation{Provider, Contract, Wallet, Estimate, Mint}

// Snapshot is the externally visible view of one operation.
type Snapshot struct {
	Operation Operation `json:"operation"`
	State     State     `json:"state"`
	Detail    string    `json:"detail,omitempty"`
	Error     string    `json:"error,omitempty"`
	Runs      int       `json:"runs"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Tracker is safe for concurrent use. A nil *Tracker ignores every call,
// so components can take one optionally.
type Tracker struct {
	mu  sync.RWMutex
	ops map[Operation]*Snapshot
	now func() time.Time
}

func NewTracker(ops ...Operation) *Tracker {
	if len(ops) == 0 {
		ops = Operations
	}
	t := &Tracker{ops: make(map[Operation]*Snapshot, len(ops)), now: time.Now}
	for _, op := range ops {
		t.ops[op] = &Snapshot{Operation: op, State: Idle}
	}
	return t
}

// Start moves op to pending. Any state may restart.
func (t *Tracker) Start(op Operation) {
	t.update(op, func(s *Snapshot) {
		s.State = Pending
		s.Detail = ""
		s.Error = ""
		s.Runs++
	})
}

func (t *Tracker) Succeed(op Operation, detail string) {
	t.update(op, func(s *Snapshot) {
		s.State = Succeeded
		s.Detail = detail
		s.Error = ""
	})
}

func (t *Tracker) Fail(op Operation, err error) {
	t.update(op, func(s *Snapshot) {
		s.State = Failed
		s.Detail = ""
		if err != nil {
			s.Error = err.Error()
		}
	})
}

// Note replaces the detail of op without changing its state, e.g. to
// record which transaction a pending operation is waiting on.
func (t *Tracker) Note(op Operation, detail string) {
	t.update(op, func(s *Snapshot) {
		s.Detail = detail
	})
}

// Reset returns op to idle without touching the run counter.
func (t *Tracker) Reset(op Operation) {
	t.update(op, func(s *Snapshot) {
		s.State = Idle
		s.Detail = ""
		s.Error = ""
	})
}

// Track runs fn between Start and Succeed/Fail.
func (t *Tracker) Track(op Operation, fn func() (string, error)) error {
	t.Start(op)
	detail, err := fn()
	if err != nil {
		t.Fail(op, err)
		return err
	}
	t.Succeed(op, detail)
	return nil
}

func (t *Tracker) Get(op Operation) (Snapshot, bool) {
	if t == nil {
		return Snapshot{}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.ops[op]
	if !ok {
		return Snapshot{}, false
	}
	return *s, true
}

// Snapshot returns every operation sorted by name.
func (t *Tracker) Snapshot() []Snapshot {
	if t == nil {
		return nil
	}
	t.mu.RLock()
	out := make([]Snapshot, 0, len(t.ops))
	for _, s := range t.ops {
		out = append(out, *s)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Operation < out[j].Operation })
	return out
}

func (t *Tracker) update(op Operation, fn func(*Snapshot)) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.ops[op]
	if !ok {
		s = &Snapshot{Operation: op, State: Idle}
		t.ops[op] = s
	}
	fn(s)
	s.UpdatedAt = t.now()
}
