package engine

import (
    "sort"
    "sync"
)

// studentLocks serializes admissions that involve overlapping sets of
// students.  The admission path locks the union of the requesting
// student and every member of the encounter groups containing them,
// in ascending ID order so two overlapping admissions can never
// deadlock.  Holding the set from snapshot read through insert closes
// the check-then-act window in which two members of the same group
// could both be evaluated as conflict-free.
//
// Mutexes are created on first use and kept for the life of the
// process; the map is bounded by the school's student population.
type studentLocks struct {
    mu    sync.Mutex
    locks map[uint64]*sync.Mutex
}

func newStudentLocks() *studentLocks {
    return &studentLocks{locks: make(map[uint64]*sync.Mutex)}
}

// acquire locks the mutexes for the given student IDs in ascending
// order and returns a release function that unlocks them in reverse.
// Duplicate IDs are collapsed.
func (l *studentLocks) acquire(ids []uint64) func() {
    unique := make([]uint64, 0, len(ids))
    seen := make(map[uint64]struct{}, len(ids))
    for _, id := range ids {
        if _, ok := seen[id]; !ok {
            seen[id] = struct{}{}
            unique = append(unique, id)
        }
    }
    sort.Slice(unique, func(i, j int) bool { return unique[i] < unique[j] })

    held := make([]*sync.Mutex, 0, len(unique))
    for _, id := range unique {
        l.mu.Lock()
        m, ok := l.locks[id]
        if !ok {
            m = &sync.Mutex{}
            l.locks[id] = m
        }
        l.mu.Unlock()
        m.Lock()
        held = append(held, m)
    }
    return func() {
        for i := len(held) - 1; i >= 0; i-- {
            held[i].Unlock()
        }
    }
}
