package testutil

import (
	"fmt"
	"sync"
)

// SequentialIDs generates run ids "<prefix>-0001", "<prefix>-0002", ...
//
// It satisfies harness.IDGenerator and replaces random UUIDs in tests so
// stored runs and golden output are stable.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	next   int
}

// NewSequentialIDs creates a generator. An empty prefix becomes "run".
func NewSequentialIDs(prefix string) *SequentialIDs {
	if prefix == "" {
		prefix = "run"
	}
	return &SequentialIDs{prefix: prefix}
}

// NewID returns the next id.
func (g *SequentialIDs) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("%s-%04d", g.prefix, g.next), nil
}
