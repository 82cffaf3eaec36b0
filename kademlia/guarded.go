package kademlia

import "sync"

// Guarded wraps a RoutingTable behind a mutex for callers that need to
// drive it from more than one goroutine. Spec §5 grants no finer-grained
// concurrency than this: "implementations that expose the table across
// parallel threads MUST wrap it in a mutex or equivalent". The core
// itself (RoutingTable) stays lock-free and single-owner, matching
// p2p/discover/table.go's own tab.mutex-guarded style, but scoped to the
// whole table rather than duplicated into every method.
type Guarded struct {
	mu    sync.Mutex
	table *RoutingTable
}

// NewGuarded wraps table for concurrent use.
func NewGuarded(table *RoutingTable) *Guarded {
	return &Guarded{table: table}
}

// Self returns the local node identity. Immutable after construction, so
// no lock is needed.
func (g *Guarded) Self() Node { return g.table.Self() }

func (g *Guarded) RefreshNode(node Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.table.RefreshNode(node)
}

func (g *Guarded) RemoveNode(id NodeID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.table.RemoveNode(id)
}

func (g *Guarded) Member(id NodeID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.table.Member(id)
}

func (g *Guarded) Neighbours(target NodeID) []Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.table.Neighbours(target)
}

func (g *Guarded) HandlePong(pong Pong, ctx *PongContext) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.table.HandlePong(pong, ctx)
}

func (g *Guarded) ExpireProbes(now int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.table.ExpireProbes(now)
}

func (g *Guarded) Buckets() [][]Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.table.Buckets()
}
