package kademlia

// Outcome classifies what Bucket.RefreshNode did.
type Outcome int

const (
	// Reordered: the node was already present; it was moved to the tail
	// and its record (endpoint, public key) was replaced with the
	// incoming one.
	Reordered Outcome = iota
	// Inserted: the node was not present and the bucket had room; it was
	// appended to the tail.
	Inserted
	// Full: the node was not present and the bucket was at capacity. The
	// bucket was NOT modified; Candidate holds the head (the
	// least-recently-seen entry, and therefore the eviction candidate).
	Full
)

// RefreshResult is the outcome of Bucket.RefreshNode.
type RefreshResult struct {
	Outcome   Outcome
	Candidate Node // the refreshed node (Reordered/Inserted) or the incumbent (Full)
}

// Bucket is a bounded, ordered list of Nodes. Index 0 is the
// least-recently-seen entry (the eviction candidate); the tail is the
// most-recently-seen. Bucket is not safe for concurrent use; callers
// serialize access the way RoutingTable does.
type Bucket struct {
	capacity int
	entries  []Node
}

// NewBucket returns an empty bucket with the given capacity (K).
func NewBucket(capacity int) *Bucket {
	return &Bucket{capacity: capacity}
}

// Member reports whether a node with the given ID is present.
func (b *Bucket) Member(id NodeID) bool {
	return b.indexOf(id) >= 0
}

// Len returns the number of entries currently in the bucket.
func (b *Bucket) Len() int { return len(b.entries) }

// Nodes returns a read-only view of the bucket's contents in current
// order (least-recently-seen first). The returned slice is a copy; the
// caller may not observe future mutations through it.
func (b *Bucket) Nodes() []Node {
	out := make([]Node, len(b.entries))
	copy(out, b.entries)
	return out
}

func (b *Bucket) indexOf(id NodeID) int {
	for i, e := range b.entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// RefreshNode applies the decision table of spec §4.2: move-to-tail if
// present, append if there's room, or report the head as an eviction
// candidate without modifying the bucket if full.
func (b *Bucket) RefreshNode(node Node) RefreshResult {
	if i := b.indexOf(node.ID); i >= 0 {
		b.entries = append(b.entries[:i], b.entries[i+1:]...)
		b.entries = append(b.entries, node)
		return RefreshResult{Outcome: Reordered, Candidate: node}
	}
	if len(b.entries) < b.capacity {
		b.entries = append(b.entries, node)
		return RefreshResult{Outcome: Inserted, Candidate: node}
	}
	return RefreshResult{Outcome: Full, Candidate: b.entries[0]}
}

// Remove deletes the entry matching id, if any. No-op if absent.
func (b *Bucket) Remove(id NodeID) {
	if i := b.indexOf(id); i >= 0 {
		b.entries = append(b.entries[:i], b.entries[i+1:]...)
	}
}
