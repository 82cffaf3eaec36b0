package kademlia

// Digest is the wire-level MDC/hash of an outbound Ping, opaque to the
// core, used as the correlation key for the matching Pong.
type Digest [32]byte

// probeEntry is a pending liveness contest: incumbent is the bucket head
// being challenged, challenger is the node that triggered the contest by
// showing up when the bucket was full. insertedAt supports the expiry
// sweep recommended (but not required by the original) in spec §9.
type probeEntry struct {
	incumbent  Node
	challenger Node
	insertedAt int64
}

// PendingProbes maps a Ping digest to the (incumbent, challenger) pair
// awaiting its Pong. Entries have no built-in TTL of their own; staleness
// is resolved either by HandlePong's expiration check or by
// RoutingTable.ExpireProbes sweeping entries whose insertedAt is older
// than a timeout (see spec §9, Open Question 1).
type PendingProbes struct {
	entries map[Digest]probeEntry
}

// NewPendingProbes returns an empty probe table.
func NewPendingProbes() *PendingProbes {
	return &PendingProbes{entries: make(map[Digest]probeEntry)}
}

// Insert records a new pending probe. Overwrites any existing entry for
// the same digest — collisions are not expected in practice since the
// digest is a cryptographic hash of the outbound Ping.
func (p *PendingProbes) Insert(digest Digest, incumbent, challenger Node, now int64) {
	p.entries[digest] = probeEntry{incumbent: incumbent, challenger: challenger, insertedAt: now}
}

// Pop atomically reads and removes the entry for digest, if any.
func (p *PendingProbes) Pop(digest Digest) (incumbent, challenger Node, ok bool) {
	e, ok := p.entries[digest]
	if !ok {
		return Node{}, Node{}, false
	}
	delete(p.entries, digest)
	return e.incumbent, e.challenger, true
}

// Len returns the number of outstanding probes.
func (p *PendingProbes) Len() int { return len(p.entries) }

// expired returns the digests of every entry inserted before the cutoff.
func (p *PendingProbes) expired(cutoff int64) []Digest {
	var stale []Digest
	for d, e := range p.entries {
		if e.insertedAt < cutoff {
			stale = append(stale, d)
		}
	}
	return stale
}
