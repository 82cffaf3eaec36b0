package kademlia

import (
	"sort"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// DefaultBucketCapacity is K, the per-bucket capacity, per spec §1.
const DefaultBucketCapacity = 16

// DefaultProbeTimeout is how long an eviction-contest Ping may go
// unanswered before the incumbent is treated as dead. Spec §9 Open
// Question 1 leaves the exact value unspecified and recommends "500ms to
// a few seconds"; this implementation resolves it at 2s.
const DefaultProbeTimeout = 2 * time.Second

// Sender is the "send capability" of spec §6: emit a Ping to an
// endpoint and report the wire-level digest used to correlate the
// matching Pong. Errors propagate to the RoutingTable caller.
type Sender interface {
	Ping(dest Endpoint) (Digest, error)
}

// Pong is the decoded response the core cares about: the digest of the
// Ping it answers, and the expiration the sender attached. Wire encoding
// of the underlying packet is handled entirely outside this package.
type Pong struct {
	Digest     Digest
	Expiration int64
}

// PongContext describes the sender of an unsolicited ("first-contact")
// Pong, used by HandlePong when no pending probe matches.
type PongContext struct {
	PublicKey [64]byte
	Endpoint  Endpoint
}

// Config configures a RoutingTable at construction. Zero-value fields
// take the documented defaults via withDefaults.
type Config struct {
	// IDBits is N, the number of buckets (and the ID bit-width). Default 256.
	IDBits int
	// BucketCapacity is K. Default 16.
	BucketCapacity int
	// ProbeTimeout bounds how long an eviction-contest Ping may go
	// unanswered before ExpireProbes treats the incumbent as dead.
	ProbeTimeout time.Duration
	// Clock is the external clock capability (spec §6). Defaults to SystemClock.
	Clock Clock
	// Metrics receives eviction/probe counters. Defaults to a fresh, unregistered Metrics.
	Metrics *Metrics
	// Log receives structured debug/trace output. Defaults to log.Root().
	Log log.Logger
}

func (cfg Config) withDefaults() Config {
	if cfg.IDBits == 0 {
		cfg.IDBits = IDBits
	}
	if cfg.BucketCapacity == 0 {
		cfg.BucketCapacity = DefaultBucketCapacity
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics()
	}
	if cfg.Log == nil {
		cfg.Log = log.Root()
	}
	return cfg
}

// RoutingTable owns the local node identity, the fixed array of buckets,
// the pending-probes table, and the send capability. It holds no
// internal lock: per spec §5 it is a single-owner state machine, and
// callers needing cross-goroutine access should use Guarded.
type RoutingTable struct {
	local   Node
	cfg     Config
	buckets []*Bucket
	probes  *PendingProbes
	sender  Sender

	// nodeAddedHook fires after a node is newly inserted into a bucket.
	// Exists for tests, mirroring p2p/discover/table.go's nodeAddedHook.
	nodeAddedHook func(Node)
}

// NewRoutingTable allocates N empty buckets and an empty pending-probes
// table for local, sending eviction-contest pings through sender.
func NewRoutingTable(local Node, sender Sender, cfg Config) *RoutingTable {
	cfg = cfg.withDefaults()
	t := &RoutingTable{
		local:   local,
		cfg:     cfg,
		buckets: make([]*Bucket, cfg.IDBits),
		probes:  NewPendingProbes(),
		sender:  sender,
	}
	for i := range t.buckets {
		t.buckets[i] = NewBucket(cfg.BucketCapacity)
	}
	return t
}

// Self returns the local node.
func (t *RoutingTable) Self() Node { return t.local }

// BucketIndex returns common_prefix_length(local.id, id), the bucket a
// node with this id belongs in.
func (t *RoutingTable) BucketIndex(id NodeID) int {
	return CommonPrefixLength(t.local.ID, id)
}

// RefreshNode implements spec §4.4 RefreshNode: self-IDs are silently
// ignored; otherwise the node's bucket is refreshed, and a full bucket
// triggers an eviction contest (a Ping to the incumbent, with the
// resulting digest recorded in pending-probes). The bucket is left
// unmodified while a contest is outstanding.
func (t *RoutingTable) RefreshNode(node Node) error {
	if node.ID == t.local.ID {
		return nil
	}
	i := t.BucketIndex(node.ID)
	b := t.buckets[i]
	result := b.RefreshNode(node)

	switch result.Outcome {
	case Reordered, Inserted:
		if result.Outcome == Inserted && t.nodeAddedHook != nil {
			t.nodeAddedHook(node)
		}
		t.cfg.Metrics.BucketOccupancy.WithLabelValues(strconv.Itoa(i)).Set(float64(b.Len()))
		return nil

	case Full:
		incumbent := result.Candidate
		digest, err := t.sender.Ping(incumbent.Endpoint)
		if err != nil {
			return &ErrSendFailure{Endpoint: incumbent.Endpoint, Err: err}
		}
		t.probes.Insert(digest, incumbent, node, t.cfg.Clock.Now())
		t.cfg.Metrics.ProbesEmitted.Inc()
		t.cfg.Log.Debug("eviction contest started", "bucket", i, "incumbent", incumbent.ID, "challenger", node.ID)
		return nil
	}
	return nil
}

// RemoveNode deletes node from its bucket. Pending-probes entries
// referencing it are left in place: if their Pong arrives in time,
// HandlePong re-inserts the incumbent as a fresh entry; if they expire,
// ExpireProbes promotes the challenger.
func (t *RoutingTable) RemoveNode(id NodeID) {
	if id == t.local.ID {
		return
	}
	i := t.BucketIndex(id)
	t.buckets[i].Remove(id)
	t.cfg.Metrics.BucketOccupancy.WithLabelValues(strconv.Itoa(i)).Set(float64(t.buckets[i].Len()))
}

// Member reports whether id is present in the table.
func (t *RoutingTable) Member(id NodeID) bool {
	if id == t.local.ID {
		return false
	}
	return t.buckets[t.BucketIndex(id)].Member(id)
}

// NodesAt returns the nodes currently in bucket i.
func (t *RoutingTable) NodesAt(i int) []Node {
	return t.buckets[i].Nodes()
}

// Buckets returns a read-only snapshot of every bucket's contents,
// indexed by bucket index.
func (t *RoutingTable) Buckets() [][]Node {
	out := make([][]Node, len(t.buckets))
	for i, b := range t.buckets {
		out[i] = b.Nodes()
	}
	return out
}

// Neighbours returns up to K known peers closest to target, walking
// buckets outward from bucket(target) per spec §4.4.
func (t *RoutingTable) Neighbours(target NodeID) []Node {
	i := t.BucketIndex(target)
	acc := append([]Node{}, t.buckets[i].Nodes()...)

	for step := 1; ; step++ {
		lo, hi := i-step, i+step
		loInRange := lo >= 0
		hiInRange := hi < len(t.buckets)
		if !loInRange && !hiInRange {
			break
		}
		if loInRange {
			acc = append(acc, t.buckets[lo].Nodes()...)
		}
		if hiInRange {
			acc = append(acc, t.buckets[hi].Nodes()...)
		}
		if len(acc) > t.cfg.BucketCapacity {
			break
		}
	}

	sort.Slice(acc, func(a, b int) bool {
		return DistanceCmp(target, acc[a].ID, acc[b].ID) < 0
	})
	if len(acc) > t.cfg.BucketCapacity {
		acc = acc[:t.cfg.BucketCapacity]
	}
	return acc
}

// HandlePong implements spec §4.4 HandlePong's decision table, evaluated
// top to bottom with the first match winning.
func (t *RoutingTable) HandlePong(pong Pong, ctx *PongContext) {
	incumbent, _, hasPending := t.probes.Pop(pong.Digest)
	fresh := pong.Expiration > t.cfg.Clock.Now()

	switch {
	case hasPending && fresh:
		t.cfg.Metrics.ContestsWon.WithLabelValues("incumbent").Inc()
		if err := t.RefreshNode(incumbent); err != nil {
			t.cfg.Log.Debug("incumbent refresh after won contest failed", "id", incumbent.ID, "err", err)
		}

	case ctx != nil && fresh:
		node := Node{ID: DeriveNodeID(ctx.PublicKey), PublicKey: ctx.PublicKey, Endpoint: ctx.Endpoint}
		if err := t.RefreshNode(node); err != nil {
			t.cfg.Log.Debug("unsolicited pong refresh failed", "id", node.ID, "err", err)
		}

	default:
		t.cfg.Metrics.UnmatchedPongs.Inc()
	}
}

// ExpireProbes sweeps pending-probes entries older than the configured
// ProbeTimeout: the silent incumbent loses its slot and the challenger
// takes it. This resolves spec §9 Open Question 1 via a periodic
// sweeper (option (a)); callers (e.g. transport.UDPTransport) are
// expected to invoke this on a ticker.
func (t *RoutingTable) ExpireProbes(now int64) {
	cutoff := now - int64(t.cfg.ProbeTimeout/time.Second)
	for _, digest := range t.probes.expired(cutoff) {
		incumbent, challenger, ok := t.probes.Pop(digest)
		if !ok {
			continue // already resolved by a concurrent HandlePong
		}
		t.RemoveNode(incumbent.ID)
		t.cfg.Metrics.ContestsWon.WithLabelValues("challenger").Inc()
		t.cfg.Log.Debug("eviction contest timed out", "incumbent", incumbent.ID, "challenger", challenger.ID)
		if err := t.RefreshNode(challenger); err != nil {
			t.cfg.Log.Debug("challenger promotion failed", "id", challenger.ID, "err", err)
		}
	}
}

// PendingProbeCount returns the number of outstanding eviction-contest probes.
func (t *RoutingTable) PendingProbeCount() int { return t.probes.Len() }
