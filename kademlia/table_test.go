package kademlia

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSender is a Sender test double that records every Ping and hands
// back sequential digests, or a canned error when armed.
type fakeSender struct {
	mu         sync.Mutex
	nextDigest byte
	err        error
	pings      []Endpoint
}

func (s *fakeSender) Ping(dest Endpoint) (Digest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pings = append(s.pings, dest)
	if s.err != nil {
		return Digest{}, s.err
	}
	s.nextDigest++
	var d Digest
	d[0] = s.nextDigest
	return d, nil
}

// nodeIDAtPrefix returns an ID that shares exactly `prefix` leading bits
// with local: identical through bit prefix-1, differing at bit prefix.
// Bits after that are filled from salt so callers can produce several
// distinct IDs that land in the same bucket.
func nodeIDAtPrefix(local NodeID, prefix int, salt byte) NodeID {
	id := local
	byteIdx := prefix / 8
	bitMask := byte(1) << (7 - uint(prefix%8))
	id[byteIdx] ^= bitMask
	for i := byteIdx + 1; i < len(id); i++ {
		id[i] = salt
	}
	return id
}

func newTestTable(t *testing.T, sender Sender) (*RoutingTable, NodeID) {
	t.Helper()
	var local NodeID
	local[0] = 0x42
	tab := NewRoutingTable(Node{ID: local}, sender, Config{Clock: NewTestClock(1000)})
	return tab, local
}

func TestEmptyTableNeighboursIsEmpty(t *testing.T) {
	tab, local := newTestTable(t, &fakeSender{})
	assert.Empty(t, tab.Neighbours(local))
}

func TestRefreshNodeSelfIsNoop(t *testing.T) { // P4
	tab, local := newTestTable(t, &fakeSender{})
	require.NoError(t, tab.RefreshNode(Node{ID: local}))
	assert.False(t, tab.Member(local))
	for _, bucket := range tab.Buckets() {
		assert.Empty(t, bucket)
	}
}

func TestRefreshNodeLandsInCorrectBucket(t *testing.T) { // P1
	tab, local := newTestTable(t, &fakeSender{})
	for _, prefix := range []int{0, 1, 7, 8, 100, 254, 255} {
		id := nodeIDAtPrefix(local, prefix, 0x11)
		require.NoError(t, tab.RefreshNode(Node{ID: id}))
		assert.Equal(t, prefix, tab.BucketIndex(id))
		assert.True(t, tab.Member(id))
		assert.Contains(t, idSlice(tab.NodesAt(prefix)), id)
	}
}

func idSlice(nodes []Node) []NodeID {
	ids := make([]NodeID, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}

func TestInsertAndFindReturnsAllSortedByDistance(t *testing.T) { // scenario 2, P7
	tab, local := newTestTable(t, &fakeSender{})
	prefix := 10
	var ids []NodeID
	for i := byte(1); i <= 5; i++ {
		id := nodeIDAtPrefix(local, prefix, i)
		require.NoError(t, tab.RefreshNode(Node{ID: id}))
		ids = append(ids, id)
	}

	got := tab.Neighbours(ids[0])
	require.Len(t, got, 5)

	gotIDs := idSlice(got)
	assert.ElementsMatch(t, ids, gotIDs)
	assert.True(t, sort.SliceIsSorted(got, func(a, b int) bool {
		return DistanceCmp(ids[0], got[a].ID, got[b].ID) < 0
	}))
}

func TestNeighboursCapAndOrder(t *testing.T) { // P6
	tab, local := newTestTable(t, &fakeSender{})
	prefix := 200
	for i := byte(1); i <= 40; i++ {
		require.NoError(t, tab.RefreshNode(Node{ID: nodeIDAtPrefix(local, prefix, i)}))
	}
	target := nodeIDAtPrefix(local, prefix, 0)
	got := tab.Neighbours(target)
	assert.LessOrEqual(t, len(got), DefaultBucketCapacity)
	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, DistanceCmp(target, got[i-1].ID, got[i].ID), 0)
	}
}

func fillBucket(t *testing.T, tab *RoutingTable, local NodeID, prefix int, n int) []NodeID {
	t.Helper()
	var ids []NodeID
	for i := byte(1); i <= byte(n); i++ {
		id := nodeIDAtPrefix(local, prefix, i)
		require.NoError(t, tab.RefreshNode(Node{ID: id}))
		ids = append(ids, id)
	}
	return ids
}

func TestFullBucketContestIncumbentAlive(t *testing.T) { // scenario 3
	sender := &fakeSender{}
	tab, local := newTestTable(t, sender)
	prefix := 50
	ids := fillBucket(t, tab, local, prefix, DefaultBucketCapacity)
	headID := ids[0]

	challenger := Node{ID: nodeIDAtPrefix(local, prefix, 0xFE)}
	require.NoError(t, tab.RefreshNode(challenger))

	require.Len(t, sender.pings, 1, "exactly one ping emitted to the incumbent")
	require.Equal(t, 1, tab.PendingProbeCount())
	assert.False(t, tab.Member(challenger.ID), "challenger not inserted while contest is pending")

	var digest Digest
	digest[0] = 1 // fakeSender's first digest
	tab.HandlePong(Pong{Digest: digest, Expiration: 5000}, nil)

	assert.Equal(t, 0, tab.PendingProbeCount())
	assert.False(t, tab.Member(challenger.ID))
	nodes := tab.NodesAt(prefix)
	require.Len(t, nodes, DefaultBucketCapacity)
	assert.Equal(t, headID, nodes[len(nodes)-1].ID, "incumbent moved to tail")
}

func TestFullBucketContestIncumbentSilent(t *testing.T) { // scenario 4
	sender := &fakeSender{}
	tab, local := newTestTable(t, sender)
	tab.cfg.ProbeTimeout = 2e9 // 2s, expressed in time.Duration's ns unit via int64 below
	prefix := 60
	ids := fillBucket(t, tab, local, prefix, DefaultBucketCapacity)
	headID := ids[0]

	challenger := Node{ID: nodeIDAtPrefix(local, prefix, 0xFE)}
	require.NoError(t, tab.RefreshNode(challenger))
	require.Equal(t, 1, tab.PendingProbeCount())

	tab.ExpireProbes(1000 + 3) // past the 2s timeout, no pong ever arrived

	assert.Equal(t, 0, tab.PendingProbeCount())
	assert.False(t, tab.Member(headID), "incumbent evicted")
	assert.True(t, tab.Member(challenger.ID), "challenger promoted")
	assert.Len(t, tab.NodesAt(prefix), DefaultBucketCapacity)
}

func TestUnsolicitedFreshPong(t *testing.T) { // scenario 5
	var pub [64]byte
	pub[0] = 0x77
	derived := DeriveNodeID(pub)
	// Place the local node so that the sender's derived ID shares exactly
	// 30 leading bits with it.
	local := nodeIDAtPrefix(derived, 30, 0x77)
	tab := NewRoutingTable(Node{ID: local}, &fakeSender{}, Config{Clock: NewTestClock(1000)})
	newNode := Node{ID: derived, PublicKey: pub}

	var digest Digest
	digest[0] = 0xCC // not in pending-probes
	tab.HandlePong(Pong{Digest: digest, Expiration: 5000}, &PongContext{
		PublicKey: newNode.PublicKey,
		Endpoint:  newNode.Endpoint,
	})

	assert.True(t, tab.Member(derived))
	assert.Equal(t, 30, tab.BucketIndex(derived))
}

func TestStalePongIsDropped(t *testing.T) { // scenario 6
	tab, _ := newTestTable(t, &fakeSender{})
	before := tab.Buckets()

	var digest Digest
	digest[0] = 0x01
	tab.HandlePong(Pong{Digest: digest, Expiration: 1}, &PongContext{}) // expiration in the past

	assert.Equal(t, before, tab.Buckets())
	assert.Equal(t, 0, tab.PendingProbeCount())
}

func TestPongIdempotence(t *testing.T) { // P8
	sender := &fakeSender{}
	tab, local := newTestTable(t, sender)
	prefix := 70
	fillBucket(t, tab, local, prefix, DefaultBucketCapacity)
	challenger := Node{ID: nodeIDAtPrefix(local, prefix, 0xFE)}
	require.NoError(t, tab.RefreshNode(challenger))

	var digest Digest
	digest[0] = 1
	pong := Pong{Digest: digest, Expiration: 5000}

	tab.HandlePong(pong, nil)
	snapshot := tab.Buckets()

	tab.HandlePong(pong, nil) // second application: nothing left to pop
	assert.Equal(t, snapshot, tab.Buckets())
}

func TestMemberFalseForLocal(t *testing.T) { // P4
	tab, local := newTestTable(t, &fakeSender{})
	assert.False(t, tab.Member(local))
}

func TestRemoveNodeDoesNotTouchPendingProbes(t *testing.T) {
	sender := &fakeSender{}
	tab, local := newTestTable(t, sender)
	prefix := 80
	ids := fillBucket(t, tab, local, prefix, DefaultBucketCapacity)
	challenger := Node{ID: nodeIDAtPrefix(local, prefix, 0xFE)}
	require.NoError(t, tab.RefreshNode(challenger))
	require.Equal(t, 1, tab.PendingProbeCount())

	tab.RemoveNode(ids[0]) // remove the incumbent out from under the pending probe
	assert.Equal(t, 1, tab.PendingProbeCount(), "orphaned entry is left in place")

	var digest Digest
	digest[0] = 1
	tab.HandlePong(Pong{Digest: digest, Expiration: 5000}, nil)
	// incumbent is gone; refreshing it becomes a fresh insert, per spec.
	assert.True(t, tab.Member(ids[0]))
}
