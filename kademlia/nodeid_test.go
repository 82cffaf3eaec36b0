package kademlia

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// idWithPrefixZeros returns an ID whose XOR distance to the all-zero ID
// has exactly n leading zero bits: bytes before the n/8th are zero, and
// the n/8th byte has a single 1 bit at position n%8 (from the MSB side).
func idWithPrefixZeros(n int) NodeID {
	var id NodeID
	id[n/8] = 1 << (7 - uint(n%8))
	return id
}

func TestCommonPrefixLengthIdentical(t *testing.T) {
	var a NodeID
	for i := range a {
		a[i] = byte(i)
	}
	require.Equal(t, IDBits-1, CommonPrefixLength(a, a))
}

func TestCommonPrefixLengthKnownValues(t *testing.T) {
	var a NodeID // all zero bits
	for prefix := 0; prefix < IDBits; prefix++ {
		b := idWithPrefixZeros(prefix)
		assert.Equal(t, prefix, CommonPrefixLength(a, b), "prefix=%d", prefix)
	}
}

func TestDistanceCmpOrdersByXOR(t *testing.T) {
	var target, near, far NodeID
	target[31] = 0x00
	near[31] = 0x01  // xor distance 1
	far[31] = 0xF0   // xor distance 240
	assert.Less(t, DistanceCmp(target, near, far), 0)
	assert.Greater(t, DistanceCmp(target, far, near), 0)
	assert.Equal(t, 0, DistanceCmp(target, near, near))
}

func TestXORSelfIsZero(t *testing.T) {
	var a NodeID
	for i := range a {
		a[i] = byte(i * 7)
	}
	var zero NodeID
	d := XOR(a, a)
	assert.Equal(t, 0, d.Cmp(XOR(zero, zero)))
}
