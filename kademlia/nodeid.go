// Package kademlia implements the routing-table core of an Ethereum-style
// node discovery subsystem: bucketed peer storage indexed by XOR distance,
// eviction arbitration via a liveness probe, and neighbor selection by
// walking buckets outward from a target.
package kademlia

import (
	"math/bits"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// IDBits is the bit-width of a NodeID and therefore the number of buckets
// a RoutingTable holds with default configuration.
const IDBits = 256

// NodeID is a 256-bit node identifier, derived externally from a peer's
// public key. The core treats it as opaque apart from XOR distance and
// common-prefix-length operations.
type NodeID [32]byte

// DeriveNodeID computes the NodeID of a 64-byte uncompressed secp256k1
// public key (the keccak-256 of the public key, as in Ethereum discovery
// v4). This is the "NodeID derivation" external function of spec §6; it
// is provided here because it has no other reasonable home, not because
// the core depends on its internals.
func DeriveNodeID(pub [64]byte) NodeID {
	return NodeID(crypto.Keccak256Hash(pub[:]))
}

// Bytes returns the identifier's big-endian byte representation.
func (id NodeID) Bytes() []byte { return id[:] }

// xorInt returns XOR(a, b) as a 256-bit unsigned integer, big-endian.
func xorInt(a, b NodeID) *uint256.Int {
	var x NodeID
	for i := range a {
		x[i] = a[i] ^ b[i]
	}
	return new(uint256.Int).SetBytes32(x[:])
}

// Distance is the XOR metric between two NodeIDs, represented as a
// 256-bit unsigned integer so it can be compared the way the spec
// requires: "as big-endian unsigned 256-bit integers".
type Distance struct {
	v *uint256.Int
}

// XOR computes the XOR distance between a and b.
func XOR(a, b NodeID) Distance {
	return Distance{v: xorInt(a, b)}
}

// Cmp compares two distances the way uint256.Int.Cmp does: negative if d
// is smaller, zero if equal, positive if larger.
func (d Distance) Cmp(other Distance) int {
	return d.v.Cmp(other.v)
}

// DistanceCmp returns a total order for neighbor sorting: negative if n1
// is closer to target than n2, zero if equidistant, positive otherwise.
func DistanceCmp(target, n1, n2 NodeID) int {
	return XOR(n1, target).Cmp(XOR(n2, target))
}

// CommonPrefixLength returns the number of leading bits a and b share,
// in 0..=255. Defined as 255 when a == b, per spec §4.1 (the local node
// never reaches this case since self-IDs are rejected earlier).
func CommonPrefixLength(a, b NodeID) int {
	total := 0
	for i := range a {
		x := a[i] ^ b[i]
		if x == 0 {
			total += 8
			continue
		}
		total += bits.LeadingZeros8(x)
		break
	}
	if total >= IDBits {
		return IDBits - 1
	}
	return total
}
