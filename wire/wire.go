// Package wire implements the UDP packet codec that carries Ping, Pong,
// FindNode and Neighbors between peers: RLP body encoding, keccak256
// framing, and secp256k1 signing/recovery. It knows nothing about bucket
// placement or eviction contests — that belongs to package kademlia.
package wire

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"net"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"github.com/g-cl/mana/kademlia"
)

// Kind identifies the packet type byte that prefixes every RLP body,
// mirroring p2p/discover/v4wire's PingPacket..NeighborsPacket constants.
type Kind byte

const (
	KindPing Kind = iota + 1
	KindPong
	KindFindNode
	KindNeighbors
)

// MaxNeighbors bounds how many Node records a single Neighbors packet may
// carry, keeping the UDP payload under typical path-MTU limits.
const MaxNeighbors = 16

type (
	// Ping announces the sender and asks the recipient to answer with a
	// matching Pong (matched by the ReplyTok it echoes back).
	Ping struct {
		From, To   Endpoint
		Expiration uint64
		Rest       []rlp.RawValue `rlp:"tail"`
	}

	// Pong answers a Ping, echoing the digest of the packet it replies to.
	Pong struct {
		To         Endpoint
		ReplyTok   []byte
		Expiration uint64
		Rest       []rlp.RawValue `rlp:"tail"`
	}

	// FindNode asks the recipient for its closest known neighbours to Target.
	FindNode struct {
		Target     Pubkey
		Expiration uint64
		Rest       []rlp.RawValue `rlp:"tail"`
	}

	// Neighbors answers a FindNode with up to MaxNeighbors candidate nodes.
	Neighbors struct {
		Nodes      []Node
		Expiration uint64
		Rest       []rlp.RawValue `rlp:"tail"`
	}
)

// Pubkey is the 64-byte uncompressed secp256k1 public key (X||Y) used to
// both identify a peer and derive its kademlia.NodeID.
type Pubkey [64]byte

// ID derives the kademlia NodeID this key maps to.
func (p Pubkey) ID() kademlia.NodeID { return kademlia.DeriveNodeID([64]byte(p)) }

// Node is a peer record as carried inside a Neighbors packet.
type Node struct {
	IP  net.IP
	UDP uint16
	TCP uint16
	ID  Pubkey
}

// Endpoint is the address half of a Ping/Pong, independent of identity.
type Endpoint struct {
	IP  net.IP
	UDP uint16
	TCP uint16
}

// ToEndpoint converts the wire representation to the domain type used by
// the routing table core.
func (e Endpoint) ToEndpoint() kademlia.Endpoint {
	return kademlia.Endpoint{IP: e.IP, UDPPort: e.UDP, TCPPort: e.TCP}
}

// NewEndpoint builds an Endpoint from a UDP source address and a
// separately-advertised TCP port.
func NewEndpoint(addr *net.UDPAddr, tcpPort uint16) Endpoint {
	ip := addr.IP
	if ip4 := ip.To4(); ip4 != nil {
		ip = ip4
	}
	return Endpoint{IP: ip, UDP: uint16(addr.Port), TCP: tcpPort}
}

// Packet is implemented by every message type this package encodes.
type Packet interface {
	Kind() byte
}

func (*Ping) Kind() byte      { return byte(KindPing) }
func (*Pong) Kind() byte      { return byte(KindPong) }
func (*FindNode) Kind() byte  { return byte(KindFindNode) }
func (*Neighbors) Kind() byte { return byte(KindNeighbors) }

const (
	macSize  = 32
	sigSize  = crypto.SignatureLength
	headSize = macSize + sigSize
)

var (
	// ErrPacketTooSmall is returned by Decode when input is shorter than
	// the mandatory mac+signature header.
	ErrPacketTooSmall = errors.New("wire: packet too small")
	// ErrBadHash is returned when the leading keccak256 MAC does not
	// match the remainder of the packet.
	ErrBadHash = errors.New("wire: bad hash")
)

var headSpace = make([]byte, headSize)

// Encode serializes req, signs it with priv, and prepends the keccak256
// MAC over the signature+body. The returned digest is the correlation
// key a Pong must echo back in ReplyTok.
func Encode(priv *ecdsa.PrivateKey, req Packet) (packet []byte, digest kademlia.Digest, err error) {
	b := new(bytes.Buffer)
	b.Write(headSpace)
	b.WriteByte(req.Kind())
	if err := rlp.Encode(b, req); err != nil {
		return nil, kademlia.Digest{}, err
	}
	packet = b.Bytes()
	sig, err := crypto.Sign(crypto.Keccak256(packet[headSize:]), priv)
	if err != nil {
		return nil, kademlia.Digest{}, err
	}
	copy(packet[macSize:], sig)
	hash := crypto.Keccak256(packet[macSize:])
	copy(packet, hash)
	copy(digest[:], hash)
	return packet, digest, nil
}

// Decode verifies the MAC, recovers the sender's public key from the
// signature, and unmarshals the RLP body into the packet type named by
// the type byte.
func Decode(input []byte) (Packet, Pubkey, kademlia.Digest, error) {
	var digest kademlia.Digest
	if len(input) < headSize+1 {
		return nil, Pubkey{}, digest, ErrPacketTooSmall
	}
	hash, sig, sigdata := input[:macSize], input[macSize:headSize], input[headSize:]
	wantHash := crypto.Keccak256(input[macSize:])
	if !bytes.Equal(hash, wantHash) {
		return nil, Pubkey{}, digest, ErrBadHash
	}
	copy(digest[:], hash)

	fromKey, err := recoverSenderKey(crypto.Keccak256(input[headSize:]), sig)
	if err != nil {
		return nil, fromKey, digest, err
	}

	var req Packet
	switch Kind(sigdata[0]) {
	case KindPing:
		req = new(Ping)
	case KindPong:
		req = new(Pong)
	case KindFindNode:
		req = new(FindNode)
	case KindNeighbors:
		req = new(Neighbors)
	default:
		return nil, fromKey, digest, fmt.Errorf("wire: unknown packet type %d", sigdata[0])
	}
	s := rlp.NewStream(bytes.NewReader(sigdata[1:]), 0)
	err = s.Decode(req)
	return req, fromKey, digest, err
}

func recoverSenderKey(hash, sig []byte) (key Pubkey, err error) {
	pubkey, err := crypto.Ecrecover(hash, sig)
	if err != nil {
		return key, err
	}
	copy(key[:], pubkey[1:])
	return key, nil
}

// EncodePubkey flattens an ECDSA public key to the wire's 64-byte X||Y form.
func EncodePubkey(key *ecdsa.PublicKey) Pubkey {
	var p Pubkey
	x := key.X.Bytes()
	y := key.Y.Bytes()
	copy(p[32-len(x):32], x)
	copy(p[64-len(y):64], y)
	return p
}

// DecodePubkey reconstructs an ECDSA public key from its wire form.
func DecodePubkey(p Pubkey) *ecdsa.PublicKey {
	pk := &ecdsa.PublicKey{Curve: crypto.S256()}
	pk.X = new(big.Int).SetBytes(p[:32])
	pk.Y = new(big.Int).SetBytes(p[32:])
	return pk
}
