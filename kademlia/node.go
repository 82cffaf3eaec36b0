package kademlia

import "net"

// Endpoint is an opaque (to the core) network address: an IP, a UDP
// port, and an optional TCP port. A zero TCPPort means "unknown".
type Endpoint struct {
	IP      net.IP
	UDPPort uint16
	TCPPort uint16
}

// Node is a peer known to the routing table. Two Nodes are "the same
// peer" iff their ID fields are equal; PublicKey and Endpoint may differ
// across sightings, and the table adopts the newer record on refresh.
type Node struct {
	ID        NodeID
	PublicKey [64]byte
	Endpoint  Endpoint
}

// sameID reports whether n and other identify the same peer.
func (n Node) sameID(other Node) bool { return n.ID == other.ID }
