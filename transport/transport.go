// Package transport drives a kademlia.RoutingTable from a live UDP
// socket: it sends Ping/FindNode packets, and its read loop turns
// incoming Pong/Ping/FindNode packets into the corresponding
// RoutingTable calls.
package transport

import (
	"crypto/ecdsa"
	"net"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/g-cl/mana/kademlia"
	"github.com/g-cl/mana/wire"
)

// UDPConn is the subset of *net.UDPConn the transport needs, factored out
// for tests.
type UDPConn interface {
	ReadFromUDP(b []byte) (n int, addr *net.UDPAddr, err error)
	WriteToUDP(b []byte, addr *net.UDPAddr) (n int, err error)
	Close() error
	LocalAddr() net.Addr
}

// Config configures a UDPTransport.
type Config struct {
	PrivateKey     *ecdsa.PrivateKey
	TCPPort        uint16
	ExpirySweep    time.Duration
	PacketLifetime time.Duration
	Log            log.Logger
	Metrics        *kademlia.Metrics
}

func (cfg Config) withDefaults() Config {
	if cfg.ExpirySweep == 0 {
		cfg.ExpirySweep = kademlia.DefaultProbeTimeout
	}
	if cfg.PacketLifetime == 0 {
		cfg.PacketLifetime = 20 * time.Second
	}
	if cfg.Log == nil {
		cfg.Log = log.Root()
	}
	return cfg
}

// UDPTransport implements kademlia.Sender over a real UDP socket and owns
// the read loop that feeds incoming packets back into a RoutingTable.
type UDPTransport struct {
	conn  UDPConn
	cfg   Config
	table *kademlia.Guarded

	closing chan struct{}
}

// Listen wraps conn, constructs its RoutingTable, and starts the read
// and expiry-sweep loops in background goroutines. Callers must call
// Close to stop them.
func Listen(conn UDPConn, local kademlia.Node, cfg Config) *UDPTransport {
	cfg = cfg.withDefaults()
	t := &UDPTransport{conn: conn, cfg: cfg, closing: make(chan struct{})}
	t.table = kademlia.NewGuarded(kademlia.NewRoutingTable(local, t, kademlia.Config{Log: cfg.Log, Metrics: cfg.Metrics}))

	go t.readLoop()
	go t.expiryLoop()
	return t
}

// Table returns the mutex-guarded routing table this transport drives.
func (t *UDPTransport) Table() *kademlia.Guarded { return t.table }

// Close stops the background loops and closes the socket.
func (t *UDPTransport) Close() error {
	close(t.closing)
	return t.conn.Close()
}

// Ping implements kademlia.Sender: it sends a Ping packet to dest and
// returns the digest the matching Pong must echo.
func (t *UDPTransport) Ping(dest kademlia.Endpoint) (kademlia.Digest, error) {
	pkt := &wire.Ping{
		To:         wire.Endpoint{IP: dest.IP, UDP: dest.UDPPort, TCP: dest.TCPPort},
		Expiration: t.expirationDeadline(),
	}
	packet, digest, err := wire.Encode(t.cfg.PrivateKey, pkt)
	if err != nil {
		return kademlia.Digest{}, err
	}
	_, err = t.conn.WriteToUDP(packet, &net.UDPAddr{IP: dest.IP, Port: int(dest.UDPPort)})
	return digest, err
}

// FindNode sends a FindNode query for target to dest.
func (t *UDPTransport) FindNode(dest kademlia.Endpoint, target wire.Pubkey) error {
	pkt := &wire.FindNode{Target: target, Expiration: t.expirationDeadline()}
	packet, _, err := wire.Encode(t.cfg.PrivateKey, pkt)
	if err != nil {
		return err
	}
	_, err = t.conn.WriteToUDP(packet, &net.UDPAddr{IP: dest.IP, Port: int(dest.UDPPort)})
	return err
}

func (t *UDPTransport) expirationDeadline() uint64 {
	return uint64(time.Now().Add(t.cfg.PacketLifetime).Unix())
}

func (t *UDPTransport) readLoop() {
	buf := make([]byte, 2048)
	for {
		n, addr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-t.closing:
				return
			default:
				t.cfg.Log.Debug("udp read failed", "err", err)
				continue
			}
		}
		t.handlePacket(buf[:n], addr)
	}
}

func (t *UDPTransport) handlePacket(raw []byte, addr *net.UDPAddr) {
	pkt, fromKey, digest, err := wire.Decode(raw)
	if err != nil {
		t.cfg.Log.Debug("dropping malformed packet", "addr", addr, "err", err)
		return
	}

	switch p := pkt.(type) {
	case *wire.Ping:
		t.handlePing(p, fromKey, digest, addr)
	case *wire.Pong:
		t.handlePong(p, fromKey, addr)
	case *wire.FindNode:
		t.handleFindNode(p, addr)
	case *wire.Neighbors:
		t.handleNeighbors(p)
	}
}

func (t *UDPTransport) handlePing(p *wire.Ping, fromKey wire.Pubkey, digest kademlia.Digest, addr *net.UDPAddr) {
	reply := &wire.Pong{
		To:         wire.NewEndpoint(addr, t.cfg.TCPPort),
		ReplyTok:   digest[:],
		Expiration: t.expirationDeadline(),
	}
	packet, _, err := wire.Encode(t.cfg.PrivateKey, reply)
	if err != nil {
		t.cfg.Log.Debug("pong encode failed", "err", err)
		return
	}
	if _, err := t.conn.WriteToUDP(packet, addr); err != nil {
		t.cfg.Log.Debug("pong send failed", "err", err)
		return
	}

	node := kademlia.Node{
		ID:        fromKey.ID(),
		PublicKey: [64]byte(fromKey),
		Endpoint:  kademlia.Endpoint{IP: addr.IP, UDPPort: uint16(addr.Port), TCPPort: p.From.TCP},
	}
	if err := t.table.RefreshNode(node); err != nil {
		t.cfg.Log.Debug("refresh from ping failed", "id", node.ID, "err", err)
	}
}

func (t *UDPTransport) handlePong(p *wire.Pong, fromKey wire.Pubkey, addr *net.UDPAddr) {
	var digest kademlia.Digest
	copy(digest[:], p.ReplyTok)
	t.table.HandlePong(kademlia.Pong{Digest: digest, Expiration: int64(p.Expiration)}, &kademlia.PongContext{
		PublicKey: [64]byte(fromKey),
		Endpoint:  kademlia.Endpoint{IP: addr.IP, UDPPort: uint16(addr.Port)},
	})
}

func (t *UDPTransport) handleFindNode(p *wire.FindNode, addr *net.UDPAddr) {
	closest := t.table.Neighbours(p.Target.ID())
	reply := &wire.Neighbors{Expiration: t.expirationDeadline()}
	for _, n := range closest {
		if len(reply.Nodes) >= wire.MaxNeighbors {
			break
		}
		reply.Nodes = append(reply.Nodes, wire.Node{
			IP:  n.Endpoint.IP,
			UDP: n.Endpoint.UDPPort,
			TCP: n.Endpoint.TCPPort,
			ID:  wire.Pubkey(n.PublicKey),
		})
	}
	packet, _, err := wire.Encode(t.cfg.PrivateKey, reply)
	if err != nil {
		t.cfg.Log.Debug("neighbors encode failed", "err", err)
		return
	}
	if _, err := t.conn.WriteToUDP(packet, addr); err != nil {
		t.cfg.Log.Debug("neighbors send failed", "err", err)
	}
}

func (t *UDPTransport) handleNeighbors(p *wire.Neighbors) {
	for _, n := range p.Nodes {
		node := kademlia.Node{
			ID:        n.ID.ID(),
			PublicKey: [64]byte(n.ID),
			Endpoint:  kademlia.Endpoint{IP: n.IP, UDPPort: n.UDP, TCPPort: n.TCP},
		}
		if err := t.table.RefreshNode(node); err != nil {
			t.cfg.Log.Debug("refresh from neighbors failed", "id", node.ID, "err", err)
		}
	}
}

func (t *UDPTransport) expiryLoop() {
	ticker := time.NewTicker(t.cfg.ExpirySweep)
	defer ticker.Stop()
	for {
		select {
		case <-t.closing:
			return
		case <-ticker.C:
			t.table.ExpireProbes(time.Now().Unix())
		}
	}
}
