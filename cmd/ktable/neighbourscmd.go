package main

import (
	"encoding/hex"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"gopkg.in/urfave/cli.v1"

	"github.com/g-cl/mana/kademlia"
	"github.com/g-cl/mana/transport"
	"github.com/g-cl/mana/wire"
)

var targetFlag = cli.StringFlag{
	Name:  "target",
	Usage: "Hex-encoded 64-byte public key to query neighbours for",
}

var waitFlag = cli.DurationFlag{
	Name:  "wait",
	Usage: "How long to wait for a Neighbors reply",
	Value: 2 * time.Second,
}

var neighboursCommand = cli.Command{
	Name:      "neighbours",
	Usage:     "Queries a remote node for its closest known peers",
	ArgsUsage: "<remote-addr>",
	Flags:     []cli.Flag{configFlag, targetFlag, waitFlag},
	Action:    queryNeighbours,
}

func queryNeighbours(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("need remote address as argument")
	}
	cfg, err := loadConfig(ctx.String(configFlag.Name))
	if err != nil {
		return err
	}
	key, err := crypto.LoadECDSA(cfg.KeyFile)
	if err != nil {
		return fmt.Errorf("loading key file: %w", err)
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return err
	}
	defer conn.Close()

	pk := wire.EncodePubkey(&key.PublicKey)
	local := kademlia.Node{ID: pk.ID(), PublicKey: [64]byte(pk)}
	tr := transport.Listen(conn, local, transport.Config{PrivateKey: key})
	defer tr.Close()

	remote, err := net.ResolveUDPAddr("udp", ctx.Args().Get(0))
	if err != nil {
		return fmt.Errorf("bad remote address: %w", err)
	}

	target := local.PublicKey
	if hex := ctx.String(targetFlag.Name); hex != "" {
		decoded, err := decodeHexPubkey(hex)
		if err != nil {
			return err
		}
		target = decoded
	}

	if _, err := tr.Ping(kademlia.Endpoint{IP: remote.IP, UDPPort: uint16(remote.Port)}); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	time.Sleep(100 * time.Millisecond)

	if err := tr.FindNode(kademlia.Endpoint{IP: remote.IP, UDPPort: uint16(remote.Port)}, wire.Pubkey(target)); err != nil {
		return fmt.Errorf("findnode failed: %w", err)
	}

	time.Sleep(ctx.Duration(waitFlag.Name))
	for i, n := range tr.Table().Buckets() {
		for _, node := range n {
			fmt.Printf("bucket %d: %x @ %s\n", i, node.ID, node.Endpoint.IP)
		}
	}
	return nil
}

func decodeHexPubkey(s string) ([64]byte, error) {
	var out [64]byte
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return out, err
	}
	if len(b) != 64 {
		return out, fmt.Errorf("expected 64 raw bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}
