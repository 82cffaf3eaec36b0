package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/urfave/cli.v1"

	"github.com/g-cl/mana/kademlia"
	"github.com/g-cl/mana/transport"
	"github.com/g-cl/mana/wire"
)

var configFlag = cli.StringFlag{
	Name:  "config",
	Usage: "Path to the node's TOML config file",
	Value: "ktable.toml",
}

var runCommand = cli.Command{
	Name:   "run",
	Usage:  "Runs a routing-table node",
	Flags:  []cli.Flag{configFlag},
	Action: run,
}

func run(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx.String(configFlag.Name))
	if err != nil {
		return err
	}

	key, err := crypto.LoadECDSA(cfg.KeyFile)
	if err != nil {
		return fmt.Errorf("loading key file: %w", err)
	}

	addr, err := net.ResolveUDPAddr("udp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("resolving listen address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("listening: %w", err)
	}

	pk := wire.EncodePubkey(&key.PublicKey)
	local := kademlia.Node{ID: pk.ID(), PublicKey: [64]byte(pk)}

	logger := log.Root()
	metrics := kademlia.DefaultMetrics()
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Warn("metrics already registered", "err", err)
	}

	tr := transport.Listen(conn, local, transport.Config{
		PrivateKey: key,
		TCPPort:    uint16(cfg.TCPPort),
		Log:        logger,
		Metrics:    metrics,
	})
	defer tr.Close()

	if err := bootstrap(tr, cfg.Bootnodes); err != nil {
		logger.Warn("bootstrap dial failed", "err", err)
	}

	if cfg.MetricsAddress != "" {
		go serveMetrics(cfg.MetricsAddress, logger)
	}

	logger.Info("routing table node listening", "addr", conn.LocalAddr(), "id", local.ID)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt)
	<-sigc
	return nil
}

func bootstrap(tr *transport.UDPTransport, bootnodes []string) error {
	for _, addr := range bootnodes {
		udpAddr, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			return fmt.Errorf("bad bootnode address %q: %w", addr, err)
		}
		if _, err := tr.Ping(kademlia.Endpoint{IP: udpAddr.IP, UDPPort: uint16(udpAddr.Port)}); err != nil {
			return fmt.Errorf("pinging bootnode %q: %w", addr, err)
		}
	}
	return nil
}

func serveMetrics(addr string, logger log.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", "err", err)
	}
}
