package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// fileConfig is the on-disk shape of a ktable node's configuration file,
// decoded with BurntSushi/toml the way nhbchain's own config.Load does.
type fileConfig struct {
	ListenAddress  string   `toml:"ListenAddress"`
	TCPPort        int      `toml:"TCPPort"`
	KeyFile        string   `toml:"KeyFile"`
	Bootnodes      []string `toml:"Bootnodes"`
	MetricsAddress string   `toml:"MetricsAddress"`
}

func defaultConfig() fileConfig {
	return fileConfig{
		ListenAddress:  "0.0.0.0:30303",
		TCPPort:        30303,
		KeyFile:        "node.key",
		MetricsAddress: "127.0.0.1:6060",
	}
}

func loadConfig(path string) (fileConfig, error) {
	cfg := defaultConfig()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, fmt.Errorf("config file %s not found", path)
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return fileConfig{}, err
	}
	return cfg, nil
}
