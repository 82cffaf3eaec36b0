package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"gopkg.in/urfave/cli.v1"
)

var genkeyCommand = cli.Command{
	Name:      "genkey",
	Usage:     "Generates a node key file",
	ArgsUsage: "keyfile",
	Action:    genkey,
}

func genkey(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fmt.Errorf("need key file as argument")
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		return fmt.Errorf("could not generate key: %v", err)
	}
	return crypto.SaveECDSA(ctx.Args().Get(0), key)
}
