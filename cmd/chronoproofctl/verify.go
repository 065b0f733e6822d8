package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"chronoproof/internal/anchor"
	"chronoproof/internal/logging"
	"chronoproof/internal/verify"
)

func runVerify(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.toml (defaults to the platform config path)")
	rpcEndpoint := fs.String("btc-rpc", "", "Bitcoin Core JSON-RPC endpoint, e.g. http://127.0.0.1:8332")
	rpcUser := fs.String("btc-rpc-user", "", "Bitcoin Core JSON-RPC username")
	rpcPass := fs.String("btc-rpc-pass", "", "Bitcoin Core JSON-RPC password")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "chronoproofctl verify - check a proof against a Bitcoin block header oracle\n\n")
		fmt.Fprintf(os.Stderr, "Usage: chronoproofctl verify [flags] <proof.ots>\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Error: proof file required\n\n")
		fs.Usage()
		os.Exit(2)
	}
	proofPath := fs.Arg(0)

	if *rpcEndpoint == "" {
		fmt.Fprintf(os.Stderr, "Error: -btc-rpc is required to verify against a Bitcoin oracle\n")
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	df, err := readProofFile(proofPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	c, closeCache, err := openCache(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer closeCache()

	rpc := &anchor.JSONRPCBitcoinClient{Endpoint: *rpcEndpoint, User: *rpcUser, Pass: *rpcPass}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTPTimeout())
	defer cancel()

	oracle := anchor.NewBitcoinOracle(ctx, rpc)

	nTime, err := verify.Timestamp(ctx, df.Root, c, oracle)

	digestHex := hex.EncodeToString(df.FileDigest)
	audit := logging.DefaultAuditLogger()
	audit.LogVerify(ctx, digestHex, err == nil)

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("digest:    %s\n", digestHex)
	fmt.Printf("verified:  true\n")
	fmt.Printf("block_time: %d\n", nTime)
}
