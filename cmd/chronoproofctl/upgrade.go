package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"chronoproof/internal/calendar"
	"chronoproof/internal/logging"
	"chronoproof/internal/upgrade"
)

func runUpgrade(args []string) {
	fs := flag.NewFlagSet("upgrade", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.toml (defaults to the platform config path)")
	wait := fs.Bool("wait", false, "keep polling until the proof is complete or the context is cancelled")
	waitInterval := fs.Duration("wait-interval", 0, "sleep between polling passes when -wait is set (0 = use config)")
	calendarsFlag := fs.String("calendars", "", "comma-separated calendar URLs that override every attestation's own URI")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "chronoproofctl upgrade - poll calendars and merge new attestations into a proof\n\n")
		fmt.Fprintf(os.Stderr, "Usage: chronoproofctl upgrade [flags] <proof.ots>\n\n")
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

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating directories: %v\n", err)
		os.Exit(1)
	}

	df, err := readProofFile(proofPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	whitelistURLs := cfg.WhitelistURLs
	wl, err := calendar.NewWhitelist(whitelistURLs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building whitelist: %v\n", err)
		os.Exit(1)
	}

	c, closeCache, err := openCache(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer closeCache()

	eng := upgrade.New(c, wl, logging.Default().Logger)

	interval := *waitInterval
	if interval <= 0 {
		interval = cfg.UpgradeWaitInterval()
	}
	opts := upgrade.Options{
		CalendarURLs: splitList(*calendarsFlag),
		Wait:         *wait || cfg.UpgradeWait,
		WaitInterval: interval,
	}

	ctx := context.Background()
	changed, err := eng.Run(ctx, df.Root, opts)

	digestHex := hex.EncodeToString(df.FileDigest)
	audit := logging.DefaultAuditLogger()
	audit.LogUpgrade(ctx, digestHex, changed)

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if changed {
		if err := writeProofFile(proofPath, df); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing proof: %v\n", err)
			os.Exit(1)
		}
	}

	complete := df.Root.IsComplete()
	fmt.Printf("digest:   %s\n", digestHex)
	fmt.Printf("changed:  %v\n", changed)
	fmt.Printf("complete: %v\n", complete)
	if !complete {
		os.Exit(3)
	}
}
