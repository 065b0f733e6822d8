package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"time"

	"golang.org/x/time/rate"

	"chronoproof/internal/calendar"
	"chronoproof/internal/detachedfile"
	"chronoproof/internal/fanout"
	"chronoproof/internal/logging"
	"chronoproof/internal/ops"
)

func runStamp(args []string) {
	fs := flag.NewFlagSet("stamp", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config.toml (defaults to the platform config path)")
	calendarsFlag := fs.String("calendars", "", "comma-separated calendar URLs (defaults to config calendar_urls)")
	minSuccess := fs.Int("min-success", 0, "number of successful calendar submissions required (0 = use config)")
	total := fs.Int("total", 0, "number of calendars to submit to (0 = use config, or len(calendars))")
	budget := fs.Duration("budget", 0, "wall-clock budget for the submission fan-out (0 = use config)")
	output := fs.String("o", "", "output proof file path (default: <file>.ots)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "chronoproofctl stamp - create a detached timestamp proof for a file\n\n")
		fmt.Fprintf(os.Stderr, "Usage: chronoproofctl stamp [flags] <file>\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Error: file required\n\n")
		fs.Usage()
		os.Exit(2)
	}
	inputFile := fs.Arg(0)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating directories: %v\n", err)
		os.Exit(1)
	}

	calendars := splitList(*calendarsFlag)
	if len(calendars) == 0 {
		calendars = cfg.CalendarURLs
	}
	if len(calendars) == 0 {
		fmt.Fprintf(os.Stderr, "Error: no calendar URLs configured\n")
		os.Exit(1)
	}

	n := *total
	if n <= 0 {
		n = cfg.SubmitTotal
	}
	if n <= 0 || n > len(calendars) {
		n = len(calendars)
	}
	m := *minSuccess
	if m <= 0 {
		m = cfg.SubmitMinSuccess
	}
	if m > n {
		m = n
	}
	b := *budget
	if b <= 0 {
		b = cfg.SubmitBudget()
	}

	fileBytes, err := os.ReadFile(inputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", inputFile, err)
		os.Exit(1)
	}

	df, err := detachedfile.New(ops.SHA256(), fileBytes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building proof: %v\n", err)
		os.Exit(1)
	}
	digestHex := hex.EncodeToString(df.FileDigest)

	ctx, cancel := context.WithTimeout(context.Background(), b+cfg.HTTPTimeout())
	defer cancel()

	var limiter *rate.Limiter
	if cfg.SubmitRateLimitPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.SubmitRateLimitPerSecond), n)
	}

	client := calendar.New("")
	results := client.SubmitAll(ctx, df.FileDigest, calendars[:n], limiter)
	collected := fanout.Collect(ctx, results, m, b)

	audit := logging.DefaultAuditLogger()
	succeeded := 0
	for _, r := range collected {
		ok := r.Err == nil && r.Timestamp != nil
		audit.LogCalendarSubmit(logging.ContextWithRequestID(ctx, r.CorrelationID.String()), r.CalendarURL, ok, r.Err)
		if !ok {
			fmt.Fprintf(os.Stderr, "calendar %s: %v\n", r.CalendarURL, r.Err)
			continue
		}
		if err := df.Root.Merge(r.Timestamp); err != nil {
			fmt.Fprintf(os.Stderr, "calendar %s: merge failed: %v\n", r.CalendarURL, err)
			continue
		}
		succeeded++
	}

	if succeeded < m {
		audit.LogStamp(ctx, digestHex, false)
		fmt.Fprintf(os.Stderr, "Error: only %d/%d calendar submissions succeeded (need %d)\n", succeeded, n, m)
		os.Exit(1)
	}

	outPath := *output
	if outPath == "" {
		outPath = inputFile + ".ots"
	}
	if err := writeProofFile(outPath, df); err != nil {
		audit.LogStamp(ctx, digestHex, false)
		fmt.Fprintf(os.Stderr, "Error writing proof: %v\n", err)
		os.Exit(1)
	}

	audit.LogStamp(ctx, digestHex, true)
	fmt.Printf("digest: %s\n", digestHex)
	fmt.Printf("proof:  %s (%d/%d calendars, submitted %s)\n", outPath, succeeded, n, time.Now().UTC().Format(time.RFC3339))
}
