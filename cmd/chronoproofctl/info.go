package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"

	"chronoproof/internal/attestation"
	"chronoproof/internal/proof"
)

// proofSummary is the diagnostic export shape for the cbor and yaml
// -format options: a flattened view of a proof tree's attestations,
// independent of the op tree's binary serialization.
type proofSummary struct {
	FileDigest   string              `cbor:"file_digest" yaml:"file_digest"`
	Complete     bool                `cbor:"complete" yaml:"complete"`
	Attestations []attestationRecord `cbor:"attestations" yaml:"attestations"`
}

type attestationRecord struct {
	Msg    string `cbor:"msg" yaml:"msg"`
	Class  string `cbor:"class" yaml:"class"`
	Detail string `cbor:"detail" yaml:"detail"`
}

func runInfo(args []string) {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	format := fs.String("format", "text", "output format: text, cbor, yaml")
	verbosity := fs.Int("verbosity", 1, "text format tree verbosity (0 or 1)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "chronoproofctl info - print a proof tree\n\n")
		fmt.Fprintf(os.Stderr, "Usage: chronoproofctl info [flags] <proof.ots>\n\n")
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

	df, err := readProofFile(proofPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	switch *format {
	case "text":
		fmt.Printf("file digest (%s): %x\n", df.FileHashOp, df.FileDigest)
		fmt.Print(df.Root.StrTree(*verbosity))
	case "cbor":
		data, err := cbor.Marshal(buildSummary(df.FileDigest, df.Root))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding cbor: %v\n", err)
			os.Exit(1)
		}
		os.Stdout.Write(data)
	case "yaml":
		data, err := yaml.Marshal(buildSummary(df.FileDigest, df.Root))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error encoding yaml: %v\n", err)
			os.Exit(1)
		}
		os.Stdout.Write(data)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown format %q (use text, cbor, or yaml)\n", *format)
		os.Exit(2)
	}
}

func buildSummary(fileDigest []byte, root *proof.Timestamp) proofSummary {
	summary := proofSummary{
		FileDigest: hex.EncodeToString(fileDigest),
		Complete:   root.IsComplete(),
	}
	for _, ma := range root.AllAttestations() {
		summary.Attestations = append(summary.Attestations, attestationRecord{
			Msg:    hex.EncodeToString(ma.Msg),
			Class:  attestationClassName(ma.Attestation),
			Detail: ma.Attestation.String(),
		})
	}
	return summary
}

// attestationClassName returns a short, human-readable label for an
// attestation's class, independent of its wire tag.
func attestationClassName(a attestation.Attestation) string {
	switch a.(type) {
	case attestation.Pending:
		return "pending"
	case attestation.BitcoinBlockHeader:
		return "bitcoin"
	case attestation.EthereumBlockHeader:
		return "ethereum"
	default:
		return "unknown"
	}
}
