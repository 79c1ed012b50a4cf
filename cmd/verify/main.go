// Command verify is the standalone bundle verifier of spec.md §6: given
// only a bundle file, it recomputes every hash, signature, chain link,
// and Merkle proof without contacting the issuing ledger, and reports
// VERIFIED, TAMPERED, INCOMPLETE, or INVALID_FORMAT via a contractual
// exit code.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/tedy97123/accountabiltyme/internal/bundle"
)

func main() {
	verbose := flag.Bool("verbose", false, "print a step-by-step check log")
	asJSON := flag.Bool("json", false, "print a machine-readable JSON report")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [--verbose] [--json] <bundle.json>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(3)
	}
	path := flag.Arg(0)

	report, err := bundle.Verify(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "verify: %v\n", err)
		os.Exit(3)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
	} else {
		fmt.Printf("result: %s\n", report.Result)
		if *verbose {
			for _, p := range report.Passed {
				fmt.Printf("  PASS %s\n", p)
			}
			for _, w := range report.Warnings {
				fmt.Printf("  WARN %s\n", w)
			}
			for _, f := range report.Failed {
				fmt.Printf("  FAIL %s\n", f)
			}
		} else if len(report.Failed) > 0 {
			for _, f := range report.Failed {
				fmt.Printf("  FAIL %s\n", f)
			}
		}
	}

	os.Exit(bundle.ExitCode(report.Result))
}
