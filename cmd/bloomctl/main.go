// Command bloomctl is a small operational CLI for driving a Bloom filter,
// distributed lock, or recency queue against a live memcache server. It
// exists to exercise pkg/store's real memcache adapter end-to-end and as a
// runnable example of this module's public API; none of its library
// packages require it.
package main

import (
	"context"
	"os"
)

func main() {
	workDir, err := os.Getwd()
	if err != nil {
		exitf("error: %v\n", err)
	}

	cfg, err := LoadConfig(workDir)
	if err != nil {
		exitf("error: %v\n", err)
	}

	os.Exit(Run(context.Background(), os.Stdout, os.Stderr, os.Args[1:], cfg))
}

func exitf(format string, args ...any) {
	printfStderr(format, args...)
	os.Exit(1)
}
