package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/brainix/bloom/pkg/bloom"
	"github.com/brainix/bloom/pkg/memlock"
	"github.com/brainix/bloom/pkg/recency"
	"github.com/brainix/bloom/pkg/store"
)

const usage = `bloomctl - drive a memcache-backed bloom filter, lock, or recency queue

Usage: bloomctl <resource> <action> [flags] [args]

Resources:
  bloom  add <value> | check <value> | clear | status | export <file>
  lock   acquire | release | status
  queue  add <value...> | check <value> | clear | status

Global flags:
  --server <addr>   memcache server address (repeatable), default from config
  --key <key>       store key, default auto-generated per resource

Resource flags:
  bloom  --n <int> --p <float>
  lock   --lease <duration> --blocking --timeout <duration>
  queue  --maxlen <int>`

func printfStderr(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format, args...)
}

// Run dispatches to the requested resource/action and returns an exit code.
func Run(ctx context.Context, out, errOut io.Writer, args []string, cfg Config) int {
	if len(args) == 0 {
		fmt.Fprintln(out, usage)
		return 0
	}

	resource := args[0]
	rest := args[1:]

	if resource == "--help" || resource == "-h" {
		fmt.Fprintln(out, usage)
		return 0
	}

	switch resource {
	case "bloom":
		return runBloom(ctx, out, errOut, rest, cfg)
	case "lock":
		return runLock(ctx, out, errOut, rest, cfg)
	case "queue":
		return runQueue(ctx, out, errOut, rest, cfg)
	default:
		fmt.Fprintf(errOut, "error: unknown resource %q\n", resource)
		fmt.Fprintln(errOut, usage)
		return 1
	}
}

func newStore(servers []string) store.Store {
	return store.NewMemcache(servers...)
}

func runBloom(ctx context.Context, out, errOut io.Writer, args []string, cfg Config) int {
	flags := flag.NewFlagSet("bloom", flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	servers := flags.StringSlice("server", cfg.Servers, "memcache server address")
	key := flags.String("key", "", "store key")
	n := flags.Int("n", cfg.N, "expected element count")
	p := flags.Float64("p", cfg.P, "target false-positive rate")

	if err := flags.Parse(args); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	action, rest := shift(flags.Args())

	f, err := bloom.New(ctx, bloom.Options{N: *n, P: *p, Store: newStore(*servers), Key: *key})
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}

	switch action {
	case "add":
		if len(rest) == 0 {
			fmt.Fprintln(errOut, "error: add requires a value")
			return 1
		}
		if err := f.Add(ctx, rest[0]); err != nil {
			fmt.Fprintln(errOut, "error:", err)
			return 1
		}
		fmt.Fprintf(out, "added %q to %s\n", rest[0], f.Key())
		return 0

	case "check":
		if len(rest) == 0 {
			fmt.Fprintln(errOut, "error: check requires a value")
			return 1
		}
		ok, err := f.Contains(rest[0])
		if err != nil {
			fmt.Fprintln(errOut, "error:", err)
			return 1
		}
		fmt.Fprintf(out, "%q: %s\n", rest[0], statusWord(ok, "present", "absent"))
		return 0

	case "clear":
		if err := f.Clear(ctx); err != nil {
			fmt.Fprintln(errOut, "error:", err)
			return 1
		}
		fmt.Fprintf(out, "cleared %s\n", f.Key())
		return 0

	case "export":
		if len(rest) == 0 {
			fmt.Fprintln(errOut, "error: export requires a file path")
			return 1
		}
		if err := exportBloomSnapshot(f, rest[0]); err != nil {
			fmt.Fprintln(errOut, "error:", err)
			return 1
		}
		fmt.Fprintf(out, "exported %s to %s\n", f.Key(), rest[0])
		return 0

	case "status", "":
		printBloomStatus(out, f.Key(), *n, f.M(), f.K(), 0, f.Len())
		return 0

	default:
		fmt.Fprintf(errOut, "error: unknown bloom action %q\n", action)
		return 1
	}
}

func runLock(ctx context.Context, out, errOut io.Writer, args []string, cfg Config) int {
	flags := flag.NewFlagSet("lock", flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	servers := flags.StringSlice("server", cfg.Servers, "memcache server address")
	key := flags.String("key", "", "store key")
	lease := flags.Duration("lease", parseDurationOrDefault(cfg.Lease, time.Second), "lease duration")
	blocking := flags.Bool("blocking", false, "block until acquired or timeout")
	timeout := flags.Duration("timeout", memlock.NoTimeout, "max wait when --blocking (negative = forever)")

	if err := flags.Parse(args); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	action, _ := shift(flags.Args())

	l := memlock.New(memlock.Options{Store: newStore(*servers), Key: *key, Lease: *lease})

	switch action {
	case "acquire":
		ok, err := l.Acquire(ctx, *blocking, *timeout)
		if err != nil {
			fmt.Fprintln(errOut, "error:", err)
			return 1
		}
		if !ok {
			fmt.Fprintln(out, "not acquired (timed out or already held)")
			return 1
		}
		fmt.Fprintf(out, "acquired %s (token %s)\n", l.Key(), l.Token())
		return 0

	case "release":
		if err := l.Release(ctx); err != nil {
			fmt.Fprintln(errOut, "error:", err)
			return 1
		}
		fmt.Fprintf(out, "released %s\n", l.Key())
		return 0

	case "status", "":
		locked, err := l.Locked(ctx)
		if err != nil {
			fmt.Fprintln(errOut, "error:", err)
			return 1
		}
		printLockStatus(out, l.Key(), l.Token(), locked, *lease)
		return 0

	default:
		fmt.Fprintf(errOut, "error: unknown lock action %q\n", action)
		return 1
	}
}

func runQueue(ctx context.Context, out, errOut io.Writer, args []string, cfg Config) int {
	flags := flag.NewFlagSet("queue", flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	servers := flags.StringSlice("server", cfg.Servers, "memcache server address")
	key := flags.String("key", "", "store key")
	maxLen := flags.Int("maxlen", recency.DefaultMaxLen, "maximum queue length")

	if err := flags.Parse(args); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}
	action, rest := shift(flags.Args())

	q, err := recency.New(ctx, recency.Options{Store: newStore(*servers), Key: *key, MaxLen: *maxLen, NoReply: true})
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}

	switch action {
	case "add":
		if len(rest) == 0 {
			fmt.Fprintln(errOut, "error: add requires at least one value")
			return 1
		}
		values := make([]any, len(rest))
		for i, v := range rest {
			values[i] = v
		}
		if err := q.Extend(ctx, values...); err != nil {
			fmt.Fprintln(errOut, "error:", err)
			return 1
		}
		fmt.Fprintf(out, "added %d value(s) to %s\n", len(rest), q.Key())
		return 0

	case "check":
		if len(rest) == 0 {
			fmt.Fprintln(errOut, "error: check requires a value")
			return 1
		}
		fmt.Fprintf(out, "%q: %s\n", rest[0], statusWord(q.Contains(rest[0]), "present", "absent"))
		return 0

	case "clear":
		if err := q.Clear(ctx); err != nil {
			fmt.Fprintln(errOut, "error:", err)
			return 1
		}
		fmt.Fprintf(out, "cleared %s\n", q.Key())
		return 0

	case "status", "":
		printQueueStatus(out, q.String(), q.Len())
		return 0

	default:
		fmt.Fprintf(errOut, "error: unknown queue action %q\n", action)
		return 1
	}
}

func shift(args []string) (string, []string) {
	if len(args) == 0 {
		return "", nil
	}
	return args[0], args[1:]
}

func parseDurationOrDefault(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
