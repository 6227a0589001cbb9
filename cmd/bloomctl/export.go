package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/natefinch/atomic"

	"github.com/brainix/bloom/pkg/bloom"
)

// bloomSnapshot is the on-disk representation written by "bloomctl bloom
// export".
type bloomSnapshot struct {
	Key       string `json:"key"`
	N         int    `json:"n"`
	M         int    `json:"m"`
	K         int    `json:"k"`
	ApproxLen int    `json:"approx_len"`
	Bits      []byte `json:"bits"` // base64 via encoding/json's []byte handling
}

// exportBloomSnapshot writes f's current local state to path as JSON, using
// an atomic rename so a reader never observes a partially written file.
func exportBloomSnapshot(f *bloom.Filter, path string) error {
	snapshot := bloomSnapshot{
		Key:       f.Key(),
		N:         f.N(),
		M:         f.M(),
		K:         f.K(),
		ApproxLen: f.Len(),
		Bits:      f.Bits(),
	}

	encoded, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	if err := atomic.WriteFile(path, bytes.NewReader(encoded)); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
