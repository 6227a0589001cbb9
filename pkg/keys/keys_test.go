package keys

import (
	"strings"
	"testing"
)

func Test_New_Has_Prefix_And_Fixed_Length_Suffix(t *testing.T) {
	k := New(BloomPrefix)

	if !strings.HasPrefix(k, BloomPrefix) {
		t.Fatalf("New(%q) = %q, want prefix %q", BloomPrefix, k, BloomPrefix)
	}

	suffix := strings.TrimPrefix(k, BloomPrefix)
	if len(suffix) != suffixLen {
		t.Fatalf("suffix length = %d, want %d", len(suffix), suffixLen)
	}

	for _, r := range suffix {
		if !strings.ContainsRune(alphabet, r) {
			t.Fatalf("suffix %q contains out-of-alphabet rune %q", suffix, r)
		}
	}
}

func Test_New_Is_Unique_Across_Calls(t *testing.T) {
	seen := make(map[string]bool)
	for range 1000 {
		k := New(MemlockPrefix)
		if seen[k] {
			t.Fatalf("New(%q) produced a duplicate key: %q", MemlockPrefix, k)
		}
		seen[k] = true
	}
}

func Test_HasPrefix(t *testing.T) {
	tests := []struct {
		key, prefix string
		want        bool
	}{
		{"bloom:abc123", BloomPrefix, true},
		{"dilberts", BloomPrefix, false},
		{"tmp:memlock:xyz", MemlockPrefix, true},
		{"tmp:consumed:xyz", MemlockPrefix, false},
	}

	for _, tt := range tests {
		if got := HasPrefix(tt.key, tt.prefix); got != tt.want {
			t.Errorf("HasPrefix(%q, %q) = %v, want %v", tt.key, tt.prefix, got, tt.want)
		}
	}
}
