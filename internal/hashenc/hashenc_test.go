package hashenc

import (
	"reflect"
	"testing"
)

// Reference offsets reproduced from the specification: BloomFilter(n=100,
// p=0.01, key="dilberts") has m=960, k=7.
func Test_Offsets_Matches_Reference_Values(t *testing.T) {
	const m, k = 960, 7

	tests := []struct {
		value string
		want  []int
	}{
		{"rajiv", []int{17, 271, 669, 242, 166, 4, 536}},
		{"raj", []int{521, 491, 440, 871, 938, 682, 455}},
		{"dan", []int{61, 854, 730, 730, 475, 364, 850}},
	}

	for _, tt := range tests {
		encoded, err := Canonicalize(tt.value)
		if err != nil {
			t.Fatalf("Canonicalize(%q): %v", tt.value, err)
		}

		got := Offsets(encoded, k, m)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Offsets(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func Test_Canonicalize_Sorts_Object_Keys(t *testing.T) {
	a, err := Canonicalize(map[string]int{"b": 2, "a": 1})
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	if string(a) != `{"a":1,"b":2}` {
		t.Fatalf("Canonicalize(map) = %s, want sorted-key object", a)
	}
}

func Test_Offsets_Is_Deterministic(t *testing.T) {
	encoded, err := Canonicalize("some-value")
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}

	first := Offsets(encoded, 5, 1024)
	second := Offsets(encoded, 5, 1024)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("Offsets not deterministic: %v != %v", first, second)
	}

	for _, off := range first {
		if off < 0 || off >= 1024 {
			t.Fatalf("offset %d out of range [0, 1024)", off)
		}
	}
}
