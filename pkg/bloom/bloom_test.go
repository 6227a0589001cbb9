package bloom

import (
	"context"
	"errors"
	"testing"

	"github.com/brainix/bloom/pkg/store"
)

func Test_Size_Matches_Reference_Table(t *testing.T) {
	tests := []struct {
		n    int
		p    float64
		m, k int
	}{
		{100, 0.1, 480, 3},
		{100, 0.01, 960, 7},
		{1000, 0.1, 4800, 3},
		{1000, 0.01, 9592, 7},
	}

	for _, tt := range tests {
		gotM, gotK := size(tt.n, tt.p)
		if gotM != tt.m || gotK != tt.k {
			t.Errorf("size(%d, %v) = (%d, %d), want (%d, %d)", tt.n, tt.p, gotM, gotK, tt.m, tt.k)
		}
	}
}

func Test_New_Seeds_AllZero_When_Absent(t *testing.T) {
	ctx := context.Background()
	f, err := New(ctx, Options{N: 100, P: 0.01, Store: store.NewFake(), Key: "bloom:test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if f.m != 960 || f.k != 7 {
		t.Fatalf("m,k = %d,%d, want 960,7", f.m, f.k)
	}
	ok, err := f.Contains("rajiv")
	if err != nil {
		t.Fatalf("Contains: %v", err)
	}
	if ok {
		t.Fatalf("Contains(rajiv) = true on fresh filter, want false")
	}
}

func Test_Filter_Add_Then_Contains(t *testing.T) {
	ctx := context.Background()
	f, err := New(ctx, Options{N: 100, P: 0.01, Store: store.NewFake(), Key: "bloom:test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := f.Add(ctx, "rajiv"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	ok, err := f.Contains("rajiv")
	if err != nil || !ok {
		t.Fatalf("Contains(rajiv) = %v, %v, want true, nil", ok, err)
	}

	ok, err = f.Contains("someone-else")
	if err != nil {
		t.Fatalf("Contains: %v", err)
	}
	if ok {
		t.Fatalf("Contains(someone-else) = true, want false (not added)")
	}
}

func Test_Filter_Update_Inserts_Many_Values(t *testing.T) {
	ctx := context.Background()
	f, err := New(ctx, Options{N: 100, P: 0.01, Store: store.NewFake(), Key: "bloom:test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := f.Update(ctx, "rajiv", "raj", "dan"); err != nil {
		t.Fatalf("Update: %v", err)
	}

	for _, v := range []string{"rajiv", "raj", "dan"} {
		ok, err := f.Contains(v)
		if err != nil || !ok {
			t.Fatalf("Contains(%q) = %v, %v, want true, nil", v, ok, err)
		}
	}
}

func Test_Filter_Clear_Resets_All_Bits(t *testing.T) {
	ctx := context.Background()
	f, err := New(ctx, Options{N: 100, P: 0.01, Store: store.NewFake(), Key: "bloom:test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := f.Add(ctx, "rajiv"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := f.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	ok, err := f.Contains("rajiv")
	if err != nil {
		t.Fatalf("Contains: %v", err)
	}
	if ok {
		t.Fatalf("Contains(rajiv) = true after Clear, want false")
	}
}

func Test_Filter_Initial_Elements_Applied_At_Construction(t *testing.T) {
	ctx := context.Background()
	f, err := New(ctx, Options{
		N:       100,
		P:       0.01,
		Store:   store.NewFake(),
		Key:     "bloom:test",
		Initial: []any{"rajiv", "raj"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, v := range []string{"rajiv", "raj"} {
		ok, err := f.Contains(v)
		if err != nil || !ok {
			t.Fatalf("Contains(%q) = %v, %v, want true, nil", v, ok, err)
		}
	}
}

func Test_Filter_Len_Estimates_Zero_On_Empty_Filter(t *testing.T) {
	ctx := context.Background()
	f, err := New(ctx, Options{N: 100, P: 0.01, Store: store.NewFake(), Key: "bloom:test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := f.Len(); got != 0 {
		t.Fatalf("Len() = %d, want 0", got)
	}
}

func Test_Filter_Len_Estimates_Nonzero_After_Inserts(t *testing.T) {
	ctx := context.Background()
	f, err := New(ctx, Options{N: 100, P: 0.01, Store: store.NewFake(), Key: "bloom:test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := f.Update(ctx, "rajiv", "raj", "dan"); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got := f.Len()
	if got < 1 || got > 10 {
		t.Fatalf("Len() = %d, want a small positive estimate after 3 inserts", got)
	}
}

// Two independent Filter instances sharing a store and key converge to the
// union of their writes: b's write lands first (advancing the store's CAS
// version), and a's subsequent Add reloads the current bytes and token
// before its CAS, so a's bit-union is applied on top of b's base rather
// than clobbering it.
func Test_Filter_Two_Instances_Converge_On_Shared_Key(t *testing.T) {
	ctx := context.Background()
	shared := store.NewFake()

	a, err := New(ctx, Options{N: 100, P: 0.01, Store: shared, Key: "bloom:shared"})
	if err != nil {
		t.Fatalf("New a: %v", err)
	}
	b, err := New(ctx, Options{N: 100, P: 0.01, Store: shared, Key: "bloom:shared"})
	if err != nil {
		t.Fatalf("New b: %v", err)
	}

	if err := b.Add(ctx, "dan"); err != nil {
		t.Fatalf("b.Add: %v", err)
	}
	// a's local bits were loaded before b's write landed; its Add must
	// succeed against the reloaded base rather than erroring out.
	if err := a.Add(ctx, "rajiv"); err != nil {
		t.Fatalf("a.Add: %v", err)
	}

	for _, v := range []string{"rajiv", "dan"} {
		ok, err := a.Contains(v)
		if err != nil || !ok {
			t.Fatalf("a.Contains(%q) = %v, %v, want true, nil", v, ok, err)
		}
	}

	c, err := New(ctx, Options{N: 100, P: 0.01, Store: shared, Key: "bloom:shared"})
	if err != nil {
		t.Fatalf("New c: %v", err)
	}
	for _, v := range []string{"rajiv", "dan"} {
		ok, err := c.Contains(v)
		if err != nil || !ok {
			t.Fatalf("c.Contains(%q) = %v, %v, want true, nil (fresh load should see the merged union)", v, ok, err)
		}
	}
}

func Test_Filter_Close_Deletes_AutoGenerated_Key(t *testing.T) {
	ctx := context.Background()
	fake := store.NewFake()
	f, err := New(ctx, Options{N: 100, P: 0.01, Store: fake})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	key := f.Key()

	if err := f.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	_, ok, err := fake.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatalf("key %q still present after Close", key)
	}
}

func Test_Filter_Close_Preserves_Caller_Provided_Key(t *testing.T) {
	ctx := context.Background()
	fake := store.NewFake()
	f, err := New(ctx, Options{N: 100, P: 0.01, Store: fake, Key: "dilberts"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := f.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	_, ok, err := fake.Get(ctx, "dilberts")
	if err != nil || !ok {
		t.Fatalf("key removed despite being caller-provided: ok=%v err=%v", ok, err)
	}
}

func Test_New_Rejects_Invalid_Parameters(t *testing.T) {
	ctx := context.Background()
	if _, err := New(ctx, Options{N: 0, P: 2}); err == nil {
		t.Fatalf("New with p=2 should have errored")
	}
	if _, err := New(ctx, Options{N: -1}); err == nil {
		t.Fatalf("New with n=-1 should have errored")
	}
}

func Test_String_Format(t *testing.T) {
	ctx := context.Background()
	f, err := New(ctx, Options{Store: store.NewFake(), Key: "bloom:display"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	want := "<BloomFilter key=bloom:display>"
	if got := f.String(); got != want {
		t.Fatalf("String() = %q, want %q", got, want)
	}
}

func Test_Filter_Update_Error_Wraps_ErrConcurrentModification_On_Exhaustion(t *testing.T) {
	ctx := context.Background()
	fake := store.NewFake()
	f, err := New(ctx, Options{N: 100, P: 0.01, Store: fake, Key: "bloom:test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	flaky := &alwaysConflictStore{Store: fake}
	f.store = flaky

	err = f.Add(ctx, "rajiv")
	if !errors.Is(err, ErrConcurrentModification) {
		t.Fatalf("Add error = %v, want wrapping ErrConcurrentModification", err)
	}
	var bloomErr *Error
	if !errors.As(err, &bloomErr) {
		t.Fatalf("Add error does not unwrap to *Error")
	}
	if !bloomErr.Retriable {
		t.Fatalf("Retriable = false, want true")
	}
}

type alwaysConflictStore struct {
	store.Store
}

func (s *alwaysConflictStore) CompareAndSwap(ctx context.Context, key string, value []byte, token store.CASToken) (bool, error) {
	return false, nil
}
