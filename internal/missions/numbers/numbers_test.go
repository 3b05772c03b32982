package numbers

import (
	"context"
	"testing"
)

func TestSourceYieldsRange(t *testing.T) {
	testCases := []struct {
		name   string
		count  int
		expect []int
	}{
		{name: "three numbers", count: 3, expect: []int{0, 1, 2}},
		{name: "empty", count: 0, expect: nil},
		{name: "negative count is empty", count: -4, expect: nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			src := NewSource(tc.count)
			var got []int
			for {
				n, ok, err := src.GetNext(context.Background())
				if err != nil {
					t.Fatalf("GetNext failed: %v", err)
				}
				if !ok {
					break
				}
				got = append(got, n)
			}
			if len(got) != len(tc.expect) {
				t.Fatalf("Expected %v, got %v", tc.expect, got)
			}
			for i := range got {
				if got[i] != tc.expect[i] {
					t.Errorf("Expected %v, got %v", tc.expect, got)
				}
			}

			expected, err := src.ComputeExpectedCount(context.Background())
			if err != nil || expected != len(tc.expect) {
				t.Errorf("Expected count %d, got %d (%v)", len(tc.expect), expected, err)
			}
		})
	}
}

func TestSourceHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok, err := NewSource(5).GetNext(ctx); ok || err == nil {
		t.Errorf("Expected a cancelled context to stop the source")
	}
}
