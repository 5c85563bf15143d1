package comm

import (
	"errors"
	"testing"
)

func TestComputeDims(t *testing.T) {
	cases := []struct {
		name        string
		size        int
		constraints []int
		want        []int
	}{
		{"TwoFreeAxes", 4, []int{0, 0}, []int{2, 2}},
		{"NonSquare", 6, []int{0, 0}, []int{3, 2}},
		{"SingleAxis", 8, []int{0}, []int{8}},
		{"PinnedFirst", 8, []int{1, 0, 0}, []int{1, 4, 2}},
		{"PinnedMiddle", 12, []int{0, 2, 0}, []int{3, 2, 2}},
		{"AllPinned", 6, []int{2, 3}, []int{2, 3}},
		{"Prime", 7, []int{0, 0}, []int{7, 1}},
		{"OneProcess", 1, []int{0, 0, 0}, []int{1, 1, 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dims, err := ComputeDims(tc.size, tc.constraints)
			if err != nil {
				t.Fatalf("ComputeDims(%d, %v) failed: %v", tc.size, tc.constraints, err)
			}
			prod := 1
			for _, d := range dims {
				prod *= d
			}
			if prod != tc.size {
				t.Errorf("dims %v hold %d processes, want %d", dims, prod, tc.size)
			}
			for i := range dims {
				if dims[i] != tc.want[i] {
					t.Errorf("ComputeDims(%d, %v) = %v, want %v", tc.size, tc.constraints, dims, tc.want)
					break
				}
			}
		})
	}
}

func TestComputeDims_Errors(t *testing.T) {
	cases := []struct {
		name        string
		size        int
		constraints []int
	}{
		{"PinnedNotDivisor", 10, []int{3, 0}},
		{"LeftoverNoFreeAxis", 6, []int{2, 2}},
		{"NegativeConstraint", 4, []int{-1, 0}},
		{"ZeroSize", 0, []int{0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ComputeDims(tc.size, tc.constraints)
			if !errors.Is(err, ErrTopology) {
				t.Errorf("ComputeDims(%d, %v) error = %v, want ErrTopology", tc.size, tc.constraints, err)
			}
		})
	}
}

func TestCartTopology_CoordsRankRoundTrip(t *testing.T) {
	topo, err := NewCartTopology([]int{3, 2, 4})
	if err != nil {
		t.Fatalf("NewCartTopology failed: %v", err)
	}
	if topo.Size() != 24 {
		t.Fatalf("Size() = %d, want 24", topo.Size())
	}
	for r := 0; r < topo.Size(); r++ {
		coords := topo.Coords(r)
		if got := topo.Rank(coords); got != r {
			t.Errorf("Rank(Coords(%d)) = %d", r, got)
		}
	}
	// Row-major: the last axis varies fastest.
	if c := topo.Coords(1); c[2] != 1 || c[0] != 0 || c[1] != 0 {
		t.Errorf("Coords(1) = %v, want [0 0 1]", c)
	}
}

func TestCartTopology_PeriodicShift(t *testing.T) {
	topo, err := NewCartTopology([]int{4})
	if err != nil {
		t.Fatalf("NewCartTopology failed: %v", err)
	}
	prev, next := topo.Shift(0, 0)
	if prev != 3 || next != 1 {
		t.Errorf("Shift(0) = (%d, %d), want (3, 1)", prev, next)
	}
	prev, next = topo.Shift(3, 0)
	if prev != 2 || next != 0 {
		t.Errorf("Shift(3) = (%d, %d), want (2, 0)", prev, next)
	}

	// A single-process axis is its own neighbor.
	topo1, _ := NewCartTopology([]int{1})
	prev, next = topo1.Shift(0, 0)
	if prev != 0 || next != 0 {
		t.Errorf("Shift on 1-process axis = (%d, %d), want (0, 0)", prev, next)
	}
}
