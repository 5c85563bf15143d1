package decomp

import (
	"testing"

	"github.com/notargets/gopencil/comm"
)

func mustTopo(t *testing.T, dims []int) *comm.CartTopology {
	t.Helper()
	topo, err := comm.NewCartTopology(dims)
	if err != nil {
		t.Fatalf("NewCartTopology(%v) failed: %v", dims, err)
	}
	return topo
}

// Every global index is owned by exactly one rank, in order, regardless of
// how the remainder falls.
func TestSubdomain_PartitionInvariant(t *testing.T) {
	cases := []struct {
		name    string
		nGlobal []int
		dims    []int
	}{
		{"Even2D", []int{64, 64}, []int{4, 2}},
		{"Odd2D", []int{64, 65}, []int{2, 4}},
		{"Odd3D", []int{64, 64, 63}, []int{1, 4, 2}},
		{"AllOdd3D", []int{65, 64, 63}, []int{3, 2, 2}},
		{"MoreProcsThanRemainder", []int{10}, []int{3}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			topo := mustTopo(t, tc.dims)
			for axis := range tc.nGlobal {
				covered := 0
				for coord := 0; coord < tc.dims[axis]; coord++ {
					coords := make([]int, len(tc.dims))
					coords[axis] = coord
					s := NewSubdomain(topo.Rank(coords), topo, tc.nGlobal, 1)
					if s.GlobalSlice[axis].Start != covered {
						t.Fatalf("axis %d coord %d starts at %d, want %d",
							axis, coord, s.GlobalSlice[axis].Start, covered)
					}
					covered = s.GlobalSlice[axis].Stop
				}
				if covered != tc.nGlobal[axis] {
					t.Errorf("axis %d covers [0,%d), want [0,%d)", axis, covered, tc.nGlobal[axis])
				}
			}
		})
	}
}

// 102 points over 10 processes: ranks 0-8 own 10 points, rank 9 owns 12
// starting at 90.
func TestSubdomain_RemainderOnLastRank(t *testing.T) {
	topo := mustTopo(t, []int{10})
	for r := 0; r < 9; r++ {
		s := NewSubdomain(r, topo, []int{102}, 0)
		if s.InnerShape[0] != 10 || s.Position[0] != 10*r {
			t.Errorf("rank %d: inner %d at %d, want 10 at %d", r, s.InnerShape[0], s.Position[0], 10*r)
		}
	}
	last := NewSubdomain(9, topo, []int{102}, 0)
	if last.InnerShape[0] != 12 || last.Position[0] != 90 {
		t.Errorf("rank 9: inner %d at %d, want 12 at 90", last.InnerShape[0], last.Position[0])
	}
	if last.GlobalSlice[0].Start != 90 || last.GlobalSlice[0].Stop != 102 {
		t.Errorf("rank 9 global slice = %v, want [90,102)", last.GlobalSlice[0])
	}
	if !last.IsRightEdge[0] || last.IsLeftEdge[0] {
		t.Errorf("rank 9 edge flags wrong: left=%v right=%v", last.IsLeftEdge[0], last.IsRightEdge[0])
	}
}

func TestSubdomain_Shapes(t *testing.T) {
	topo := mustTopo(t, []int{2, 2})
	s := NewSubdomain(3, topo, []int{8, 6}, 2)
	if s.InnerShape[0] != 4 || s.InnerShape[1] != 3 {
		t.Errorf("InnerShape = %v, want [4 3]", s.InnerShape)
	}
	if s.Shape[0] != 8 || s.Shape[1] != 7 {
		t.Errorf("Shape = %v, want [8 7]", s.Shape)
	}
	if s.InnerSlice[0].Start != 2 || s.InnerSlice[0].Stop != 6 {
		t.Errorf("InnerSlice[0] = %v, want [2,6)", s.InnerSlice[0])
	}
	if s.Position[0] != 4 || s.Position[1] != 3 {
		t.Errorf("Position = %v, want [4 3]", s.Position)
	}
}

// Overlap is symmetric across decompositions of the same grid and selects
// the same global region on both sides.
func TestSubdomain_OverlapSymmetry(t *testing.T) {
	nGlobal := []int{12, 12}
	topoA := mustTopo(t, []int{4, 1})
	topoB := mustTopo(t, []int{1, 4})
	for ra := 0; ra < 4; ra++ {
		for rb := 0; rb < 4; rb++ {
			a := NewSubdomain(ra, topoA, nGlobal, 1)
			b := NewSubdomain(rb, topoB, nGlobal, 2)
			if a.HasOverlap(b) != b.HasOverlap(a) {
				t.Fatalf("overlap asymmetric for ranks %d/%d", ra, rb)
			}
			if !a.HasOverlap(b) {
				continue
			}
			ga := a.LocalToGlobal(a.OverlapSlice(b))
			gb := b.LocalToGlobal(b.OverlapSlice(a))
			for i := range ga {
				if ga[i] != gb[i] {
					t.Errorf("ranks %d/%d: global overlaps %v and %v differ", ra, rb, ga, gb)
				}
			}
		}
	}
}

func TestSubdomain_CoordinateTransforms(t *testing.T) {
	topo := mustTopo(t, []int{2})
	s := NewSubdomain(1, topo, []int{10}, 2)
	// Position 5, halo 2: local index 2 is global index 5.
	local := s.GlobalToLocal(s.GlobalSlice)
	if local[0] != s.InnerSlice[0] {
		t.Errorf("GlobalToLocal(GlobalSlice) = %v, want %v", local[0], s.InnerSlice[0])
	}
	back := s.LocalToGlobal(local)
	if back[0] != s.GlobalSlice[0] {
		t.Errorf("LocalToGlobal round trip = %v, want %v", back[0], s.GlobalSlice[0])
	}
}

func TestSubdomain_NoOverlapIsDegenerate(t *testing.T) {
	topo := mustTopo(t, []int{4})
	a := NewSubdomain(0, topo, []int{16}, 0)
	b := NewSubdomain(3, topo, []int{16}, 0)
	if a.HasOverlap(b) {
		t.Fatal("disjoint subdomains report overlap")
	}
	r := a.OverlapSlice(b)
	if r[0].Len() != 0 {
		t.Errorf("OverlapSlice on disjoint subdomains selects %d elements", r[0].Len())
	}
}
