package decomp

import (
	"fmt"

	"github.com/notargets/gopencil/comm"
	"github.com/notargets/gopencil/narray"
)

// tagTransform separates redistribution traffic from halo-exchange traffic
// so that a rank already syncing its output cannot match a peer's
// next-stage redistribution message.
const tagTransform = 1 << 20

// overlap pairs a remote rank with the local region it shares.
type overlap struct {
	rank   int
	region []narray.Slice
}

// overlapInfo is one side of a redistribution plan: for the local rank's
// subdomain in one decomposition, the remote ranks of the other
// decomposition whose owned regions intersect it, with the intersections
// in local coordinates. The self entry, when present, is the intersection
// with the same rank's subdomain in the other decomposition; that portion
// moves by direct copy instead of messaging.
type overlapInfo struct {
	peers []overlap
	self  []narray.Slice
}

func overlapOf(domainIn, domainOut *DomainDecomposition) overlapInfo {
	var info overlapInfo
	mine := domainIn.MySubdomain
	for r := 0; r < domainIn.Size; r++ {
		other := domainOut.AllSubdomains[r]
		if !mine.HasOverlap(other) {
			continue
		}
		region := mine.OverlapSlice(other)
		if r == domainIn.Rank {
			info.self = region
			continue
		}
		info.peers = append(info.peers, overlap{rank: r, region: region})
	}
	return info
}

// Transformer redistributes field data between two decompositions of the
// same global grid, for example from x-pencils to y-pencils. It is
// stateless after construction: both directions' overlap plans are derived
// once from the subdomain geometry, so no negotiation happens at transfer
// time.
type Transformer struct {
	DomainIn  *DomainDecomposition
	DomainOut *DomainDecomposition

	// sameDomain short-circuits transfers between decompositions with
	// identical process grids and halos.
	sameDomain bool

	infoIn  overlapInfo // my region in DomainIn vs. all of DomainOut
	infoOut overlapInfo // my region in DomainOut vs. all of DomainIn
}

// NewTransformer plans the redistribution between two decompositions. The
// decompositions must cover the same global grid with the same process
// group.
func NewTransformer(domainIn, domainOut *DomainDecomposition) (*Transformer, error) {
	if domainIn.NDims != domainOut.NDims {
		return nil, fmt.Errorf("%w: decompositions have %d and %d axes",
			ErrConfig, domainIn.NDims, domainOut.NDims)
	}
	for i := range domainIn.NGlobal {
		if domainIn.NGlobal[i] != domainOut.NGlobal[i] {
			return nil, fmt.Errorf("%w: global shapes %v and %v differ",
				ErrConfig, domainIn.NGlobal, domainOut.NGlobal)
		}
	}
	if domainIn.Size != domainOut.Size {
		return nil, fmt.Errorf("%w: process groups of size %d and %d",
			ErrConfig, domainIn.Size, domainOut.Size)
	}

	same := domainIn.Halo == domainOut.Halo
	for i := range domainIn.NProcs {
		if domainIn.NProcs[i] != domainOut.NProcs[i] {
			same = false
			break
		}
	}
	return &Transformer{
		DomainIn:   domainIn,
		DomainOut:  domainOut,
		sameDomain: same,
		infoIn:     overlapOf(domainIn, domainOut),
		infoOut:    overlapOf(domainOut, domainIn),
	}, nil
}

// Forward moves arr from DomainIn's layout to DomainOut's. A nil out
// allocates the output; otherwise out is filled and returned. After the
// call every owned grid point of the output holds the value of the unique
// owning point in the input layout, and the output's halo is synchronized.
func Forward[T narray.Elem](t *Transformer, arr, out *narray.Array[T]) (*narray.Array[T], error) {
	return transfer(t.DomainIn, t.DomainOut, t.sameDomain, t.infoIn, t.infoOut, arr, out)
}

// Backward is the mirror of Forward, moving arr from DomainOut's layout to
// DomainIn's.
func Backward[T narray.Elem](t *Transformer, arr, out *narray.Array[T]) (*narray.Array[T], error) {
	return transfer(t.DomainOut, t.DomainIn, t.sameDomain, t.infoOut, t.infoIn, arr, out)
}

func transfer[T narray.Elem](din, dout *DomainDecomposition, same bool,
	sendInfo, recvInfo overlapInfo, arr, out *narray.Array[T]) (*narray.Array[T], error) {

	if !arr.ShapeEqual(din.MySubdomain.Shape) {
		return nil, fmt.Errorf("%w: input shape %v, domain needs %v",
			ErrConfig, arr.Shape(), din.MySubdomain.Shape)
	}
	if same {
		if out == nil || out == arr {
			return arr, nil
		}
		copy(out.Data(), arr.Data())
		return out, nil
	}
	if out == nil {
		out = narray.New[T](dout.MySubdomain.Shape)
	} else if !out.ShapeEqual(dout.MySubdomain.Shape) {
		return nil, fmt.Errorf("%w: output shape %v, domain needs %v",
			ErrConfig, out.Shape(), dout.MySubdomain.Shape)
	}

	if err := din.syncDevice(); err != nil {
		return nil, err
	}

	// Stage each outgoing overlap into its own contiguous buffer and issue
	// everything non-blocking; receives land in buffers sized from the
	// precomputed plan, so no size negotiation is needed.
	reqs := make([]comm.Request, 0, len(sendInfo.peers)+len(recvInfo.peers))
	for _, ov := range sendInfo.peers {
		reqs = append(reqs, din.Comm.Isend(ov.rank, tagTransform,
			narray.Bytes(arr.Gather(ov.region, nil))))
	}
	recvBufs := make([][]T, len(recvInfo.peers))
	for i, ov := range recvInfo.peers {
		recvBufs[i] = make([]T, narray.RegionSize(ov.region))
		reqs = append(reqs, din.Comm.Irecv(ov.rank, tagTransform, narray.Bytes(recvBufs[i])))
	}
	if err := comm.WaitAll(reqs...); err != nil {
		return nil, err
	}
	for i, ov := range recvInfo.peers {
		out.Scatter(ov.region, recvBufs[i])
	}

	// The portion this rank owns in both layouts never touches the network.
	if sendInfo.self != nil {
		narray.CopyRegion(out, recvInfo.self, arr, sendInfo.self)
	}

	if err := Sync(dout, out); err != nil {
		return nil, err
	}
	return out, nil
}
