package comm

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
)

func TestGroup_SendRecv(t *testing.T) {
	err := Run(2, func(c Comm) error {
		if c.Rank() == 0 {
			if err := c.Isend(1, 7, []byte("hello")).Wait(); err != nil {
				return err
			}
			return nil
		}
		buf := make([]byte, 5)
		if err := c.Irecv(0, 7, buf).Wait(); err != nil {
			return err
		}
		if string(buf) != "hello" {
			return fmt.Errorf("received %q, want %q", buf, "hello")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

// Messages with distinct tags match out of arrival order.
func TestGroup_TagMatching(t *testing.T) {
	err := Run(2, func(c Comm) error {
		if c.Rank() == 0 {
			c.Isend(1, 1, []byte{1})
			c.Isend(1, 2, []byte{2})
			return nil
		}
		a, b := make([]byte, 1), make([]byte, 1)
		// Receive the later tag first.
		if err := c.Irecv(0, 2, b).Wait(); err != nil {
			return err
		}
		if err := c.Irecv(0, 1, a).Wait(); err != nil {
			return err
		}
		if a[0] != 1 || b[0] != 2 {
			return fmt.Errorf("got tag1=%d tag2=%d", a[0], b[0])
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

// Same (source, tag) pairs match in send order.
func TestGroup_PairwiseOrdering(t *testing.T) {
	const n = 100
	err := Run(2, func(c Comm) error {
		if c.Rank() == 0 {
			for i := 0; i < n; i++ {
				c.Isend(1, 0, []byte{byte(i)})
			}
			return nil
		}
		buf := make([]byte, 1)
		for i := 0; i < n; i++ {
			if err := c.Irecv(0, 0, buf).Wait(); err != nil {
				return err
			}
			if buf[0] != byte(i) {
				return fmt.Errorf("message %d arrived as %d", i, buf[0])
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestGroup_LengthMismatch(t *testing.T) {
	err := Run(2, func(c Comm) error {
		if c.Rank() == 0 {
			return c.Isend(1, 0, []byte{1, 2, 3}).Wait()
		}
		buf := make([]byte, 2)
		return c.Irecv(0, 0, buf).Wait()
	})
	if !errors.Is(err, ErrComm) {
		t.Fatalf("error = %v, want ErrComm", err)
	}
}

func TestGroup_PairedExchangeNoDeadlock(t *testing.T) {
	// Every rank sends to both neighbors before receiving; eager sends
	// keep this from deadlocking.
	const size = 8
	err := Run(size, func(c Comm) error {
		next := (c.Rank() + 1) % size
		prev := (c.Rank() - 1 + size) % size
		reqs := []Request{
			c.Isend(next, 0, []byte{byte(c.Rank())}),
			c.Isend(prev, 1, []byte{byte(c.Rank())}),
		}
		fromPrev, fromNext := make([]byte, 1), make([]byte, 1)
		reqs = append(reqs,
			c.Irecv(prev, 0, fromPrev),
			c.Irecv(next, 1, fromNext))
		if err := WaitAll(reqs...); err != nil {
			return err
		}
		if int(fromPrev[0]) != prev || int(fromNext[0]) != next {
			return fmt.Errorf("rank %d received %d/%d, want %d/%d",
				c.Rank(), fromPrev[0], fromNext[0], prev, next)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestGroup_Barrier(t *testing.T) {
	const size = 4
	var before, after atomic.Int32
	err := Run(size, func(c Comm) error {
		before.Add(1)
		if err := c.Barrier(); err != nil {
			return err
		}
		if n := before.Load(); n != size {
			return fmt.Errorf("rank %d passed barrier with %d arrivals", c.Rank(), n)
		}
		after.Add(1)
		return c.Barrier()
	})
	if err != nil {
		t.Fatal(err)
	}
	if after.Load() != size {
		t.Errorf("after = %d, want %d", after.Load(), size)
	}
}

func TestRun_LowestRankErrorWins(t *testing.T) {
	errRank := func(r int) error { return fmt.Errorf("rank %d failed", r) }
	err := Run(4, func(c Comm) error {
		if c.Rank() == 1 || c.Rank() == 3 {
			return errRank(c.Rank())
		}
		return nil
	})
	if err == nil || err.Error() != "rank 1 failed" {
		t.Fatalf("error = %v, want rank 1 failed", err)
	}
}

func TestNewGroup_InvalidSize(t *testing.T) {
	if _, err := NewGroup(0); !errors.Is(err, ErrTopology) {
		t.Errorf("NewGroup(0) error = %v, want ErrTopology", err)
	}
}
