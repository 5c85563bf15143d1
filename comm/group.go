package comm

import (
	"fmt"
	"sync"
)

// message is one staged payload in a rank's mailbox.
type message struct {
	src, tag int
	data     []byte
}

// mailbox is the receive queue of one rank. Senders append under the lock,
// so messages from a fixed sender appear in the order they were sent.
// Receives match by (source, tag) against the earliest queued message;
// non-matching messages stay queued ("unexpected message" queue).
type mailbox struct {
	mu    sync.Mutex
	cond  *sync.Cond
	queue []message
}

func newMailbox() *mailbox {
	b := &mailbox{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *mailbox) put(m message) {
	b.mu.Lock()
	b.queue = append(b.queue, m)
	b.mu.Unlock()
	b.cond.Broadcast()
}

// take blocks until a message from src with the given tag is queued,
// removes it, and returns it.
func (b *mailbox) take(src, tag int) message {
	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		for i, m := range b.queue {
			if m.src == src && m.tag == tag {
				b.queue = append(b.queue[:i], b.queue[i+1:]...)
				return m
			}
		}
		b.cond.Wait()
	}
}

// Group is an in-process process group: size ranks connected by
// shared-memory mailboxes. It implements the transport contract exactly
// (tagged matching, per-pair ordering, eager buffered sends) and is the
// unit-test vehicle for simulated process counts.
type Group struct {
	size  int
	boxes []*mailbox
	bar   *barrier
}

// NewGroup creates an in-process group with the given number of ranks.
func NewGroup(size int) (*Group, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: group size %d < 1", ErrTopology, size)
	}
	g := &Group{size: size, bar: newBarrier(size)}
	g.boxes = make([]*mailbox, size)
	for i := range g.boxes {
		g.boxes[i] = newMailbox()
	}
	return g, nil
}

// Size returns the number of ranks in the group.
func (g *Group) Size() int { return g.size }

// Rank returns the Comm handle of one rank.
func (g *Group) Rank(rank int) Comm {
	if rank < 0 || rank >= g.size {
		panic(fmt.Sprintf("comm: rank %d out of range [0,%d)", rank, g.size))
	}
	return &groupComm{g: g, rank: rank}
}

type groupComm struct {
	g    *Group
	rank int
}

func (c *groupComm) Rank() int { return c.rank }
func (c *groupComm) Size() int { return c.g.size }

func (c *groupComm) Isend(dest, tag int, payload []byte) Request {
	if dest < 0 || dest >= c.g.size {
		return errRequest("%w: send to rank %d outside group of size %d", ErrComm, dest, c.g.size)
	}
	// Eager send: the payload is copied into the destination mailbox so the
	// caller may reuse its buffer immediately and paired exchanges cannot
	// deadlock.
	data := append([]byte(nil), payload...)
	c.g.boxes[dest].put(message{src: c.rank, tag: tag, data: data})
	return doneRequest{}
}

func (c *groupComm) Irecv(source, tag int, buf []byte) Request {
	if source < 0 || source >= c.g.size {
		return errRequest("%w: receive from rank %d outside group of size %d", ErrComm, source, c.g.size)
	}
	return &recvRequest{c: c, source: source, tag: tag, buf: buf}
}

func (c *groupComm) Barrier() error {
	c.g.bar.await()
	return nil
}

type recvRequest struct {
	c      *groupComm
	source int
	tag    int
	buf    []byte
	done   bool
	err    error
}

func (r *recvRequest) Wait() error {
	if r.done {
		return r.err
	}
	r.done = true
	m := r.c.g.boxes[r.c.rank].take(r.source, r.tag)
	if len(m.data) != len(r.buf) {
		r.err = fmt.Errorf("%w: rank %d received %d bytes from rank %d (tag %d), expected %d",
			ErrComm, r.c.rank, len(m.data), r.source, r.tag, len(r.buf))
		return r.err
	}
	copy(r.buf, m.data)
	return nil
}

// barrier is a reusable generation-counting barrier.
type barrier struct {
	mu    sync.Mutex
	cond  *sync.Cond
	n     int
	count int
	gen   int
}

func newBarrier(n int) *barrier {
	b := &barrier{n: n}
	b.cond = sync.NewCond(&b.mu)
	return b
}

func (b *barrier) await() {
	b.mu.Lock()
	defer b.mu.Unlock()
	gen := b.gen
	b.count++
	if b.count == b.n {
		b.count = 0
		b.gen++
		b.cond.Broadcast()
		return
	}
	for gen == b.gen {
		b.cond.Wait()
	}
}

// Run executes fn as an SPMD program on an in-process group: one goroutine
// per rank, each handed its own Comm. Run returns after every rank has
// finished; the lowest-rank error is returned.
func Run(size int, fn func(c Comm) error) error {
	g, err := NewGroup(size)
	if err != nil {
		return err
	}
	errs := make([]error, size)
	var wg sync.WaitGroup
	for r := 0; r < size; r++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			errs[rank] = fn(g.Rank(rank))
		}(r)
	}
	wg.Wait()
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}
