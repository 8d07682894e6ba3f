package object

import "sync"

// Channel is an ambient standard-library type (not one of the ten closed builtin types of
// §3; see SPEC_FULL.md §4.12 and the DESIGN.md Open Question decision) backing the `chan`,
// `go`, `send` and `recv` concurrency sugar. It is a bounded FIFO guarded by its own mutex
// and condition variables, not routed through the scheduler's fiber run queue: a blocked
// recv/send waits on a sync.Cond rather than spinning, and that wait blocks the goroutine
// running the host lambda (the worker goroutine, when called from a fiber) until the
// channel changes (§5 shared-resource discipline).
type Channel struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	buf      []Ref
	capacity int
	closed   bool
}

// NewChannel allocates a Channel instance with the given buffer capacity (0 is treated
// as a capacity of 1; see capAllowance).
func NewChannel(capacity int) Ref {
	c := &Channel{capacity: capacity}
	c.notEmpty = sync.NewCond(&c.mu)
	c.notFull = sync.NewCond(&c.mu)
	return FromHeap(NewNativeObject(ChannelType, c))
}

// AsChannel reports whether r is a Channel and returns its payload.
func AsChannel(r Ref) (*Channel, bool) {
	if !r.IsHeap() {
		return nil, false
	}
	o, ok := r.Heap().(*Object)
	if !ok || o.TypeOf() != ChannelType {
		return nil, false
	}
	c, ok := o.Native.(*Channel)
	return c, ok
}

// Send blocks until there is room in the buffer (a capacity-0 channel holds one pending
// value) or the channel is closed, in which case it returns false.
func (c *Channel) Send(v Ref) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for !c.closed && len(c.buf) >= c.capAllowance() {
		c.notFull.Wait()
	}
	if c.closed {
		return false
	}
	c.buf = append(c.buf, v)
	c.notEmpty.Signal()
	return true
}

// capAllowance treats capacity 0 as holding exactly one pending value, since Cedar has no
// true rendezvous handoff primitive; this keeps Send/Recv simple while still blocking a
// sender until a receiver has drained the previous value.
func (c *Channel) capAllowance() int {
	if c.capacity == 0 {
		return 1
	}
	return c.capacity
}

// Recv blocks until a value is available or the channel is closed and drained, in which
// case ok is false.
func (c *Channel) Recv() (v Ref, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.buf) == 0 && !c.closed {
		c.notEmpty.Wait()
	}
	if len(c.buf) == 0 {
		return NilRef, false
	}
	v = c.buf[0]
	c.buf = c.buf[1:]
	c.notFull.Signal()
	return v, true
}

// Close marks the channel closed, waking any blocked senders and receivers.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.notEmpty.Broadcast()
	c.notFull.Broadcast()
}
