package vm

import (
	"sync"

	"github.com/nickwanninger/cedar/code"
	"github.com/nickwanninger/cedar/object"
)

// Frame is one call frame in a fiber's frame chain (§3 "Call frame"): the lambda being
// executed, the instruction pointer, the stack pointer marking where this frame's closure
// locals begin on the fiber's operand stack, and a caller link.
type Frame struct {
	lambda *object.Lambda
	ip     int
	sp     int
	caller *Frame
}

// Instructions returns this frame's code unit's bytecode. It panics (an InternalError in
// any caller's eyes) if the frame belongs to a host lambda, which never runs a frame loop.
func (f *Frame) Instructions() code.Instructions {
	return f.lambda.Code.Instructions
}

// framePool recycles Frame records across calls and returns, per §4.7 "Frames are pooled."
// A single mutex guards the free list (§5 shared resource (a)).
type framePool struct {
	mu   sync.Mutex
	free []*Frame
}

func newFramePool() *framePool {
	return &framePool{}
}

func (p *framePool) get(lambda *object.Lambda, sp int, caller *Frame) *Frame {
	p.mu.Lock()
	var f *Frame
	if n := len(p.free); n > 0 {
		f = p.free[n-1]
		p.free = p.free[:n-1]
	}
	p.mu.Unlock()

	if f == nil {
		f = &Frame{}
	}
	f.lambda = lambda
	f.ip = 0
	f.sp = sp
	f.caller = caller
	return f
}

func (p *framePool) put(f *Frame) {
	f.lambda = nil
	f.caller = nil
	p.mu.Lock()
	p.free = append(p.free, f)
	p.mu.Unlock()
}
