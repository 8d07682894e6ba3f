// Package scheduler implements the work-stealing worker pool that runs fibers in fixed
// time slices (§4.8): N workers, each with its own local deque, stealing from one
// another when idle, driven re-entrantly by host calls via CallFunction (§4.9).
//
// Grounded loosely on MongooseMoo-barn's Scheduler (other_examples), which runs a single
// ticker-driven loop pulling from one shared priority queue under one mutex; this
// version replaces that single-queue design with one deque per worker and random-victim
// stealing, since §4.8 calls for per-worker queues rather than a shared one.
package scheduler

import (
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nickwanninger/cedar/cdrerr"
	"github.com/nickwanninger/cedar/object"
	"github.com/nickwanninger/cedar/vm"
)

// job wraps a fiber as it moves through deques; a thin wrapper rather than using *vm.Fiber
// directly leaves room for future per-job bookkeeping without touching vm.
type job struct {
	fiber *vm.Fiber
}

type workerState struct {
	id int
	dq *deque
}

// Scheduler owns the worker pool and the process-wide pending-job counter (§4.8
// Completion). It is safe for concurrent use: AddJob and CallFunction may be called from
// any goroutine, including from inside a host lambda running on a worker.
type Scheduler struct {
	machine *vm.Machine
	workers []*workerState
	slice   time.Duration
	logger  *log.Logger

	pending int64

	running int32
	stop    chan struct{}
	wg      sync.WaitGroup

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New builds a Scheduler reading its topology from the environment (§6.4), logging
// startup/shutdown through logger (never the global logger, per the ambient logging
// convention).
func New(machine *vm.Machine, logger *log.Logger) (*Scheduler, error) {
	cfg, err := configFromEnv()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New(log.Writer(), "", log.LstdFlags)
	}
	s := &Scheduler{
		machine: machine,
		slice:   cfg.Slice,
		logger:  logger,
		stop:    make(chan struct{}),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	s.workers = make([]*workerState, cfg.Workers)
	for i := range s.workers {
		s.workers[i] = &workerState{id: i, dq: newDeque()}
	}
	return s, nil
}

// Start launches the N worker goroutines (§4.8 Topology).
func (s *Scheduler) Start() {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		return
	}
	s.logger.Printf("scheduler: starting %d workers, slice=%s", len(s.workers), s.slice)
	for i := range s.workers {
		s.wg.Add(1)
		go s.workerLoop(i)
	}
}

// Stop signals every worker to exit and waits for them to drain.
func (s *Scheduler) Stop() {
	if !atomic.CompareAndSwapInt32(&s.running, 1, 0) {
		return
	}
	close(s.stop)
	s.wg.Wait()
	s.logger.Printf("scheduler: stopped")
}

func (s *Scheduler) workerLoop(i int) {
	defer s.wg.Done()
	idle := 100 * time.Microsecond
	for {
		select {
		case <-s.stop:
			return
		default:
		}
		if !s.volunteer(i) {
			time.Sleep(idle)
		}
	}
}

// volunteer implements §4.8's volunteer(): try the local deque first, then steal from
// whichever of two random peers holds more work, then run whatever was found. Returns
// false when nothing was available anywhere it looked.
func (s *Scheduler) volunteer(selfIdx int) bool {
	w := s.workers[selfIdx]
	j := w.dq.popBottom()
	owner := selfIdx
	if j == nil {
		j, owner = s.stealFrom(selfIdx)
	}
	if j == nil {
		return false
	}
	s.runJob(owner, j)
	return true
}

// stealFrom samples two workers other than selfIdx and steals from whichever deque is
// larger (§4.8 Run, step (b)).
func (s *Scheduler) stealFrom(selfIdx int) (*job, int) {
	n := len(s.workers)
	if n < 2 {
		return nil, -1
	}
	a := s.randPeer(selfIdx)
	b := s.randPeer(selfIdx)
	victim := a
	if s.workers[b].dq.len() > s.workers[a].dq.len() {
		victim = b
	}
	if j := s.workers[victim].dq.steal(); j != nil {
		return j, victim
	}
	return nil, -1
}

func (s *Scheduler) randPeer(selfIdx int) int {
	n := len(s.workers)
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	for {
		i := s.rng.Intn(n)
		if i != selfIdx || n == 1 {
			return i
		}
	}
}

// runJob implements schedule_job(f) (§4.8 Run): check sleep eligibility, run one slice,
// update scheduling timestamps, and requeue on ownerIdx's deque if the fiber isn't done.
func (s *Scheduler) runJob(ownerIdx int, j *job) {
	now := time.Now()
	if now.Before(j.fiber.SleepUntil) {
		s.workers[ownerIdx].dq.pushBottom(j)
		return
	}

	deadline := now.Add(s.slice)
	done, err := s.machine.Step(j.fiber, deadline)
	if err != nil {
		j.fiber.Done = true
		j.fiber.Err = err
		done = true
	}
	j.fiber.LastRan = time.Now()

	if done {
		atomic.AddInt64(&s.pending, -1)
		return
	}
	s.workers[ownerIdx].dq.pushBottom(j)
}

// AddJob enqueues a ready fiber on a randomly chosen worker's deque (§4.8 Enqueue).
func (s *Scheduler) AddJob(fib *vm.Fiber) {
	atomic.AddInt64(&s.pending, 1)
	idx := s.randPeer(-1)
	s.workers[idx].dq.pushBottom(&job{fiber: fib})
}

// Pending reports the number of fibers currently enqueued or running.
func (s *Scheduler) Pending() int64 {
	return atomic.LoadInt64(&s.pending)
}

// CallFunction implements §4.9's call_function: a host lambda runs immediately with no
// scheduling; a bytecode lambda is wrapped in a fiber, enqueued, and the calling
// goroutine spins on volunteer() (re-entrantly helping drain other ready work) until that
// specific fiber completes.
func (s *Scheduler) CallFunction(fn object.Ref, args []object.Ref) (object.Ref, error) {
	lambda, ok := object.AsLambda(fn)
	if !ok {
		return object.NilRef, &cdrerr.TypeError{Operation: "call_function", TypeName: "non-lambda"}
	}
	if lambda.IsHost() {
		return s.machine.CallSync(fn, args)
	}

	fib := s.machine.NewFiber(lambda, args)
	s.AddJob(fib)

	idle := 100 * time.Microsecond
	for !fib.Done {
		found := false
		if len(s.workers) > 0 {
			found = s.volunteer(s.randPeer(-1))
		}
		if !found {
			time.Sleep(idle)
		}
	}
	return fib.Result, fib.Err
}
