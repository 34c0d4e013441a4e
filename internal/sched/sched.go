// Package sched implements the cooperative, single-threaded process
// scheduler: a process table, FIFO round-robin threads within each
// process, a fixed per-tick instruction budget, and syscall dispatch at
// trap boundaries.
package sched

import (
	"fmt"

	"hamster/internal/addrspace"
	"hamster/internal/guest"
	"hamster/internal/herr"
	"hamster/internal/log"
	"hamster/internal/page"
	"hamster/internal/swap"
	syscallpkg "hamster/internal/syscall"
	"hamster/internal/vfs"
)

// Budget is the number of instructions a thread runs per scheduling tick
// before yielding to the next thread, mirroring the reference
// implementation's batched tick64.
const Budget = 64

// PID identifies a process.
type PID uint32

// thread pairs a guest.Thread with its scheduling state.
type thread struct {
	guest   guest.Thread
	running bool
}

// Process is one running program: an address space (backed by the
// scheduler's single shared page pool), an open file table, and a FIFO
// list of threads.
type Process struct {
	PID     PID
	Name    string
	Space   *addrspace.Space
	Files   *vfs.Table
	threads []*thread

	errs *herr.Channel
}

// newProcess creates a process with an address space backed by pool,
// the one page pool shared by every process in the system.
func newProcess(pid PID, name string, pool *page.Pool, files *vfs.Table) *Process {
	return &Process{
		PID:   pid,
		Name:  name,
		Space: addrspace.New(pool),
		Files: files,
		errs:  new(herr.Channel),
	}
}

// AddThread enrolls th, started at entry, into the process's run queue.
func (p *Process) AddThread(th guest.Thread, entry uint32) {
	th.SetEntry(entry)
	p.threads = append(p.threads, &thread{guest: th, running: true})
}

// Alive reports whether the process has any runnable threads left.
func (p *Process) Alive() bool {
	for _, t := range p.threads {
		if t.running {
			return true
		}
	}

	return false
}

// Scheduler runs every registered process's threads in FIFO round-robin
// order, one tick-window at a time: for each process in turn, swap its
// pages in, run each thread with a budget, route traps to syscalls, then
// swap that process's pages back out. Every process's address space is
// backed by the scheduler's single page pool: the pool is process-wide
// state, not process-private, so every process draws page ids from the
// same MaxPages budget.
type Scheduler struct {
	nextPID PID
	procs   []*Process
	pool    *page.Pool

	syscalls syscallpkg.Table
	log      *log.Logger
}

// Option configures a Scheduler at construction.
type Option func(*Scheduler)

// WithLogger overrides the scheduler's logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// New creates a scheduler that dispatches non-Exit syscalls through
// syscalls, with a single page pool shared by every process it will
// host, backed by the given swap area.
func New(syscalls syscallpkg.Table, backend swap.Backend, opts ...Option) *Scheduler {
	s := &Scheduler{
		nextPID:  1,
		syscalls: syscalls,
		log:      log.DefaultLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.pool = page.New(backend, page.WithLogger(s.log))

	return s
}

// NewProcess registers a fresh process, its address space backed by the
// scheduler's shared page pool, and returns it so the caller can load a
// guest image and add its thread.
func (s *Scheduler) NewProcess(name string, files *vfs.Table) *Process {
	p := newProcess(s.nextPID, name, s.pool, files)
	s.nextPID++
	s.procs = append(s.procs, p)

	return p
}

// Process returns the process with the given PID, or nil.
func (s *Scheduler) Process(pid PID) *Process {
	for _, p := range s.procs {
		if p.PID == pid {
			return p
		}
	}

	return nil
}

// Tick runs one scheduling window: each live process in turn has its
// address space swapped in, each of its runnable threads gets up to
// Budget instructions (yielding early on exit, syscall, or fault), and
// then that process's pages are swapped back out. A process with no threads
// left running after its window is removed from the process table.
// Returns the number of threads that ran, or an error if a process's
// swap operations failed outright (not an individual thread fault,
// which is handled per-thread).
func (s *Scheduler) Tick() (int, error) {
	ran := 0
	live := s.procs[:0]

	for _, p := range s.procs {
		if !p.Alive() {
			continue // already reaped on a prior tick
		}

		if err := p.Space.SwapInAll(); err != nil {
			return ran, fmt.Errorf("sched: process %d: swap in: %w", p.PID, err)
		}

		for _, t := range p.threads {
			if !t.running {
				continue
			}

			ran++
			s.runThread(p, t)
		}

		if err := p.Space.SwapOutAll(); err != nil {
			return ran, fmt.Errorf("sched: process %d: swap out: %w", p.PID, err)
		}

		p.threads = reapStopped(p.threads)

		if p.Alive() {
			live = append(live, p)
		}
	}

	s.procs = live

	return ran, nil
}

// Run drives Tick until every registered process has exited.
func (s *Scheduler) Run() error {
	for s.anyAlive() {
		if _, err := s.Tick(); err != nil {
			return err
		}
	}

	return nil
}

func (s *Scheduler) anyAlive() bool {
	for _, p := range s.procs {
		if p.Alive() {
			return true
		}
	}

	return false
}

func (s *Scheduler) runThread(p *Process, t *thread) {
	status, err := t.guest.Tick(Budget)

	switch {
	case err != nil:
		s.log.Warn("thread faulted", "pid", p.PID, "err", err)
		t.running = false

	case status == guest.Exited:
		s.log.Debug("thread exited", "pid", p.PID)
		t.running = false

	case status == guest.Faulted:
		s.log.Warn("thread faulted", "pid", p.PID)
		t.running = false

	case status == guest.Syscall:
		s.serviceSyscall(p, t)
	}
}

func (s *Scheduler) serviceSyscall(p *Process, t *thread) {
	frame := t.guest.SyscallFrame()

	if frame.Num == syscallpkg.Exit {
		s.log.Debug("thread exited via syscall", "pid", p.PID, "status", frame.Args[0])
		t.running = false

		return
	}

	ctx := &syscallpkg.Context{Space: p.Space, Files: p.Files}

	result, err := s.syscalls.Dispatch(ctx, frame)
	if err != nil {
		s.log.Debug("syscall error", "pid", p.PID, "num", frame.Num, "err", err)
	}

	t.guest.SetSyscallReturn(result)
}

func reapStopped(threads []*thread) []*thread {
	live := threads[:0]

	for _, t := range threads {
		if t.running {
			live = append(live, t)
		}
	}

	return live
}
