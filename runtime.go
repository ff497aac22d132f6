// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build unix

package weatherd

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Runtime is the event loop: a [Scheduler] driven by a [Poller].
//
// Each Tick blocks until a watched descriptor is ready (or the poll timeout
// elapses), then runs every active work item once. Only Wake may be called
// from other goroutines.
type Runtime struct {
	logger      *Logger
	metrics     *Metrics
	io          FDIO
	sched       *Scheduler
	poller      *Poller
	pollTimeout time.Duration
	wakeItem    Handle
	wakeR       int
	wakeMu      sync.RWMutex // guards wakeW against Close
	wakeW       int
	closed      bool
}

// NewRuntime creates a runtime, including its wake-up descriptor.
func NewRuntime(opts ...RuntimeOption) (*Runtime, error) {
	cfg, err := resolveRuntimeOptions(opts)
	if err != nil {
		return nil, err
	}

	poller, err := NewPoller()
	if err != nil {
		return nil, err
	}

	wakeR, wakeW, err := createWakeFd()
	if err != nil {
		_ = poller.Close()
		return nil, err
	}

	rt := &Runtime{
		logger:      cfg.logger,
		metrics:     cfg.metrics,
		io:          cfg.io,
		sched:       newScheduler(cfg.logger, cfg.metrics),
		poller:      poller,
		pollTimeout: cfg.pollTimeout,
		wakeR:       wakeR,
		wakeW:       wakeW,
	}

	rt.wakeItem = rt.sched.NewItem("wakeup", rt.drainWakeup)
	if err := poller.Register(wakeR, EventRead); err != nil {
		rt.closeWakeFds()
		_ = poller.Close()
		return nil, err
	}
	if err := rt.sched.Register(rt.wakeItem); err != nil {
		rt.closeWakeFds()
		_ = poller.Close()
		return nil, err
	}

	return rt, nil
}

// Scheduler returns the runtime's scheduler.
func (rt *Runtime) Scheduler() *Scheduler { return rt.sched }

// Poller returns the runtime's readiness multiplexer.
func (rt *Runtime) Poller() *Poller { return rt.poller }

// Tick performs one iteration of the loop. It blocks for at most the poll
// timeout, or not at all if the scheduler has pending work.
func (rt *Runtime) Tick() error {
	if rt.closed {
		return ErrRuntimeClosed
	}
	timeout := rt.pollTimeout
	if rt.sched.Pending() {
		timeout = 0
	}
	if _, err := rt.poller.Wait(timeout); err != nil {
		rt.logger.Err().
			Str("component", "poller").
			Err(err).
			Log("wait failed")
		return err
	}
	rt.sched.RunOnce()
	rt.metrics.tick()
	return nil
}

// Run ticks until ctx is done (returning ctx.Err()) or a tick fails.
func (rt *Runtime) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, rt.Wake)
	defer stop()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := rt.Tick(); err != nil {
			return err
		}
	}
}

// Wake interrupts a blocked Tick. It is safe to call from any goroutine, at
// any time, including after Close.
func (rt *Runtime) Wake() {
	rt.wakeMu.RLock()
	defer rt.wakeMu.RUnlock()
	if rt.wakeW < 0 {
		return
	}
	var buf = [8]byte{1}
	// EAGAIN means a wake-up is already pending
	_, _ = unix.Write(rt.wakeW, buf[:])
}

func (rt *Runtime) drainWakeup() error {
	var buf [64]byte
	for {
		_, err := unix.Read(rt.wakeR, buf[:])
		if err == nil {
			continue
		}
		if wouldBlock(err) {
			return nil
		}
		if interrupted(err) {
			continue
		}
		return err
	}
}

// Close releases the runtime's descriptors. Descriptors owned by the
// listener and the pools must be released first (see Listener.Close and
// HTTPServer.Shutdown). Close is idempotent.
func (rt *Runtime) Close() error {
	if rt.closed {
		return nil
	}
	rt.closed = true
	var errs []error
	if rt.sched.Active(rt.wakeItem) {
		errs = append(errs, rt.sched.Deregister(rt.wakeItem))
	}
	errs = append(errs, rt.poller.Deregister(rt.wakeR))
	rt.closeWakeFds()
	errs = append(errs, rt.poller.Close())
	return errors.Join(errs...)
}

func (rt *Runtime) closeWakeFds() {
	rt.wakeMu.Lock()
	defer rt.wakeMu.Unlock()
	if rt.wakeW >= 0 && rt.wakeW != rt.wakeR {
		_ = unix.Close(rt.wakeW)
	}
	if rt.wakeR >= 0 {
		_ = unix.Close(rt.wakeR)
	}
	rt.wakeR, rt.wakeW = -1, -1
}
