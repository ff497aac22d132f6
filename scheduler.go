// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package weatherd

// WorkFunc is the step function of a work item. Returning a non-nil error
// evicts the item from the scheduler.
type WorkFunc func() error

// Handle identifies a work item, within the [Scheduler] that issued it.
type Handle int32

// NoHandle is the zero value for "no work item".
const NoHandle Handle = -1

type workItem struct {
	fn      WorkFunc
	onEvict func(error)
	name    string
	next    Handle
	active  bool
}

// Scheduler runs registered work items, once each per tick.
//
// Items live in an arena for the lifetime of the scheduler, and are linked
// into the active list by handle. New registrations are pushed to the head,
// so the most recently registered item runs first. There is no fairness
// beyond every active item running exactly once per tick.
//
// Scheduler is not safe for concurrent use.
type Scheduler struct {
	logger  *Logger
	metrics *Metrics
	items   []workItem
	batch   []Handle
	head    Handle
	count   int
	pending bool
}

func newScheduler(logger *Logger, metrics *Metrics) *Scheduler {
	return &Scheduler{
		logger:  logger,
		metrics: metrics,
		head:    NoHandle,
	}
}

// NewItem allocates an inactive work item. The name is only used for
// logging.
func (s *Scheduler) NewItem(name string, fn WorkFunc) Handle {
	h := Handle(len(s.items))
	s.items = append(s.items, workItem{fn: fn, name: name, next: NoHandle})
	if cap(s.batch) < len(s.items) {
		s.batch = make([]Handle, 0, cap(s.items))
	}
	return h
}

// OnEvict sets a function to be called after h is evicted, with the error
// that caused it. It may re-register h.
func (s *Scheduler) OnEvict(h Handle, fn func(error)) error {
	w, err := s.item(h)
	if err != nil {
		return err
	}
	w.onEvict = fn
	return nil
}

func (s *Scheduler) item(h Handle) (*workItem, error) {
	if h < 0 || int(h) >= len(s.items) {
		return nil, ErrInvalidHandle
	}
	return &s.items[h], nil
}

// Register links h into the active list, at the head.
func (s *Scheduler) Register(h Handle) error {
	w, err := s.item(h)
	if err != nil {
		return err
	}
	if w.fn == nil {
		return ErrNilWork
	}
	if w.active {
		return ErrItemActive
	}
	w.next = s.head
	w.active = true
	s.head = h
	s.count++
	return nil
}

// Deregister unlinks h from the active list. It is safe to call from within
// a running work item, including for itself.
func (s *Scheduler) Deregister(h Handle) error {
	w, err := s.item(h)
	if err != nil {
		return err
	}
	if !w.active {
		return ErrItemNotFound
	}
	if s.head == h {
		s.head = w.next
	} else {
		prev := s.head
		for prev != NoHandle && s.items[prev].next != h {
			prev = s.items[prev].next
		}
		if prev == NoHandle {
			// unreachable while active implies linked
			return ErrItemNotFound
		}
		s.items[prev].next = w.next
	}
	w.next = NoHandle
	w.active = false
	s.count--
	return nil
}

// Active reports whether h is currently registered.
func (s *Scheduler) Active(h Handle) bool {
	w, err := s.item(h)
	return err == nil && w.active
}

// Len returns the number of active work items.
func (s *Scheduler) Len() int {
	return s.count
}

// Notify marks the scheduler as having work that can progress without I/O
// readiness. See Pending.
func (s *Scheduler) Notify() {
	s.pending = true
}

// Pending reports whether Notify was called since the last RunOnce.
func (s *Scheduler) Pending() bool {
	return s.pending
}

// RunOnce runs every work item that was active at the start of the call, in
// list order, skipping any that were deregistered by an earlier item. Items
// registered during the call run on the next one. Items that fail or panic
// are evicted. Returns the number of items run.
func (s *Scheduler) RunOnce() int {
	s.pending = false

	batch := s.batch[:0]
	for h := s.head; h != NoHandle; h = s.items[h].next {
		batch = append(batch, h)
	}
	s.batch = batch

	var ran int
	for i, h := range batch {
		batch[i] = NoHandle
		if !s.items[h].active {
			continue
		}
		ran++
		if err := s.safeExecute(h); err != nil {
			s.evict(h, err)
		}
	}

	return ran
}

// safeExecute runs the item, converting a panic into a PanicError.
func (s *Scheduler) safeExecute(h Handle) error {
	return safeCall(s.items[h].fn)
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = PanicError{Value: r}
		}
	}()
	return fn()
}

func (s *Scheduler) evict(h Handle, err error) {
	if s.items[h].active {
		_ = s.Deregister(h)
	}
	name, hook := s.items[h].name, s.items[h].onEvict
	s.metrics.evicted(name)
	s.logger.Err().
		Str("component", "scheduler").
		Str("item", name).
		Err(err).
		Log("work item evicted")
	if hook == nil {
		return
	}
	if hookErr := safeCall(func() error { hook(err); return nil }); hookErr != nil {
		s.logger.Err().
			Str("component", "scheduler").
			Str("item", name).
			Err(hookErr).
			Log("evict hook failed")
	}
}
