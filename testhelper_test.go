package reactor

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/logiface"
)

// newTestLoop constructs a loop on the calling goroutine, which the caller
// must Close (normally via defer).
func newTestLoop(t *testing.T, opts ...LoopOption) *EventLoop {
	t.Helper()
	loop, err := New(opts...)
	if err != nil {
		t.Fatalf("failed to create loop: %v", err)
	}
	return loop
}

// recordingReceiver records every event and timer delivered to it.
type recordingReceiver struct {
	onEvent func(ev Event)
	onTimer func(ev *TimerEvent)
	events  []Event
	timers  []TimerID
	mu      sync.Mutex
}

func (x *recordingReceiver) HandleEvent(ev Event) {
	x.mu.Lock()
	x.events = append(x.events, ev)
	fn := x.onEvent
	x.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func (x *recordingReceiver) HandleTimer(ev *TimerEvent) {
	x.mu.Lock()
	x.timers = append(x.timers, ev.ID)
	fn := x.onTimer
	x.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func (x *recordingReceiver) Events() []Event {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]Event(nil), x.events...)
}

func (x *recordingReceiver) Timers() []TimerID {
	x.mu.Lock()
	defer x.mu.Unlock()
	return append([]TimerID(nil), x.timers...)
}

// hiddenReceiver reports not visible for timers.
type hiddenReceiver struct {
	recordingReceiver
	visible bool
}

func (x *hiddenReceiver) VisibleForTimers() bool { return x.visible }

var errFakeBackend = errors.New("fake backend failure")

// fakeBackend is a Backend that never blocks. Each Wait returns the
// scripted readiness, and consumes a pending wake.
type fakeBackend struct {
	watched  map[int]IOEvents
	watchErr error
	ready    []Readiness
	waitErrs []error
	timeouts []time.Duration
	mu       sync.Mutex
	wakes    int
	woken    bool
	closed   bool
}

var _ Backend = (*fakeBackend)(nil)

func newFakeBackend() *fakeBackend {
	return &fakeBackend{watched: make(map[int]IOEvents)}
}

// option returns a LoopOption installing the backend.
func (b *fakeBackend) option() LoopOption {
	return WithBackend(func() (Backend, error) { return b, nil })
}

func (b *fakeBackend) Watch(fd int, interest IOEvents) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.watchErr != nil {
		return b.watchErr
	}
	if _, ok := b.watched[fd]; ok {
		return ErrNotifierAlreadyRegistered
	}
	b.watched[fd] = interest
	return nil
}

func (b *fakeBackend) Unwatch(fd int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.watched, fd)
	return nil
}

func (b *fakeBackend) Wait(timeout time.Duration) (WaitResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return WaitResult{}, ErrBackendClosed
	}
	b.timeouts = append(b.timeouts, timeout)
	if len(b.waitErrs) != 0 {
		err := b.waitErrs[0]
		b.waitErrs = b.waitErrs[1:]
		return WaitResult{}, err
	}
	result := WaitResult{Ready: b.ready, Woken: b.woken}
	b.ready = nil
	b.woken = false
	return result, nil
}

func (b *fakeBackend) Wake() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBackendClosed
	}
	b.wakes++
	b.woken = true
	return nil
}

func (b *fakeBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBackendClosed
	}
	b.closed = true
	return nil
}

func (b *fakeBackend) setReady(ready ...Readiness) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ready = ready
}

func (b *fakeBackend) failNext(errs ...error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.waitErrs = append(b.waitErrs, errs...)
}

func (b *fakeBackend) Timeouts() []time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]time.Duration(nil), b.timeouts...)
}

func (b *fakeBackend) Wakes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.wakes
}

func (b *fakeBackend) isWatched(fd int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.watched[fd]
	return ok
}

// expectUsageError runs fn, failing the test unless it panics with a
// *UsageError for op.
func expectUsageError(t *testing.T, op string, fn func()) {
	t.Helper()
	var recovered any
	func() {
		defer func() { recovered = recover() }()
		fn()
	}()
	err, ok := recovered.(*UsageError)
	if !ok {
		t.Fatalf("expected *UsageError panic, got %T: %v", recovered, recovered)
	}
	if err.Op != op {
		t.Fatalf("expected usage error for %q, got %q (%s)", op, err.Op, err.Reason)
	}
}

// mockEvent is a logiface.Event that records its fields.
type mockEvent struct {
	logiface.UnimplementedEvent
	fields map[string]any
	msg    string
	level  logiface.Level
}

func (e *mockEvent) Level() logiface.Level { return e.level }

func (e *mockEvent) AddField(key string, val any) {
	e.fields[key] = val
}

func (e *mockEvent) AddMessage(msg string) bool {
	e.msg = msg
	return true
}

// logRecorder collects written events.
type logRecorder struct {
	events []*mockEvent
	mu     sync.Mutex
}

func (x *logRecorder) Write(event *mockEvent) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.events = append(x.events, event)
	return nil
}

func (x *logRecorder) Messages() []string {
	x.mu.Lock()
	defer x.mu.Unlock()
	msgs := make([]string, len(x.events))
	for i, e := range x.events {
		msgs[i] = e.msg
	}
	return msgs
}

func (x *logRecorder) Find(msg string) *mockEvent {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, e := range x.events {
		if e.msg == msg {
			return e
		}
	}
	return nil
}

// newRecordingLogger returns a generic logger, as accepted by WithLogger,
// backed by a logRecorder.
func newRecordingLogger(level logiface.Level) (*logiface.Logger[logiface.Event], *logRecorder) {
	rec := &logRecorder{}
	logger := logiface.New[*mockEvent](
		logiface.WithEventFactory[*mockEvent](logiface.EventFactoryFunc[*mockEvent](func(level logiface.Level) *mockEvent {
			return &mockEvent{level: level, fields: make(map[string]any)}
		})),
		logiface.WithWriter[*mockEvent](rec),
		logiface.WithLevel[*mockEvent](level),
	)
	return logger.Logger(), rec
}

func (e *mockEvent) AddUint64(key string, val uint64) bool {
	e.fields[key] = val
	return true
}
