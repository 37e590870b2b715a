// Package simvm is an in-process stand-in for a managed runtime. It keeps a
// class and method table, a controllable monotonic clock and the agent's event
// subscriptions, and delivers events the way the real runtime does.
package simvm

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ihippik/vm-trace/internal/vmtrace"
)

var (
	ErrInvalidClass   = errors.New("invalid class")
	ErrInvalidMethod  = errors.New("invalid method")
	ErrMustPossessCap = errors.New("must possess capability")
	ErrNotAvailable   = errors.New("not available")
	ErrDoubleRelease  = errors.New("allocation released twice")
	ErrEnableRejected = errors.New("event notification rejected")
)

type method struct {
	name  string
	class vmtrace.Class
}

// Machine implements vmtrace.VM and vmtrace.Env.
type Machine struct {
	clock       atomic.Int64
	outstanding atomic.Int64

	mu        sync.RWMutex
	versions  []int32
	classes   map[vmtrace.Class]string
	methods   map[vmtrace.Method]method
	nextID    uintptr
	caps      vmtrace.Capabilities
	handler   vmtrace.Handler
	enabled   map[vmtrace.Kind]bool
	rejected  map[vmtrace.Kind]bool
	clockFail bool
	errs      []error
}

var (
	_ vmtrace.VM  = (*Machine)(nil)
	_ vmtrace.Env = (*Machine)(nil)
)

func New() *Machine {
	return &Machine{
		versions: []int32{vmtrace.Version},
		classes:  make(map[vmtrace.Class]string),
		methods:  make(map[vmtrace.Method]method),
		enabled:  make(map[vmtrace.Kind]bool),
		rejected: make(map[vmtrace.Kind]bool),
	}
}

// SupportVersions replaces the interface versions Env accepts.
func (m *Machine) SupportVersions(versions ...int32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.versions = versions
}

// RejectEvent makes EnableEvent fail for kind.
func (m *Machine) RejectEvent(kind vmtrace.Kind) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rejected[kind] = true
}

// BreakClock makes Time fail.
func (m *Machine) BreakClock() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.clockFail = true
}

// SetTime sets the monotonic clock to ns.
func (m *Machine) SetTime(ns int64) {
	m.clock.Store(ns)
}

// Advance moves the clock forward by ns and returns the new time.
func (m *Machine) Advance(ns int64) int64 {
	return m.clock.Add(ns)
}

// DefineClass registers a class with the given type signature.
func (m *Machine) DefineClass(signature string) vmtrace.Class {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	c := vmtrace.Class(m.nextID)
	m.classes[c] = signature

	return c
}

// DefineMethod registers a method declared by class.
func (m *Machine) DefineMethod(class vmtrace.Class, name string) vmtrace.Method {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	id := vmtrace.Method(m.nextID)
	m.methods[id] = method{name: name, class: class}

	return id
}

// Unload drops a class and its methods, leaving stale handles behind.
func (m *Machine) Unload(class vmtrace.Class) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.classes, class)

	for id, meth := range m.methods {
		if meth.class == class {
			delete(m.methods, id)
		}
	}
}

// Outstanding returns the number of allocations handed out and not released.
func (m *Machine) Outstanding() int64 {
	return m.outstanding.Load()
}

// Capabilities returns what the agent has added so far.
func (m *Machine) Capabilities() vmtrace.Capabilities {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.caps
}

// Enabled reports whether kind is delivered.
func (m *Machine) Enabled(kind vmtrace.Kind) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.enabled[kind] && m.handler != nil
}

// Errors returns misuse the agent made of the interface, such as double releases.
func (m *Machine) Errors() []error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]error(nil), m.errs...)
}

func (m *Machine) Env(version int32) (vmtrace.Env, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, v := range m.versions {
		if v == version {
			return m, nil
		}
	}

	return nil, fmt.Errorf("version %#x: %w", version, vmtrace.ErrUnsupportedVersion)
}

func (m *Machine) Time() (int64, error) {
	m.mu.RLock()
	broken := m.clockFail
	m.mu.RUnlock()

	if broken {
		return 0, ErrNotAvailable
	}

	return m.clock.Load(), nil
}

func (m *Machine) AddCapabilities(caps vmtrace.Capabilities) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.caps.AllClassHookEvents = m.caps.AllClassHookEvents || caps.AllClassHookEvents
	m.caps.CompiledMethodLoadEvents = m.caps.CompiledMethodLoadEvents || caps.CompiledMethodLoadEvents
	m.caps.GarbageCollectionEvents = m.caps.GarbageCollectionEvents || caps.GarbageCollectionEvents

	return nil
}

func (m *Machine) SetEventCallbacks(h vmtrace.Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.handler = h

	return nil
}

func (m *Machine) EnableEvent(kind vmtrace.Kind) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.rejected[kind] {
		return fmt.Errorf("%s: %w", kind, ErrEnableRejected)
	}

	switch kind {
	case vmtrace.KindCompiledMethodLoad:
		if !m.caps.CompiledMethodLoadEvents {
			return fmt.Errorf("%s: %w", kind, ErrMustPossessCap)
		}
	case vmtrace.KindGCStart, vmtrace.KindGCFinish:
		if !m.caps.GarbageCollectionEvents {
			return fmt.Errorf("%s: %w", kind, ErrMustPossessCap)
		}
	}

	m.enabled[kind] = true

	return nil
}

func (m *Machine) ClassSignature(class vmtrace.Class) (vmtrace.Allocation, error) {
	m.mu.RLock()
	sig, ok := m.classes[class]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("class %#x: %w", uintptr(class), ErrInvalidClass)
	}

	return m.allocate(sig), nil
}

func (m *Machine) MethodName(id vmtrace.Method) (vmtrace.Allocation, error) {
	m.mu.RLock()
	meth, ok := m.methods[id]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("method %#x: %w", uintptr(id), ErrInvalidMethod)
	}

	return m.allocate(meth.name), nil
}

func (m *Machine) MethodDeclaringClass(id vmtrace.Method) (vmtrace.Class, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	meth, ok := m.methods[id]
	if !ok {
		return 0, fmt.Errorf("method %#x: %w", uintptr(id), ErrInvalidMethod)
	}

	return meth.class, nil
}

func (m *Machine) allocate(s string) *allocation {
	m.outstanding.Add(1)

	// Copy so the agent never aliases table storage.
	return &allocation{m: m, buf: []byte(s)}
}

func (m *Machine) misuse(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.errs = append(m.errs, err)
}

type allocation struct {
	m        *Machine
	buf      []byte
	released atomic.Bool
}

func (a *allocation) String() string {
	return string(a.buf)
}

// Release scribbles over the buffer so use after release shows up in tests.
func (a *allocation) Release() {
	if !a.released.CompareAndSwap(false, true) {
		a.m.misuse(ErrDoubleRelease)
		return
	}

	for i := range a.buf {
		a.buf[i] = '?'
	}

	a.m.outstanding.Add(-1)
}
