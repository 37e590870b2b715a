package simvm

import "github.com/ihippik/vm-trace/internal/vmtrace"

func (m *Machine) deliver(kind vmtrace.Kind, fn func(h vmtrace.Handler)) bool {
	m.mu.RLock()
	h := m.handler
	on := m.enabled[kind]
	m.mu.RUnlock()

	if h == nil || !on {
		return false
	}

	fn(h)

	return true
}

// Start delivers the VM start event.
func (m *Machine) Start() bool {
	return m.deliver(vmtrace.KindVMStart, func(h vmtrace.Handler) { h.VMStart() })
}

// Init delivers the VM initialized event.
func (m *Machine) Init() bool {
	return m.deliver(vmtrace.KindVMInit, func(h vmtrace.Handler) { h.VMInit() })
}

// LoadClass defines a class from its signature and delivers the class file
// load hook followed by class prepare, as a class loader would.
func (m *Machine) LoadClass(signature string) vmtrace.Class {
	class := m.DefineClass(signature)
	name := vmtrace.ClassNameFromSignature(signature)

	m.deliver(vmtrace.KindClassFileLoad, func(h vmtrace.Handler) { h.ClassFileLoad(name) })
	m.Prepare(class)

	return class
}

// Prepare delivers class prepare for an existing (or stale) handle.
func (m *Machine) Prepare(class vmtrace.Class) bool {
	return m.deliver(vmtrace.KindClassPrepare, func(h vmtrace.Handler) { h.ClassPrepare(class) })
}

// Compile delivers a compiled method load for id.
func (m *Machine) Compile(id vmtrace.Method, codeSize int32) bool {
	return m.deliver(vmtrace.KindCompiledMethodLoad, func(h vmtrace.Handler) {
		h.CompiledMethodLoad(id, codeSize, 0)
	})
}

// GenerateStub delivers a dynamic code generated event.
func (m *Machine) GenerateStub(name string, length int32) bool {
	return m.deliver(vmtrace.KindDynamicCodeGenerated, func(h vmtrace.Handler) {
		h.DynamicCodeGenerated(name, 0, length)
	})
}

// CollectGarbage delivers a GC start and finish pair, advancing the clock by
// pause nanoseconds in between.
func (m *Machine) CollectGarbage(pause int64) {
	m.deliver(vmtrace.KindGCStart, func(h vmtrace.Handler) { h.GCStart() })
	m.Advance(pause)
	m.deliver(vmtrace.KindGCFinish, func(h vmtrace.Handler) { h.GCFinish() })
}
