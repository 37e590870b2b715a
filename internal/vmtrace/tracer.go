package vmtrace

import (
	"fmt"
	"log/slog"
)

// Tracer turns runtime events into trace lines. It is safe for concurrent use.
type Tracer struct {
	log      *slog.Logger
	env      Env
	epoch    *Epoch
	sink     *Sink
	resolver *Resolver
}

var _ Handler = (*Tracer)(nil)

func NewTracer(log *slog.Logger, env Env, epoch *Epoch, sink *Sink, resolver *Resolver) *Tracer {
	return &Tracer{
		log:      log,
		env:      env,
		epoch:    epoch,
		sink:     sink,
		resolver: resolver,
	}
}

// Trace emits msg stamped with the time elapsed since attach.
func (t *Tracer) Trace(msg string) {
	now, err := t.env.Time()
	if err != nil {
		t.log.Debug("failed to read runtime clock", "error", err)
	}

	t.sink.Emit(t.epoch.Since(now), msg)
}

func (t *Tracer) VMStart() {
	defer t.guard(KindVMStart)
	t.Trace("VM started")
}

func (t *Tracer) VMInit() {
	defer t.guard(KindVMInit)
	t.Trace("VM initialized")
}

func (t *Tracer) ClassFileLoad(name string) {
	defer t.guard(KindClassFileLoad)
	t.Trace("Loading class: " + t.resolver.Display(name))
}

func (t *Tracer) ClassPrepare(class Class) {
	defer t.guard(KindClassPrepare)

	name, err := t.resolver.ClassName(class)
	if err != nil {
		name = Unresolved
		t.log.Debug("failed to resolve class", "class", class, "error", err)
	}

	t.Trace("Class prepared: " + name)
}

func (t *Tracer) DynamicCodeGenerated(name string, _ uintptr, _ int32) {
	defer t.guard(KindDynamicCodeGenerated)
	t.Trace("Dynamic code generated: " + name)
}

func (t *Tracer) CompiledMethodLoad(method Method, _ int32, _ uintptr) {
	defer t.guard(KindCompiledMethodLoad)

	name, err := t.resolver.MethodName(method)
	if err != nil {
		t.log.Debug("failed to resolve method", "method", method, "error", err)
	}

	t.Trace("Method compiled: " + name)
}

func (t *Tracer) GCStart() {
	defer t.guard(KindGCStart)
	t.Trace("GC started")
}

func (t *Tracer) GCFinish() {
	defer t.guard(KindGCFinish)
	t.Trace("GC finished")
}

// guard keeps a panicking callback from unwinding into the runtime.
func (t *Tracer) guard(kind Kind) {
	if r := recover(); r != nil {
		t.log.Error("event callback panicked", "event", kind.String(), "error", fmt.Sprint(r))
	}
}
