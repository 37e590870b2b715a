package vmtrace_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ihippik/vm-trace/internal/simvm"
	"github.com/ihippik/vm-trace/internal/vmtrace"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func attach(t *testing.T, vm vmtrace.VM, opts vmtrace.Options) (*vmtrace.Agent, *lockedBuffer) {
	t.Helper()

	out := &lockedBuffer{}
	opts.Output = out

	agent, err := vmtrace.Attach(discardLogger(), vm, opts)
	require.NoError(t, err)

	return agent, out
}

func TestAttachSubscribesToAllEvents(t *testing.T) {
	vm := simvm.New()
	agent, out := attach(t, vm, vmtrace.Options{})

	assert.Equal(t, vmtrace.Kinds, agent.Enabled())
	assert.Equal(t, vmtrace.Capabilities{
		AllClassHookEvents:       true,
		CompiledMethodLoadEvents: true,
		GarbageCollectionEvents:  true,
	}, vm.Capabilities())

	for _, kind := range vmtrace.Kinds {
		assert.True(t, vm.Enabled(kind), kind.String())
	}

	assert.Equal(t, []string{"[0.00000] VMTrace started"}, out.Lines())
}

func TestAttachUnsupportedVersion(t *testing.T) {
	vm := simvm.New()
	vm.SupportVersions(0x30020000)

	_, err := vmtrace.Attach(discardLogger(), vm, vmtrace.Options{Output: io.Discard})
	require.ErrorIs(t, err, vmtrace.ErrUnsupportedVersion)
	assert.False(t, vm.Enabled(vmtrace.KindVMStart))
}

func TestAttachBrokenClock(t *testing.T) {
	vm := simvm.New()
	vm.BreakClock()

	_, err := vmtrace.Attach(discardLogger(), vm, vmtrace.Options{Output: io.Discard})
	require.ErrorIs(t, err, simvm.ErrNotAvailable)
}

func TestAttachEnableFailureContinues(t *testing.T) {
	vm := simvm.New()
	vm.RejectEvent(vmtrace.KindClassFileLoad)

	agent, out := attach(t, vm, vmtrace.Options{})

	assert.Len(t, agent.Enabled(), len(vmtrace.Kinds)-1)
	assert.NotContains(t, agent.Enabled(), vmtrace.KindClassFileLoad)
	assert.True(t, vm.Enabled(vmtrace.KindGCFinish))

	vm.LoadClass("Lcom/example/Foo;")

	assert.Equal(t, []string{
		"[0.00000] VMTrace started",
		"[0.00000] Class prepared: com/example/Foo",
	}, out.Lines())
}

func TestAttachEventFilter(t *testing.T) {
	vm := simvm.New()
	agent, out := attach(t, vm, vmtrace.Options{
		Events: []vmtrace.Kind{vmtrace.KindGCStart, vmtrace.KindGCFinish},
	})

	assert.Equal(t, []vmtrace.Kind{vmtrace.KindGCStart, vmtrace.KindGCFinish}, agent.Enabled())

	vm.Start()
	vm.CollectGarbage(20_000_000)
	vm.Init()

	assert.Equal(t, []string{
		"[0.00000] VMTrace started",
		"[0.00000] GC started",
		"[0.02000] GC finished",
	}, out.Lines())
}

func TestVMStartAndInit(t *testing.T) {
	vm := simvm.New()
	_, out := attach(t, vm, vmtrace.Options{})

	vm.SetTime(5_000_000)
	vm.Start()
	vm.SetTime(10_000_000)
	vm.Init()

	assert.Equal(t, []string{
		"[0.00000] VMTrace started",
		"[0.00500] VM started",
		"[0.01000] VM initialized",
	}, out.Lines())
}

func TestTimestampsRelativeToAttach(t *testing.T) {
	vm := simvm.New()
	vm.SetTime(7_000_000_000)

	_, out := attach(t, vm, vmtrace.Options{})

	vm.SetTime(8_234_567_890)
	vm.Start()

	assert.Equal(t, "[1.23456] VM started", out.Lines()[1])
}

func TestClassEvents(t *testing.T) {
	vm := simvm.New()
	_, out := attach(t, vm, vmtrace.Options{})

	vm.LoadClass("Lcom/example/Foo;")

	assert.Equal(t, []string{
		"[0.00000] VMTrace started",
		"[0.00000] Loading class: com/example/Foo",
		"[0.00000] Class prepared: com/example/Foo",
	}, out.Lines())
	assert.Zero(t, vm.Outstanding())
}

func TestClassEventsDotted(t *testing.T) {
	vm := simvm.New()
	_, out := attach(t, vm, vmtrace.Options{DottedNames: true})

	foo := vm.LoadClass("Lcom/example/Foo;")
	vm.Compile(vm.DefineMethod(foo, "run"), 64)

	assert.Equal(t, []string{
		"[0.00000] VMTrace started",
		"[0.00000] Loading class: com.example.Foo",
		"[0.00000] Class prepared: com.example.Foo",
		"[0.00000] Method compiled: com.example.Foo.run",
	}, out.Lines())
}

func TestClassPreparedUnresolved(t *testing.T) {
	vm := simvm.New()
	_, out := attach(t, vm, vmtrace.Options{})

	foo := vm.DefineClass("Lcom/example/Foo;")
	vm.Unload(foo)
	vm.Prepare(foo)

	assert.Equal(t, "[0.00000] Class prepared: <unresolved>", out.Lines()[1])
}

func TestMethodCompiled(t *testing.T) {
	vm := simvm.New()
	_, out := attach(t, vm, vmtrace.Options{})

	foo := vm.DefineClass("Lcom/example/Foo;")
	vm.Advance(30_000)
	vm.Compile(vm.DefineMethod(foo, "run"), 128)

	assert.Equal(t, "[0.00003] Method compiled: com/example/Foo.run", out.Lines()[1])
	assert.Zero(t, vm.Outstanding())
	assert.Empty(t, vm.Errors())
}

func TestDynamicCodeAndGC(t *testing.T) {
	vm := simvm.New()
	_, out := attach(t, vm, vmtrace.Options{})

	vm.GenerateStub("Interpreter", 4096)
	vm.Advance(1_500_000_000)
	vm.CollectGarbage(2_500_000)

	assert.Equal(t, []string{
		"[0.00000] VMTrace started",
		"[0.00000] Dynamic code generated: Interpreter",
		"[1.50000] GC started",
		"[1.50250] GC finished",
	}, out.Lines())
}

// panickyEnv panics while resolving class signatures.
type panickyEnv struct {
	*simvm.Machine
}

func (panickyEnv) ClassSignature(vmtrace.Class) (vmtrace.Allocation, error) {
	panic("corrupted class table")
}

type panickyVM struct {
	env panickyEnv
}

func (v panickyVM) Env(int32) (vmtrace.Env, error) {
	return v.env, nil
}

func TestCallbackPanicDoesNotEscape(t *testing.T) {
	vm := simvm.New()
	_, out := attach(t, panickyVM{env: panickyEnv{vm}}, vmtrace.Options{})

	assert.NotPanics(t, func() {
		vm.Prepare(vm.DefineClass("Lcom/example/Foo;"))
	})

	vm.Init()

	assert.Equal(t, []string{
		"[0.00000] VMTrace started",
		"[0.00000] VM initialized",
	}, out.Lines())
}

func TestPlayConcurrentWorkers(t *testing.T) {
	const classes = 200

	vm := simvm.New()
	agent, out := attach(t, vm, vmtrace.Options{})

	err := vm.Play(context.Background(), simvm.Script{Classes: classes, Workers: 8, Step: 10_000})
	require.NoError(t, err)

	lines := out.Lines()

	// start line, VM start, four stubs, load+prepare+compile per class, GC pair, VM init
	require.Len(t, lines, 1+1+4+3*classes+2+1)
	assert.Contains(t, lines[1], "VM started")
	assert.Contains(t, lines[len(lines)-1], "VM initialized")

	counts := make(map[string]int)

	for _, line := range lines {
		_, msg, ok := strings.Cut(line, "] ")
		require.True(t, ok, line)

		kind, _, _ := strings.Cut(msg, ":")
		counts[kind]++
	}

	assert.Equal(t, classes, counts["Loading class"])
	assert.Equal(t, classes, counts["Class prepared"])
	assert.Equal(t, classes, counts["Method compiled"])
	assert.NotContains(t, strings.Join(lines, "\n"), vmtrace.Unresolved)
	assert.Zero(t, vm.Outstanding())
	assert.Zero(t, agent.Dropped())
}
