package vmtrace

import (
	"errors"
	"fmt"
	"strings"
)

// Version is the instrumentation interface version the agent requests.
const Version = 0x30010000 // JVMTI_VERSION_1_0

var (
	ErrUnsupportedVersion = errors.New("instrumentation interface version not supported")
	ErrUnresolved         = errors.New("handle not resolved")
)

// Capabilities is the set of optional runtime features the agent negotiates.
type Capabilities struct {
	AllClassHookEvents       bool
	CompiledMethodLoadEvents bool
	GarbageCollectionEvents  bool
}

// VM is the hosting runtime as seen at attach time.
type VM interface {
	// Env returns the instrumentation interface at the given version.
	Env(version int32) (Env, error)
}

// Env is the instrumentation interface of a running VM.
type Env interface {
	// Time returns the runtime's monotonic clock in nanoseconds.
	Time() (int64, error)
	AddCapabilities(caps Capabilities) error
	SetEventCallbacks(h Handler) error
	EnableEvent(kind Kind) error

	// ClassSignature and MethodName return runtime-owned strings that must be
	// released by the caller.
	ClassSignature(class Class) (Allocation, error)
	MethodName(method Method) (Allocation, error)
	MethodDeclaringClass(method Method) (Class, error)
}

// Allocation is a string buffer owned by the runtime.
type Allocation interface {
	String() string
	Release()
}

// withAllocation acquires a runtime string, hands a copy to use and releases
// the buffer on every path.
func withAllocation(acquire func() (Allocation, error), use func(s string)) error {
	a, err := acquire()
	if err != nil {
		return err
	}

	if a == nil {
		return ErrUnresolved
	}

	defer a.Release()

	use(strings.Clone(a.String()))

	return nil
}

func wrapUnresolved(what string, err error) error {
	if errors.Is(err, ErrUnresolved) {
		return fmt.Errorf("%s: %w", what, err)
	}

	return fmt.Errorf("%s: %w: %w", what, ErrUnresolved, err)
}
