package vmtrace

import "strings"

// Kind is a runtime event the agent subscribes to.
type Kind uint8

const (
	KindVMStart Kind = iota + 1
	KindVMInit
	KindClassFileLoad
	KindClassPrepare
	KindDynamicCodeGenerated
	KindCompiledMethodLoad
	KindGCStart
	KindGCFinish
)

// Kinds lists every event kind in subscription order.
var Kinds = []Kind{
	KindVMStart,
	KindVMInit,
	KindClassFileLoad,
	KindClassPrepare,
	KindDynamicCodeGenerated,
	KindCompiledMethodLoad,
	KindGCStart,
	KindGCFinish,
}

func (k Kind) String() string {
	switch k {
	case KindVMStart:
		return "vm_start"
	case KindVMInit:
		return "vm_init"
	case KindClassFileLoad:
		return "class_file_load"
	case KindClassPrepare:
		return "class_prepare"
	case KindDynamicCodeGenerated:
		return "dynamic_code_generated"
	case KindCompiledMethodLoad:
		return "compiled_method_load"
	case KindGCStart:
		return "gc_start"
	case KindGCFinish:
		return "gc_finish"
	default:
		return "unknown"
	}
}

// ParseKind maps a kind name as printed by String back to the Kind.
func ParseKind(s string) (Kind, bool) {
	s = strings.ToLower(strings.TrimSpace(s))

	for _, k := range Kinds {
		if k.String() == s {
			return k, true
		}
	}

	return 0, false
}

// Class is an opaque class reference handed out by the runtime.
type Class uintptr

// Method is an opaque method reference handed out by the runtime.
type Method uintptr

// Handler receives runtime events. The runtime may call any method from any
// of its threads, concurrently.
type Handler interface {
	VMStart()
	VMInit()
	ClassFileLoad(name string)
	ClassPrepare(class Class)
	DynamicCodeGenerated(name string, addr uintptr, length int32)
	CompiledMethodLoad(method Method, codeSize int32, codeAddr uintptr)
	GCStart()
	GCFinish()
}
