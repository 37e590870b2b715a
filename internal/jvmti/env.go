//go:build jvmti

// Package jvmti binds vmtrace to the JVM Tool Interface through cgo. Build
// with -tags jvmti and CGO_CFLAGS pointing at the JDK include directories.
package jvmti

/*
#include "bridge.h"
*/
import "C"

import (
	"fmt"
	"unsafe"

	"github.com/ihippik/vm-trace/internal/vmtrace"
)

// Error is a jvmtiError or JNI result code.
type Error int

func (e Error) Error() string {
	switch e {
	case 20:
		return "jvmti: invalid class"
	case 23:
		return "jvmti: invalid methodid"
	case 98:
		return "jvmti: not available"
	case 99:
		return "jvmti: must possess capability"
	case 112:
		return "jvmti: wrong phase"
	case 116:
		return "jvmti: invalid environment"
	default:
		return fmt.Sprintf("jvmti: error %d", int(e))
	}
}

func check(code C.jvmtiError) error {
	if code != C.JVMTI_ERROR_NONE {
		return Error(code)
	}

	return nil
}

// VM wraps the JavaVM pointer passed to Agent_OnLoad.
type VM struct {
	vm *C.JavaVM
}

var _ vmtrace.VM = (*VM)(nil)

func NewVM(vm unsafe.Pointer) *VM {
	return &VM{vm: (*C.JavaVM)(vm)}
}

func (v *VM) Env(version int32) (vmtrace.Env, error) {
	var env *C.jvmtiEnv

	if rc := C.vt_get_env(v.vm, &env, C.jint(version)); rc != C.JNI_OK || env == nil {
		return nil, fmt.Errorf("version %#x: jni %d: %w", version, int(rc), vmtrace.ErrUnsupportedVersion)
	}

	return &Env{env: env}, nil
}

// Env is a jvmtiEnv.
type Env struct {
	env *C.jvmtiEnv
}

var _ vmtrace.Env = (*Env)(nil)

var events = map[vmtrace.Kind]C.jvmtiEvent{
	vmtrace.KindVMStart:              C.JVMTI_EVENT_VM_START,
	vmtrace.KindVMInit:               C.JVMTI_EVENT_VM_INIT,
	vmtrace.KindClassFileLoad:        C.JVMTI_EVENT_CLASS_FILE_LOAD_HOOK,
	vmtrace.KindClassPrepare:         C.JVMTI_EVENT_CLASS_PREPARE,
	vmtrace.KindDynamicCodeGenerated: C.JVMTI_EVENT_DYNAMIC_CODE_GENERATED,
	vmtrace.KindCompiledMethodLoad:   C.JVMTI_EVENT_COMPILED_METHOD_LOAD,
	vmtrace.KindGCStart:              C.JVMTI_EVENT_GARBAGE_COLLECTION_START,
	vmtrace.KindGCFinish:             C.JVMTI_EVENT_GARBAGE_COLLECTION_FINISH,
}

func (e *Env) Time() (int64, error) {
	var t C.jlong

	if err := check(C.vt_get_time(e.env, &t)); err != nil {
		return 0, err
	}

	return int64(t), nil
}

func (e *Env) AddCapabilities(caps vmtrace.Capabilities) error {
	return check(C.vt_add_capabilities(e.env,
		cbool(caps.AllClassHookEvents),
		cbool(caps.CompiledMethodLoadEvents),
		cbool(caps.GarbageCollectionEvents),
	))
}

func (e *Env) SetEventCallbacks(h vmtrace.Handler) error {
	setHandler(h)

	return check(C.vt_set_event_callbacks(e.env))
}

func (e *Env) EnableEvent(kind vmtrace.Kind) error {
	ev, ok := events[kind]
	if !ok {
		return fmt.Errorf("event %s: %w", kind, Error(C.JVMTI_ERROR_INVALID_EVENT_TYPE))
	}

	return check(C.vt_enable_event(e.env, ev))
}

func (e *Env) ClassSignature(class vmtrace.Class) (vmtrace.Allocation, error) {
	var sig *C.char

	if err := check(C.vt_get_class_signature(e.env, toClass(class), &sig)); err != nil {
		return nil, err
	}

	return &allocation{env: e.env, p: sig}, nil
}

func (e *Env) MethodName(method vmtrace.Method) (vmtrace.Allocation, error) {
	var name *C.char

	if err := check(C.vt_get_method_name(e.env, toMethod(method), &name)); err != nil {
		return nil, err
	}

	return &allocation{env: e.env, p: name}, nil
}

func (e *Env) MethodDeclaringClass(method vmtrace.Method) (vmtrace.Class, error) {
	var klass C.jclass

	if err := check(C.vt_get_method_declaring_class(e.env, toMethod(method), &klass)); err != nil {
		return 0, err
	}

	return vmtrace.Class(uintptr(unsafe.Pointer(klass))), nil
}

// allocation is a string the JVM allocated on the agent's behalf.
type allocation struct {
	env *C.jvmtiEnv
	p   *C.char
}

func (a *allocation) String() string {
	return C.GoString(a.p)
}

func (a *allocation) Release() {
	if a.p == nil {
		return
	}

	C.vt_deallocate(a.env, a.p)
	a.p = nil
}

func cbool(b bool) C.int {
	if b {
		return 1
	}

	return 0
}

// Class and method handles are JVM pointers, never Go memory.
func toClass(c vmtrace.Class) C.jclass {
	return C.jclass(unsafe.Pointer(uintptr(c)))
}

func toMethod(m vmtrace.Method) C.jmethodID {
	return C.jmethodID(unsafe.Pointer(uintptr(m)))
}
