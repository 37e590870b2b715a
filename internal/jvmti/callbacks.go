//go:build jvmti

package jvmti

/*
#include "bridge.h"
*/
import "C"

import (
	"sync/atomic"
	"unsafe"

	"github.com/ihippik/vm-trace/internal/vmtrace"
)

type handlerBox struct {
	h vmtrace.Handler
}

var current atomic.Pointer[handlerBox]

func setHandler(h vmtrace.Handler) {
	current.Store(&handlerBox{h: h})
}

func handler() vmtrace.Handler {
	if box := current.Load(); box != nil {
		return box.h
	}

	return nil
}

//export vtVMStart
func vtVMStart() {
	if h := handler(); h != nil {
		h.VMStart()
	}
}

//export vtVMInit
func vtVMInit() {
	if h := handler(); h != nil {
		h.VMInit()
	}
}

//export vtClassFileLoad
func vtClassFileLoad(name *C.char) {
	h := handler()
	if h == nil {
		return
	}

	if name == nil {
		h.ClassFileLoad(vmtrace.Unresolved)
		return
	}

	h.ClassFileLoad(C.GoString(name))
}

//export vtClassPrepare
func vtClassPrepare(klass C.jclass) {
	if h := handler(); h != nil {
		h.ClassPrepare(vmtrace.Class(uintptr(unsafe.Pointer(klass))))
	}
}

//export vtDynamicCodeGenerated
func vtDynamicCodeGenerated(name *C.char, addr unsafe.Pointer, length C.jint) {
	h := handler()
	if h == nil {
		return
	}

	stub := vmtrace.Unresolved
	if name != nil {
		stub = C.GoString(name)
	}

	h.DynamicCodeGenerated(stub, uintptr(addr), int32(length))
}

//export vtCompiledMethodLoad
func vtCompiledMethodLoad(method C.jmethodID, codeSize C.jint, codeAddr unsafe.Pointer) {
	if h := handler(); h != nil {
		h.CompiledMethodLoad(vmtrace.Method(uintptr(unsafe.Pointer(method))), int32(codeSize), uintptr(codeAddr))
	}
}

//export vtGCStart
func vtGCStart() {
	if h := handler(); h != nil {
		h.GCStart()
	}
}

//export vtGCFinish
func vtGCFinish() {
	if h := handler(); h != nil {
		h.GCFinish()
	}
}
