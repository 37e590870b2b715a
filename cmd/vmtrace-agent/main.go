//go:build jvmti

// Command vmtrace-agent is the JVM agent library. Build it with
//
//	CGO_CFLAGS="-I$JAVA_HOME/include -I$JAVA_HOME/include/linux" \
//		go build -tags jvmti -buildmode=c-shared -o libvmtrace.so ./cmd/vmtrace-agent
//
// and load it with java -agentpath:/path/libvmtrace.so[=key=value,...].
package main

/*
#include <jvmti.h>
*/
import "C"

import (
	"context"
	"log/slog"
	"os"
	"unsafe"

	scfg "github.com/ihippik/config"

	"github.com/ihippik/vm-trace/internal/config"
	"github.com/ihippik/vm-trace/internal/jvmti"
	"github.com/ihippik/vm-trace/internal/vmtrace"
)

var (
	agent       *vmtrace.Agent
	logger      *slog.Logger
	closeOutput func() error
)

//export Agent_OnLoad
func Agent_OnLoad(vm *C.JavaVM, options *C.char, _ unsafe.Pointer) C.jint {
	var opts string
	if options != nil {
		opts = C.GoString(options)
	}

	if err := attach(unsafe.Pointer(vm), opts); err != nil {
		if logger == nil {
			logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
		}

		logger.Error("attach failed", "error", err)

		return C.JNI_ERR
	}

	return C.JNI_OK
}

//export Agent_OnUnload
func Agent_OnUnload(_ *C.JavaVM) {
	if agent == nil {
		return
	}

	if dropped := agent.Dropped(); dropped > 0 {
		logger.Warn("trace lines dropped", "count", dropped)
	}

	if err := closeOutput(); err != nil {
		logger.Warn("failed to close trace output", "error", err)
	}
}

func attach(vm unsafe.Pointer, options string) error {
	version := scfg.GetVersion()

	cfg, err := config.InitConfig(context.Background(), options)
	if err != nil {
		return err
	}

	logger = cfg.InitSlog(version)

	output, closer, err := cfg.OpenOutput()
	if err != nil {
		return err
	}

	opts, err := cfg.AgentOptions(output)
	if err != nil {
		_ = closer()
		return err
	}

	a, err := vmtrace.Attach(logger, jvmti.NewVM(vm), opts)
	if err != nil {
		_ = closer()
		return err
	}

	agent, closeOutput = a, closer

	return nil
}

func main() {}
