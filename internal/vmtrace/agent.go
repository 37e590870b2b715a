package vmtrace

import (
	"fmt"
	"io"
	"log/slog"
)

// Options controls what an attached agent traces and where.
type Options struct {
	// Output receives trace lines. Defaults to Stderr.
	Output io.Writer
	// DottedNames prints java.lang.String instead of java/lang/String.
	DottedNames bool
	// Events limits the enabled event kinds. Empty enables all of them.
	Events []Kind
}

// Agent is the state installed into a VM by Attach.
type Agent struct {
	log    *slog.Logger
	env    Env
	epoch  Epoch
	sink   *Sink
	tracer *Tracer

	enabled []Kind
}

// Attach obtains the instrumentation interface, captures the attach epoch and
// subscribes to runtime events. Only a missing interface or clock is fatal;
// capability and per-event failures are logged and skipped.
func Attach(log *slog.Logger, vm VM, opts Options) (*Agent, error) {
	env, err := vm.Env(Version)
	if err != nil {
		return nil, fmt.Errorf("get env: %w", err)
	}

	output := opts.Output
	if output == nil {
		output = Stderr
	}

	a := &Agent{
		log:  log,
		env:  env,
		sink: NewSink(output),
	}

	start, err := env.Time()
	if err != nil {
		return nil, fmt.Errorf("get time: %w", err)
	}

	if err = a.epoch.Set(start); err != nil {
		return nil, fmt.Errorf("set epoch: %w", err)
	}

	a.tracer = NewTracer(log, env, &a.epoch, a.sink, NewResolver(env, opts.DottedNames))
	a.tracer.Trace("VMTrace started")

	caps := Capabilities{
		AllClassHookEvents:       true,
		CompiledMethodLoadEvents: true,
		GarbageCollectionEvents:  true,
	}
	if err = env.AddCapabilities(caps); err != nil {
		log.Warn("failed to add capabilities", "error", err)
	}

	if err = env.SetEventCallbacks(a.tracer); err != nil {
		log.Warn("failed to set event callbacks", "error", err)
	}

	kinds := opts.Events
	if len(kinds) == 0 {
		kinds = Kinds
	}

	for _, kind := range kinds {
		if err = env.EnableEvent(kind); err != nil {
			log.Warn("failed to enable event", "event", kind.String(), "error", err)
			continue
		}

		a.enabled = append(a.enabled, kind)
	}

	log.Debug("agent attached", "events", len(a.enabled))

	return a, nil
}

// Enabled returns the event kinds the runtime accepted.
func (a *Agent) Enabled() []Kind {
	return a.enabled
}

// Dropped returns the number of trace lines lost to output failures.
func (a *Agent) Dropped() uint64 {
	return a.sink.Dropped()
}
