package simvm

import (
	"context"
	"fmt"
	"sync"
)

// Script describes a synthetic VM start-up.
type Script struct {
	Classes int
	Workers int
	// Step is added to the clock before each event.
	Step int64
}

var stubs = []string{"Interpreter", "flush_icache_stub", "StubRoutines (1)", "vtable chunks"}

var methods = []string{"<init>", "run", "hashCode", "equals", "toString"}

// Play runs the script: VM start, stub generation, class loading on Workers
// goroutines with their methods compiled, one GC cycle, VM init.
func (m *Machine) Play(ctx context.Context, s Script) error {
	if s.Workers < 1 {
		s.Workers = 1
	}

	m.Advance(s.Step)
	m.Start()

	for i, stub := range stubs {
		m.Advance(s.Step)
		m.GenerateStub(stub, int32(128*(i+1)))
	}

	jobs := make(chan int)

	var wg sync.WaitGroup

	for w := 0; w < s.Workers; w++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := range jobs {
				m.Advance(s.Step)
				class := m.LoadClass(fmt.Sprintf("Lcom/example/gen/Class%d;", i))

				m.Advance(s.Step)
				m.Compile(m.DefineMethod(class, methods[i%len(methods)]), int32(64+i))
			}
		}()
	}

	var err error

feed:
	for i := 0; i < s.Classes; i++ {
		if err = ctx.Err(); err != nil {
			break
		}

		select {
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		case jobs <- i:
		}
	}

	close(jobs)
	wg.Wait()

	if err != nil {
		return fmt.Errorf("play: %w", err)
	}

	m.Advance(s.Step)
	m.CollectGarbage(s.Step)

	m.Advance(s.Step)
	m.Init()

	return nil
}
