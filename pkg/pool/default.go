package pool

import (
	"context"
	"sync"
)

var (
	defaultOnce sync.Once
	defaultPool *Pool
)

// Default returns the process-wide shared pool, starting it on first use
// with the default configuration. Code that needs isolation (tests in
// particular) should construct its own pool with New instead.
func Default() *Pool {
	defaultOnce.Do(func() {
		p, err := New(nil)
		if err != nil {
			panic(err) // DefaultConfig is always valid
		}
		if err := p.Start(context.Background()); err != nil {
			panic(err)
		}
		defaultPool = p
	})
	return defaultPool
}
