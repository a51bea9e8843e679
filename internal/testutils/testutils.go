package testutils

import (
	"context"
	"testing"

	"github.com/beltegeuse/nanothread/pkg/pool"
)

// StartPool creates and starts an isolated pool for one test, registering
// cleanup so outstanding tasks finish before the test ends.
func StartPool(t testing.TB, config *pool.Config) *pool.Pool {
	t.Helper()

	p, err := pool.New(config)
	if err != nil {
		t.Fatalf("creating pool: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("starting pool: %v", err)
	}
	t.Cleanup(func() {
		_ = p.Close()
	})
	return p
}
