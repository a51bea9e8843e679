/*
Package parallel provides range-partitioned parallel loops on top of the
pool package.

A BlockedRange describes a half-open index interval and a block size; Split
turns it into an ordered, non-overlapping cover of chunks. For runs one
task per chunk and blocks until all of them have finished, surfacing at
most one failure (the lowest-offset one). ForAsync returns immediately with
a join task that can be awaited or used as a dependency of later loops:

	a, _ := parallel.ForAsync(parallel.NewBlockedRange(0, 1000, 16), produce)
	b, _ := parallel.ForAsync(parallel.NewBlockedRange(0, 1000, 16), consume,
		parallel.WithDependencies(a))
	a.Release()
	if err := b.WaitAndRelease(); err != nil {
		// the original producer failure, message intact
	}
*/
package parallel
