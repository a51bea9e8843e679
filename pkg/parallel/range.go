package parallel

import (
	"fmt"

	"golang.org/x/exp/constraints"
)

// BlockedRange describes the half-open index interval [Begin, End) to be
// processed in chunks of at most BlockSize indices each.
type BlockedRange[T constraints.Integer] struct {
	Begin     T
	End       T
	BlockSize T
}

// NewBlockedRange creates a range over [begin, end). A blockSize smaller
// than one is treated as one.
func NewBlockedRange[T constraints.Integer](begin, end, blockSize T) BlockedRange[T] {
	if blockSize < 1 {
		blockSize = 1
	}
	return BlockedRange[T]{Begin: begin, End: end, BlockSize: blockSize}
}

// Len returns the number of indices in the range.
func (r BlockedRange[T]) Len() T {
	if r.End <= r.Begin {
		return 0
	}
	return r.End - r.Begin
}

// Empty reports whether the range contains no indices.
func (r BlockedRange[T]) Empty() bool {
	return r.End <= r.Begin
}

// Split partitions the range into an ordered sequence of sub-ranges that
// cover [Begin, End) exactly once without overlap. Every chunk spans at
// most BlockSize indices; only the last one may be shorter.
func (r BlockedRange[T]) Split() []BlockedRange[T] {
	if r.Empty() {
		return nil
	}
	bs := r.BlockSize
	if bs < 1 {
		bs = 1
	}

	n := (uint64(r.End-r.Begin) + uint64(bs) - 1) / uint64(bs)
	chunks := make([]BlockedRange[T], 0, n)
	lo := r.Begin
	for {
		hi := lo + bs
		if hi > r.End || hi < lo { // second test guards wraparound
			hi = r.End
		}
		chunks = append(chunks, BlockedRange[T]{Begin: lo, End: hi, BlockSize: bs})
		if hi >= r.End {
			return chunks
		}
		lo = hi
	}
}

// String returns the interval in half-open notation.
func (r BlockedRange[T]) String() string {
	return fmt.Sprintf("[%d, %d)", r.Begin, r.End)
}
