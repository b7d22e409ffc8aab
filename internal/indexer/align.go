package indexer

import (
	"context"
	"time"
)

// Alignment is the outcome of a timestamp search.
type Alignment struct {
	Number    uint32
	Timestamp uint64
	// BlockTime is the block time refined from the first sample.
	BlockTime time.Duration
}

type timestampFunc func(ctx context.Context, number uint32) (uint64, error)

// alignToTimestamp searches blocks [0, head] for the one whose timestamp is
// closest to target (milliseconds). The first probe is placed using estimate
// as the block time; the gap between head and that probe refines it. The
// search stops at the first block within two refined block times of target
// and otherwise returns the closest block seen.
func alignToTimestamp(ctx context.Context, target uint64, head uint32, at timestampFunc, estimate time.Duration) (Alignment, error) {
	headTs, err := at(ctx, head)
	if err != nil {
		return Alignment{}, err
	}
	est := uint64(estimate.Milliseconds())
	if est == 0 {
		est = 12_000
	}
	if target >= headTs || head == 0 {
		return Alignment{Number: head, Timestamp: headTs, BlockTime: time.Duration(est) * time.Millisecond}, nil
	}

	back := (headTs - target) / est
	guess := head - 1
	if back < uint64(head) && back > 0 {
		guess = head - uint32(back)
	} else if back >= uint64(head) {
		guess = 0
	}
	guessTs, err := at(ctx, guess)
	if err != nil {
		return Alignment{}, err
	}

	// Blocks without Timestamp.set, such as genesis, read as zero and say
	// nothing about the block time.
	blockTime := est
	if guessTs > 0 && headTs > guessTs {
		blockTime = (headTs - guessTs) / uint64(head-guess)
	}
	if blockTime == 0 {
		blockTime = 1
	}
	bound := 2 * blockTime
	refined := time.Duration(blockTime) * time.Millisecond

	best := Alignment{Number: head, Timestamp: headTs, BlockTime: refined}
	consider := func(n uint32, ts uint64) bool {
		if distance(ts, target) < distance(best.Timestamp, target) {
			best.Number, best.Timestamp = n, ts
		}
		return distance(ts, target) < bound
	}
	if consider(guess, guessTs) {
		return best, nil
	}

	// lo is before target, hi after it.
	lo, hi := uint32(0), head
	last, lastTs := guess, guessTs
	if guessTs < target {
		lo = guess
	} else {
		hi = guess
	}
	for step := 0; hi-lo > 1; step++ {
		if err := ctx.Err(); err != nil {
			return Alignment{}, err
		}
		mid := lo + (hi-lo)/2
		// Odd steps interpolate from the last probe using the refined block
		// time; the result must land strictly inside the bracket.
		if step%2 == 1 && lastTs > 0 {
			if n, ok := interpolate(last, lastTs, target, blockTime); ok && n > lo && n < hi {
				mid = n
			}
		}
		ts, err := at(ctx, mid)
		if err != nil {
			return Alignment{}, err
		}
		if consider(mid, ts) {
			return best, nil
		}
		last, lastTs = mid, ts
		if ts < target {
			lo = mid
		} else {
			hi = mid
		}
	}
	return best, nil
}

func interpolate(from uint32, fromTs, target, blockTime uint64) (uint32, bool) {
	if fromTs < target {
		delta := (target - fromTs) / blockTime
		if delta > uint64(^uint32(0)-from) {
			return 0, false
		}
		return from + uint32(delta), true
	}
	delta := (fromTs - target) / blockTime
	if delta > uint64(from) {
		return 0, false
	}
	return from - uint32(delta), true
}

func distance(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
