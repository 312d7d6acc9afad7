package listener

import "fmt"

// BlockRange represents an inclusive block range.
type BlockRange struct {
	From uint64
	To   uint64
}

// SplitRange splits a block range into batches of size batchSize.
func SplitRange(from, to, batchSize uint64) ([]BlockRange, error) {
	if batchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to block must be >= from block")
	}

	ranges := make([]BlockRange, 0)
	start := from
	for start <= to {
		remaining := to - start + 1
		var end uint64
		if remaining <= batchSize {
			end = to
		} else {
			end = start + batchSize - 1
		}
		ranges = append(ranges, BlockRange{From: start, To: end})
		if end == to {
			break
		}
		start = end + 1
	}

	return ranges, nil
}

// ConfirmedHead is the newest block with at least confirmations blocks
// counted on top of it, the block itself included. ok is false while the
// chain is shorter than that.
func ConfirmedHead(latest, confirmations uint64) (uint64, bool) {
	if confirmations <= 1 {
		return latest, true
	}
	if latest+1 < confirmations {
		return 0, false
	}
	return latest + 1 - confirmations, true
}
