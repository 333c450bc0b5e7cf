package esplora

import (
	"context"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// GetFeeEstimates fetches fee rate estimates in sat/vB keyed by confirmation
// target in blocks.
func (c *Client) GetFeeEstimates(ctx context.Context) (FeeEstimates, error) {
	return call(
		ctx, c.dispatcher, get("fee_estimates", "fee-estimates"),
		decodeFeeEstimates,
	)
}

// ConvertFeeRate returns the estimate for the largest confirmation target
// not above target. None is returned if every estimate targets more blocks.
func ConvertFeeRate(target uint16, estimates FeeEstimates) fn.Option[float64] {
	var (
		best     uint16
		bestRate float64
		found    bool
	)
	for blocks, rate := range estimates {
		if blocks > target || (found && blocks <= best) {
			continue
		}

		best, bestRate, found = blocks, rate, true
	}

	if !found {
		return fn.None[float64]()
	}

	return fn.Some(bestRate)
}
