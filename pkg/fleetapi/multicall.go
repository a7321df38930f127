package fleetapi

import (
	"context"
	"encoding/json"
)

// MultiCallChunked splits calls into composite batches of at most limit
// sub-queries and issues them sequentially. A limit outside (0, MaxCallsPerBatch]
// falls back to the server cap.
//
// When a batch fails, results accumulated from the batches before it are
// returned alongside the error so callers can keep what already succeeded.
func (c *Client) MultiCallChunked(ctx context.Context, calls []Call, limit int) ([]json.RawMessage, error) {
	if limit <= 0 || limit > MaxCallsPerBatch {
		limit = MaxCallsPerBatch
	}

	results := make([]json.RawMessage, 0, len(calls))
	for start := 0; start < len(calls); start += limit {
		end := start + limit
		if end > len(calls) {
			end = len(calls)
		}

		batch, err := c.MultiCall(ctx, calls[start:end])
		results = append(results, batch...)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}
