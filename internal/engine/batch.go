package engine

import (
	"context"

	"github.com/tanq16/wirespeed/internal/utils"
)

// RunBatch measures each target in order, one at a time so the
// measurements do not contend for the same link. A failed probe skips
// to the next target; results line up with targets, with nil for runs
// that never started. The returned error is the first one seen.
func RunBatch(ctx context.Context, targets []utils.TargetEntry, base Config) ([]*Result, error) {
	log := utils.GetLogger("engine")
	results := make([]*Result, len(targets))
	var firstErr error
	for i, target := range targets {
		if ctx.Err() != nil {
			break
		}
		cfg := base
		cfg.URL = target.URL
		if target.Connections > 0 {
			cfg.Connections = target.Connections
		}
		result, err := Run(ctx, cfg)
		if err != nil {
			log.Error().Str("url", target.URL).Err(err).Msg("Measurement failed to start")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		results[i] = result
	}
	return results, firstErr
}
