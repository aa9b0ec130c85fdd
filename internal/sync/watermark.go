package sync

import (
	"context"
	"fmt"
	"time"

	"classmirror/internal/model"
)

// Overlap subtracted from a watermark before fetching, tolerating the
// source reporting commits slightly out of order. Duplicates inside the
// window are filtered downstream by known-sha exclusion.
const refreshOverlap = 24 * time.Hour

// Wider overlap used when no watermark exists yet and the lower bound is
// bootstrapped from file history instead of a formal cursor.
const bootstrapOverlap = 7 * 24 * time.Hour

// resolveWatermark produces the lower bound below which the repository's
// commits are assumed already captured.
//
// Reprocessing forces a full re-scan (no bound). A prior refresh
// watermark yields refreshed_at minus one day. Otherwise the newest file
// modification time recorded for the owner, minus one week, is used.
// With neither, the whole history is fetched.
func (s *Service) resolveWatermark(ctx context.Context, repo *model.Repo, ownerLogin string) (FetchWindow, error) {
	if s.opts.Reprocess {
		return FetchWindow{}, nil
	}

	if repo.RefreshedAt != nil {
		since := repo.RefreshedAt.Add(-refreshOverlap)
		return FetchWindow{Since: &since}, nil
	}

	latest, err := s.db.LatestFileModTime(ctx, ownerLogin)
	if err != nil {
		return FetchWindow{}, fmt.Errorf("resolving watermark for %s: %w", ownerLogin, err)
	}
	if latest != nil {
		since := latest.Add(-bootstrapOverlap)
		return FetchWindow{Since: &since}, nil
	}

	return FetchWindow{}, nil
}
