package poststore

import (
	"context"
	"log/slog"
	"time"
)

// StartStatsLogger logs index size at INFO level on every tick until ctx is
// cancelled, grounded on the original implementation's start_stats_logger
// task. It blocks, so callers run it in its own goroutine.
func StartStatsLogger(ctx context.Context, s *Store, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("index stats logger stopping")
			return
		case <-ticker.C:
			logger.Info("index stats",
				"posts", s.PostCount(),
				"deleted", s.DeletedCount(),
				"authors_original", s.AuthorCount("original"),
				"authors_secondary", s.AuthorCount("secondary"),
				"authors_video", s.AuthorCount("video"),
			)
		}
	}
}
