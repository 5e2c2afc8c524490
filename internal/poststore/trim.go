package poststore

import (
	"context"
	"log/slog"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Trim implements spec §4.3's three-step retention sweep over every
// per-author deque, plus the tombstone deque: pop expired entries from the
// front (they are time-sorted, so the first non-expired entry ends the
// scan), shrink an over-allocated backing array once it holds more than
// twice what it needs, then drop the map entry entirely if the deque is
// left empty — rechecking under the per-author lock to avoid racing a
// concurrent Insert that just pushed a new entry onto the same author.
// It returns the number of TinyRefs removed per timeline.
func (s *Store) Trim(now int64) (originalRemoved, secondaryRemoved, videoRemoved int) {
	originalRemoved = trimAuthorMap(s.originalByAuthor, now, s.retentionSeconds, s.posts.Delete)
	secondaryRemoved = trimAuthorMap(s.secondaryByAuthor, now, s.retentionSeconds, s.posts.Delete)
	videoRemoved = trimAuthorMap(s.videoByAuthor, now, s.retentionSeconds, s.posts.Delete)
	trimDeque(&s.tombstones, now, s.retentionSeconds, s.deleted.Delete)
	return
}

func trimAuthorMap(m *xsync.MapOf[int64, *authorDeque], now int64, retentionSeconds int64, onPop func(postID int64)) int {
	removed := 0
	var toDelete []int64

	m.Range(func(author int64, d *authorDeque) bool {
		removed += trimDeque(d, now, retentionSeconds, onPop)
		d.mu.Lock()
		empty := d.dq.Len() == 0
		d.mu.Unlock()
		if empty {
			toDelete = append(toDelete, author)
		}
		return true
	})

	for _, author := range toDelete {
		ad, present := m.Load(author)
		if !present {
			continue
		}
		ad.mu.Lock()
		stillEmpty := ad.dq.Len() == 0
		ad.mu.Unlock()
		if stillEmpty {
			m.Delete(author)
		}
	}

	return removed
}

// trimDeque pops every front entry older than the retention window and
// shrinks the backing array when it grows past twice its live length. Each
// popped entry's post_id is handed to onPop so the caller can remove the
// corresponding record from posts (or, for the tombstone deque, from
// deleted). It returns how many entries were removed.
func trimDeque(d *authorDeque, now int64, retentionSeconds int64, onPop func(postID int64)) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	for d.dq.Len() > 0 && now-d.dq.Front().CreatedAt > retentionSeconds {
		ref := d.dq.PopFront()
		if onPop != nil {
			onPop(ref.PostID)
		}
		removed++
	}
	if d.dq.Cap() > 2*d.dq.Len() {
		d.dq.SetMinCapacity(minCapacityExp(d.dq.Len()))
	}
	return removed
}

// minCapacityExp returns the exponent e such that 2^e is the smallest power
// of two >= n. gammazero/deque's SetMinCapacity takes this exponent rather
// than a raw capacity.
func minCapacityExp(n int) uint {
	var exp uint
	for size := 1; size < n; size <<= 1 {
		exp++
	}
	return exp
}

// StartTrimmer runs Trim on a fixed interval until ctx is cancelled,
// mirroring the ticker-driven background-service shape used elsewhere in
// this codebase for periodic maintenance work.
func StartTrimmer(ctx context.Context, s *Store, interval time.Duration, logger *slog.Logger, nowFn func() int64, onTrimmed func(timeline string, n int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("retention trimmer stopping")
			return
		case <-ticker.C:
			now := nowFn()
			removedOriginal, removedSecondary, removedVideo := s.Trim(now)

			if onTrimmed != nil {
				onTrimmed("original", removedOriginal)
				onTrimmed("secondary", removedSecondary)
				onTrimmed("video", removedVideo)
			}
			logger.Debug("retention trim completed",
				"original_removed", removedOriginal,
				"secondary_removed", removedSecondary,
				"video_removed", removedVideo,
			)
		}
	}
}
