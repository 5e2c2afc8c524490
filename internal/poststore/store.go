package poststore

import (
	"sort"
	"sync"

	"github.com/gammazero/deque"
	"github.com/puzpuzpuz/xsync/v3"
)

// authorDeque wraps a deque.Deque behind its own lock. xsync.MapOf gives us
// a sharded, lock-striped outer map; the per-author deque inside each shard
// still needs its own lock because deque.Deque is not safe for concurrent
// use on its own.
type authorDeque struct {
	mu sync.Mutex
	dq deque.Deque[TinyRef]
}

// DeleteEvent is the decoded shape MarkDeleted consumes.
type DeleteEvent struct {
	PostID    int64
	DeletedAt int64
}

// Store is the sharded, concurrent post index of spec §4.2. No read
// operation may hold a lock on one map while looking up another; every
// cross-map read copies a value out first.
type Store struct {
	posts   *xsync.MapOf[int64, Post]
	deleted *xsync.MapOf[int64, struct{}]

	originalByAuthor  *xsync.MapOf[int64, *authorDeque]
	secondaryByAuthor *xsync.MapOf[int64, *authorDeque]
	videoByAuthor     *xsync.MapOf[int64, *authorDeque]

	tombstones authorDeque

	retentionSeconds   int64
	minVideoDurationMS int64
}

// New creates an empty Store. retentionSeconds and minVideoDurationMS are
// the only two config values the store needs directly; everything else is
// the caller's concern (the query engine, the trimmer's cadence, etc).
func New(retentionSeconds int64, minVideoDurationMS int64) *Store {
	return &Store{
		posts:              xsync.NewMapOf[int64, Post](),
		deleted:            xsync.NewMapOf[int64, struct{}](),
		originalByAuthor:   xsync.NewMapOf[int64, *authorDeque](),
		secondaryByAuthor:  xsync.NewMapOf[int64, *authorDeque](),
		videoByAuthor:      xsync.NewMapOf[int64, *authorDeque](),
		retentionSeconds:   retentionSeconds,
		minVideoDurationMS: minVideoDurationMS,
	}
}

func authorMapFor(kind string, s *Store) *xsync.MapOf[int64, *authorDeque] {
	switch kind {
	case "original":
		return s.originalByAuthor
	case "secondary":
		return s.secondaryByAuthor
	case "video":
		return s.videoByAuthor
	default:
		panic("poststore: unknown timeline kind " + kind)
	}
}

func loadOrCreateDeque(m *xsync.MapOf[int64, *authorDeque], author int64) *authorDeque {
	d, _ := m.LoadOrCompute(author, func() *authorDeque {
		return &authorDeque{}
	})
	return d
}

func (d *authorDeque) pushBack(ref TinyRef) {
	d.mu.Lock()
	d.dq.PushBack(ref)
	d.mu.Unlock()
}

// isVideoEligible implements invariant §3.4: not a reply, and either it
// carries video itself, or it is a retweet of a stored, non-reply,
// video-eligible source post. sourceLookup copies the source Post value out
// under the posts map's own lock before this function ever examines it —
// callers must never hold a shard lock across this call.
func isVideoEligible(p Post, sourceLookup func(id int64) (Post, bool)) bool {
	if p.IsReply {
		return false
	}
	if p.HasVideo {
		return true
	}
	if p.IsRetweet && p.SourcePostID != nil {
		src, ok := sourceLookup(*p.SourcePostID)
		if ok && !src.IsReply && src.HasVideo {
			return true
		}
	}
	return false
}

// Insert applies a batch of freshly decoded posts per spec §4.2: drop
// out-of-window posts, sort by CreatedAt ascending, then admit each post
// exactly once into posts and the appropriate timelines.
func (s *Store) Insert(batch []Post, now int64) {
	fresh := make([]Post, 0, len(batch))
	for _, p := range batch {
		if p.CreatedAt > now || now-p.CreatedAt > s.retentionSeconds {
			continue
		}
		fresh = append(fresh, p)
	}
	sort.Slice(fresh, func(i, j int) bool { return fresh[i].CreatedAt < fresh[j].CreatedAt })

	for _, p := range fresh {
		if _, tombstoned := s.deleted.Load(p.PostID); tombstoned {
			continue
		}
		if _, existed := s.posts.LoadOrStore(p.PostID, p); existed {
			continue
		}

		ref := TinyRef{PostID: p.PostID, CreatedAt: p.CreatedAt}
		if p.IsOriginal() {
			loadOrCreateDeque(s.originalByAuthor, p.AuthorID).pushBack(ref)
		} else {
			loadOrCreateDeque(s.secondaryByAuthor, p.AuthorID).pushBack(ref)
		}

		if isVideoEligible(p, s.getPost) {
			loadOrCreateDeque(s.videoByAuthor, p.AuthorID).pushBack(ref)
		}
	}
}

// getPost copies a Post value out of the posts map. This is the only
// sanctioned way to resolve a cross-reference (e.g. a retweet's source
// post, or a reply's parent) without ever holding two map locks at once.
func (s *Store) getPost(id int64) (Post, bool) {
	return s.posts.Load(id)
}

// GetPost exposes getPost to callers outside the package (the query engine).
func (s *Store) GetPost(id int64) (Post, bool) {
	return s.getPost(id)
}

// IsDeleted reports whether a post_id is tombstoned.
func (s *Store) IsDeleted(id int64) bool {
	_, ok := s.deleted.Load(id)
	return ok
}

// loadDeque returns the author deque for a given timeline kind ("original",
// "secondary", "video") without creating one; writers use
// loadOrCreateDeque instead.
func (s *Store) loadDeque(kind string, author int64) (*authorDeque, bool) {
	return authorMapFor(kind, s).Load(author)
}

// Snapshot copies out up to MAX_TINY_POSTS_PER_USER_SCAN TinyRefs from an
// author's timeline, newest-first. It never returns the deque itself so the
// caller can iterate without holding the per-author lock across other work.
func (s *Store) Snapshot(kind string, author int64, maxScan int) []TinyRef {
	d, ok := s.loadDeque(kind, author)
	if !ok {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	n := d.dq.Len()
	if n > maxScan {
		n = maxScan
	}
	out := make([]TinyRef, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, d.dq.At(d.dq.Len()-1-i))
	}
	return out
}

// MarkDeleted removes posts from the canonical map, tombstones them, and
// records each deletion on the tombstone deque so retention can expire it
// on the same time axis as live posts. Tombstoning is accepted even if the
// create has not yet arrived; FinalizeInit resolves the reordering.
func (s *Store) MarkDeleted(events []DeleteEvent) {
	for _, e := range events {
		s.posts.Delete(e.PostID)
		s.deleted.Store(e.PostID, struct{}{})
		s.tombstones.pushBack(TinyRef{PostID: e.PostID, CreatedAt: e.DeletedAt})
	}
}

// FinalizeInit is called once after a bulk warm-up load: sorts every
// per-author deque, trims stale entries, then removes any post_id from
// posts that also appears in deleted — repairing create/delete reorderings
// introduced during bulk replay.
func (s *Store) FinalizeInit(now int64) {
	sortAll := func(m *xsync.MapOf[int64, *authorDeque]) {
		m.Range(func(_ int64, d *authorDeque) bool {
			d.mu.Lock()
			refs := make([]TinyRef, d.dq.Len())
			for i := range refs {
				refs[i] = d.dq.At(i)
			}
			sort.Slice(refs, func(i, j int) bool { return refs[i].CreatedAt < refs[j].CreatedAt })
			d.dq.Clear()
			for _, r := range refs {
				d.dq.PushBack(r)
			}
			d.mu.Unlock()
			return true
		})
	}
	sortAll(s.originalByAuthor)
	sortAll(s.secondaryByAuthor)
	sortAll(s.videoByAuthor)

	s.Trim(now)

	s.deleted.Range(func(id int64, _ struct{}) bool {
		s.posts.Delete(id)
		return true
	})
}

// PostCount returns the number of canonical posts held, for the stats logger.
func (s *Store) PostCount() int {
	return s.posts.Size()
}

// DeletedCount returns the number of tombstones held, for the stats logger.
func (s *Store) DeletedCount() int {
	return s.deleted.Size()
}

// AuthorCount returns the number of distinct authors with at least one
// timeline entry of the given kind, for the stats logger.
func (s *Store) AuthorCount(kind string) int {
	return authorMapFor(kind, s).Size()
}
