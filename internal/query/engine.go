// Package query implements C5: the fan-out read algorithm over the post
// index, and the trivial recency scorer that ranks what it collects.
package query

import (
	"context"
	"time"

	"github.com/onnwee/thunderindex/internal/metrics"
	"github.com/onnwee/thunderindex/internal/poststore"
)

// Request is one candidate-generation query. The three per-author caps
// differ by list per §4.5: MaxOriginalPerAuthor bounds the original-pass
// scan, MaxReplyPerAuthor bounds the secondary (reply/retweet) pass, and
// MaxVideoPerAuthor bounds the video-timeline scan when IsVideoRequest.
type Request struct {
	ViewerID             int64
	AuthorIDs            []int64
	ExcludePostIDs       []int64
	MaxResults           int
	MaxOriginalPerAuthor int
	MaxReplyPerAuthor    int
	MaxVideoPerAuthor    int
	IsVideoRequest       bool
	Debug                bool
	MaxInputListLen      int
	MaxScanPerUser       int
}

// Result is the outcome of a fan-out read.
type Result struct {
	Posts      []poststore.Post
	TimedOut   bool
	UniqueAuth int
}

// Engine runs fan-out reads against a Store.
type Engine struct {
	store   *poststore.Store
	metrics *metrics.Metrics
}

func NewEngine(store *poststore.Store, m *metrics.Metrics) *Engine {
	return &Engine{store: store, metrics: m}
}

// Query implements §4.5's fan-out read algorithm exactly: for each author,
// check the deadline, scan its relevant timeline(s) newest-first bounded to
// MaxScanPerUser, apply the per-candidate filters, and stop each pass once
// that pass's per-author cap (MaxOriginalPerAuthor, MaxReplyPerAuthor or
// MaxVideoPerAuthor) has been reached for that author. The collected
// union is then scored and truncated to MaxResults.
func (e *Engine) Query(ctx context.Context, deadline time.Time, req Request) Result {
	authorIDs := req.AuthorIDs
	if req.MaxInputListLen > 0 && len(authorIDs) > req.MaxInputListLen {
		authorIDs = authorIDs[:req.MaxInputListLen]
	}
	excludeSet := make(map[int64]struct{}, len(req.ExcludePostIDs))
	for i, id := range req.ExcludePostIDs {
		if req.MaxInputListLen > 0 && i >= req.MaxInputListLen {
			break
		}
		excludeSet[id] = struct{}{}
	}

	hasFollowing := len(authorIDs) > 0

	var collected []poststore.Post
	timedOut := false
	authorsSeen := make(map[int64]struct{})

	for _, author := range authorIDs {
		if time.Now().After(deadline) {
			timedOut = true
			if e.metrics != nil {
				e.metrics.IncQueryTimeout()
			}
			break
		}

		accepted := e.scanAuthor(author, req, excludeSet, hasFollowing)
		if len(accepted) > 0 {
			authorsSeen[author] = struct{}{}
		}
		collected = append(collected, accepted...)

		select {
		case <-ctx.Done():
			timedOut = true
		default:
		}
		if timedOut {
			break
		}
	}

	now := time.Now().Unix()
	if e.metrics != nil {
		e.metrics.ObservePostStageStats(metrics.StageRetrieved, collected, now)
	}

	collected = ScoreAndTruncate(collected, req.MaxResults)

	if e.metrics != nil {
		e.metrics.ObservePostStageStats(metrics.StageScored, collected, now)
	}

	return Result{
		Posts:      collected,
		TimedOut:   timedOut,
		UniqueAuth: len(authorsSeen),
	}
}

// scanAuthor applies the per-candidate filter chain to one author's
// relevant timeline(s), newest-first, each pass capped by its own
// per-author limit.
func (e *Engine) scanAuthor(author int64, req Request, excludeSet map[int64]struct{}, hasFollowing bool) []poststore.Post {
	maxScan := req.MaxScanPerUser
	if maxScan <= 0 {
		maxScan = 1 << 30
	}
	unbounded := func(n int) int {
		if n <= 0 {
			return 1 << 30
		}
		return n
	}

	var accepted []poststore.Post

	scan := func(refs []poststore.TinyRef, cap int, isSecondaryPass bool) {
		count := 0
		for _, ref := range refs {
			if count >= cap {
				return
			}
			if _, excluded := excludeSet[ref.PostID]; excluded {
				continue
			}
			post, ok := e.store.GetPost(ref.PostID)
			if !ok {
				continue
			}
			if e.store.IsDeleted(ref.PostID) {
				continue
			}
			if post.IsRetweet && post.SourceUserID != nil && *post.SourceUserID == req.ViewerID {
				continue
			}
			if isSecondaryPass && hasFollowing && post.IsReply {
				if !e.replyEligible(post, req) {
					continue
				}
			}
			accepted = append(accepted, post)
			count++
		}
	}

	if req.IsVideoRequest {
		scan(e.store.Snapshot("video", author, maxScan), unbounded(req.MaxVideoPerAuthor), false)
		return accepted
	}

	scan(e.store.Snapshot("original", author, maxScan), unbounded(req.MaxOriginalPerAuthor), false)
	scan(e.store.Snapshot("secondary", author, maxScan), unbounded(req.MaxReplyPerAuthor), true)
	return accepted
}

// replyEligible implements §4.5's reply policy: accept a reply iff the
// replied-to post is stored and original, or the replied-to post is itself
// a reply whose parent equals this reply's conversation_id and this reply
// targets a user inside the follow set.
func (e *Engine) replyEligible(post poststore.Post, req Request) bool {
	if post.InReplyToPostID == nil {
		return false
	}
	parent, ok := e.store.GetPost(*post.InReplyToPostID)
	if !ok {
		return false
	}
	if parent.IsOriginal() {
		return true
	}
	if !parent.IsReply {
		return false
	}
	if post.ConversationID == nil || parent.InReplyToPostID == nil {
		return false
	}
	if *parent.InReplyToPostID != *post.ConversationID {
		return false
	}
	if post.InReplyToUserID == nil {
		return false
	}
	for _, id := range req.AuthorIDs {
		if id == *post.InReplyToUserID {
			return true
		}
	}
	return false
}
