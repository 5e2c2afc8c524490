// Package filters implements the two auxiliary, stateless post-query
// transforms noted (but not core) in §4.6: retweet dedup and self-author
// exclusion.
package filters

import "github.com/onnwee/thunderindex/internal/poststore"

// DedupRetweets keeps only the first occurrence of any underlying post_id,
// whether that post_id was seen directly or as a retweet's source. Order is
// preserved.
func DedupRetweets(posts []poststore.Post) []poststore.Post {
	seen := make(map[int64]struct{}, len(posts))
	out := make([]poststore.Post, 0, len(posts))
	for _, p := range posts {
		key := p.PostID
		if p.IsRetweet && p.SourcePostID != nil {
			key = *p.SourcePostID
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p)
	}
	return out
}

// DropSelfAuthored removes posts whose author is the viewer themselves.
func DropSelfAuthored(posts []poststore.Post, viewerID int64) []poststore.Post {
	out := make([]poststore.Post, 0, len(posts))
	for _, p := range posts {
		if p.AuthorID == viewerID {
			continue
		}
		out = append(out, p)
	}
	return out
}
