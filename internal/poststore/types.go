// Package poststore implements the sharded, concurrent, time-windowed post
// index: the authoritative post map, the three per-author timelines, the
// tombstone set, and the retention trimmer that keeps them bounded.
package poststore

// Post is the canonical record for a single post, keyed by PostID in the
// Store's posts map.
type Post struct {
	PostID          int64
	AuthorID        int64
	CreatedAt       int64 // unix seconds
	InReplyToPostID *int64
	InReplyToUserID *int64
	IsRetweet       bool
	IsReply         bool
	SourcePostID    *int64
	SourceUserID    *int64
	HasVideo        bool
	ConversationID  *int64
}

// IsOriginal reports whether a post is neither a reply nor a retweet.
func (p Post) IsOriginal() bool {
	return !p.IsReply && !p.IsRetweet
}

// TinyRef is the compact (id, timestamp) pair held in author timelines,
// keeping timelines cache-dense instead of holding full Post values.
type TinyRef struct {
	PostID    int64
	CreatedAt int64
}
