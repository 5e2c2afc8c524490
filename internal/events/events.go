// Package events decodes opaque event-bus payloads into the typed events
// the ingestion pipeline applies to the post index, per the two wire
// encodings the bus carries: a legacy tagged-binary encoding on the input
// stream and a length-prefixed CBOR encoding on the output stream.
package events

import "errors"

// ErrMalformedPayload is returned for any payload that cannot be decoded
// under either supported wire encoding. Callers increment a parse-failure
// metric and drop the message; there is no poison-pill retry.
var ErrMalformedPayload = errors.New("events: malformed payload")

// Kind distinguishes the decoded event shapes.
type Kind int

const (
	KindOther Kind = iota
	KindCreate
	KindDelete
	KindQuotedDelete
)

// MediaElement is the minimal shape the video-eligibility derivation needs
// from a create event's media payload.
type MediaElement struct {
	IsVideo    bool
	DurationMS int64
}

// CreatePost is the raw decoded shape of a create event's post, before
// has_video has been derived.
type CreatePost struct {
	PostID          int64
	AuthorID        int64
	CreatedAt       int64
	InReplyToPostID *int64
	InReplyToUserID *int64
	IsRetweet       bool
	IsReply         bool
	SourcePostID    *int64
	SourceUserID    *int64
	ConversationID  *int64
	Nullcast        bool
	Media           []MediaElement
}

// CreateEvent carries a freshly created post.
type CreateEvent struct {
	Post CreatePost
}

// DeleteEvent carries a post deletion.
type DeleteEvent struct {
	PostID    int64
	CreatedAt int64
	DeletedAt int64
}

// QuotedDeleteEvent carries the deletion of a post that quoted another; only
// the quoting post's id is meaningful to this index.
type QuotedDeleteEvent struct {
	QuotingPostID int64
}

// Event is the sum type DecodeLegacy and DecodeStructured produce. The typed
// field selected by Kind is populated; for KindOther none of them is.
type Event struct {
	Kind          Kind
	Create        *CreateEvent
	Delete        *DeleteEvent
	QuotedDelete  *QuotedDeleteEvent
}

// DeriveHasVideo implements the decode-time video-eligibility rule: exactly
// one media element, that element is a video, and its duration meets the
// configured minimum. Any other shape — no media, multiple elements, a
// non-video element, or a too-short video — yields false.
func DeriveHasVideo(media []MediaElement, minDurationMS int64) bool {
	if len(media) != 1 {
		return false
	}
	m := media[0]
	return m.IsVideo && m.DurationMS >= minDurationMS
}
