package events

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// structuredCreate and structuredDelete are the "light post" CBOR shapes
// carried on the output stream: a compact create event (the fields of the
// canonical Post record) or a delete event (post_id, deleted_at).
type structuredCreate struct {
	PostID          int64  `cbor:"post_id"`
	AuthorID        int64  `cbor:"author_id"`
	CreatedAt       int64  `cbor:"created_at"`
	InReplyToPostID *int64 `cbor:"in_reply_to_post_id,omitempty"`
	InReplyToUserID *int64 `cbor:"in_reply_to_user_id,omitempty"`
	IsRetweet       bool   `cbor:"is_retweet"`
	IsReply         bool   `cbor:"is_reply"`
	SourcePostID    *int64 `cbor:"source_post_id,omitempty"`
	SourceUserID    *int64 `cbor:"source_user_id,omitempty"`
	ConversationID  *int64 `cbor:"conversation_id,omitempty"`
	HasVideo        bool   `cbor:"has_video"`
}

type structuredDelete struct {
	PostID    int64 `cbor:"post_id"`
	DeletedAt int64 `cbor:"deleted_at"`
}

type structuredEnvelope struct {
	Kind   string            `cbor:"kind"`
	Create *structuredCreate `cbor:"create,omitempty"`
	Delete *structuredDelete `cbor:"delete,omitempty"`
}

// DecodeStructured decodes a single length-prefixed structured message: a
// 4-byte big-endian length followed by that many bytes of CBOR-encoded
// structuredEnvelope. One wire message carries one post event; there is no
// batching at this layer.
func DecodeStructured(payload []byte) (Event, error) {
	if len(payload) < 4 {
		return Event{}, fmt.Errorf("%w: payload shorter than length prefix", ErrMalformedPayload)
	}
	n := binary.BigEndian.Uint32(payload[:4])
	body := payload[4:]
	if uint32(len(body)) != n {
		return Event{}, fmt.Errorf("%w: length prefix %d does not match body length %d", ErrMalformedPayload, n, len(body))
	}

	var env structuredEnvelope
	dec := cbor.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	switch env.Kind {
	case "create":
		if env.Create == nil {
			return Event{}, fmt.Errorf("%w: create envelope missing create body", ErrMalformedPayload)
		}
		c := env.Create
		// has_video arrives pre-derived on this encoding; callers that need
		// the raw media shape must use the legacy decoder instead.
		return Event{
			Kind: KindCreate,
			Create: &CreateEvent{Post: CreatePost{
				PostID:          c.PostID,
				AuthorID:        c.AuthorID,
				CreatedAt:       c.CreatedAt,
				InReplyToPostID: c.InReplyToPostID,
				InReplyToUserID: c.InReplyToUserID,
				IsRetweet:       c.IsRetweet,
				IsReply:         c.IsReply,
				SourcePostID:    c.SourcePostID,
				SourceUserID:    c.SourceUserID,
				ConversationID:  c.ConversationID,
			}},
		}, nil
	case "delete":
		if env.Delete == nil {
			return Event{}, fmt.Errorf("%w: delete envelope missing delete body", ErrMalformedPayload)
		}
		return Event{
			Kind: KindDelete,
			Delete: &DeleteEvent{
				PostID:    env.Delete.PostID,
				DeletedAt: env.Delete.DeletedAt,
			},
		}, nil
	default:
		return Event{Kind: KindOther}, nil
	}
}

// EncodeStructured is the re-emit path: it encodes a create or delete event
// as a length-prefixed CBOR envelope suitable for the output bus.
func EncodeStructured(w io.Writer, e Event, hasVideo bool) error {
	var env structuredEnvelope
	switch e.Kind {
	case KindCreate:
		p := e.Create.Post
		env = structuredEnvelope{
			Kind: "create",
			Create: &structuredCreate{
				PostID:          p.PostID,
				AuthorID:        p.AuthorID,
				CreatedAt:       p.CreatedAt,
				InReplyToPostID: p.InReplyToPostID,
				InReplyToUserID: p.InReplyToUserID,
				IsRetweet:       p.IsRetweet,
				IsReply:         p.IsReply,
				SourcePostID:    p.SourcePostID,
				SourceUserID:    p.SourceUserID,
				ConversationID:  p.ConversationID,
				HasVideo:        hasVideo,
			},
		}
	case KindDelete:
		env = structuredEnvelope{
			Kind: "delete",
			Delete: &structuredDelete{
				PostID:    e.Delete.PostID,
				DeletedAt: e.Delete.DeletedAt,
			},
		}
	default:
		return fmt.Errorf("events: cannot encode event kind %v on the output stream", e.Kind)
	}

	body, err := cbor.Marshal(env)
	if err != nil {
		return fmt.Errorf("events: encode structured envelope: %w", err)
	}

	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(body)))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}
