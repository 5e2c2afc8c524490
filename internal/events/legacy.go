package events

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Legacy tagged-binary wire format, modeled on the input stream's original
// tagged binary protocol framing: a version byte, a type tag byte, then a
// fixed field sequence for that type. Optional fields are preceded by a
// one-byte presence flag. All integers are big-endian.
const (
	legacyVersion1 = 1

	legacyTypeCreate       = 1
	legacyTypeDelete       = 2
	legacyTypeQuotedDelete = 3
)

type legacyReader struct {
	r *bytes.Reader
}

func (lr *legacyReader) readUint8() (uint8, error) {
	b, err := lr.r.ReadByte()
	if err != nil {
		return 0, err
	}
	return b, nil
}

func (lr *legacyReader) readInt64() (int64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(lr.r, buf[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(buf[:])), nil
}

func (lr *legacyReader) readOptionalInt64() (*int64, error) {
	present, err := lr.readUint8()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	v, err := lr.readInt64()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (lr *legacyReader) readBool() (bool, error) {
	b, err := lr.readUint8()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

// DecodeLegacy decodes a payload in the legacy tagged-binary encoding.
func DecodeLegacy(payload []byte) (Event, error) {
	lr := &legacyReader{r: bytes.NewReader(payload)}

	version, err := lr.readUint8()
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if version != legacyVersion1 {
		return Event{}, fmt.Errorf("%w: unsupported version %d", ErrMalformedPayload, version)
	}

	typeTag, err := lr.readUint8()
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	switch typeTag {
	case legacyTypeCreate:
		return lr.decodeCreate()
	case legacyTypeDelete:
		return lr.decodeDelete()
	case legacyTypeQuotedDelete:
		return lr.decodeQuotedDelete()
	default:
		return Event{Kind: KindOther}, nil
	}
}

func (lr *legacyReader) decodeCreate() (Event, error) {
	fail := func(err error) (Event, error) { return Event{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err) }

	postID, err := lr.readInt64()
	if err != nil {
		return fail(err)
	}
	authorID, err := lr.readInt64()
	if err != nil {
		return fail(err)
	}
	createdAt, err := lr.readInt64()
	if err != nil {
		return fail(err)
	}
	inReplyToPostID, err := lr.readOptionalInt64()
	if err != nil {
		return fail(err)
	}
	inReplyToUserID, err := lr.readOptionalInt64()
	if err != nil {
		return fail(err)
	}
	isRetweet, err := lr.readBool()
	if err != nil {
		return fail(err)
	}
	isReply, err := lr.readBool()
	if err != nil {
		return fail(err)
	}
	nullcast, err := lr.readBool()
	if err != nil {
		return fail(err)
	}
	sourcePostID, err := lr.readOptionalInt64()
	if err != nil {
		return fail(err)
	}
	sourceUserID, err := lr.readOptionalInt64()
	if err != nil {
		return fail(err)
	}
	conversationID, err := lr.readOptionalInt64()
	if err != nil {
		return fail(err)
	}
	mediaCount, err := lr.readUint8()
	if err != nil {
		return fail(err)
	}

	media := make([]MediaElement, 0, mediaCount)
	for i := uint8(0); i < mediaCount; i++ {
		isVideo, err := lr.readBool()
		if err != nil {
			return fail(err)
		}
		durationMS, err := lr.readInt64()
		if err != nil {
			return fail(err)
		}
		media = append(media, MediaElement{IsVideo: isVideo, DurationMS: durationMS})
	}

	return Event{
		Kind: KindCreate,
		Create: &CreateEvent{Post: CreatePost{
			PostID:          postID,
			AuthorID:        authorID,
			CreatedAt:       createdAt,
			InReplyToPostID: inReplyToPostID,
			InReplyToUserID: inReplyToUserID,
			IsRetweet:       isRetweet,
			IsReply:         isReply,
			Nullcast:        nullcast,
			SourcePostID:    sourcePostID,
			SourceUserID:    sourceUserID,
			ConversationID:  conversationID,
			Media:           media,
		}},
	}, nil
}

func (lr *legacyReader) decodeDelete() (Event, error) {
	fail := func(err error) (Event, error) { return Event{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err) }

	postID, err := lr.readInt64()
	if err != nil {
		return fail(err)
	}
	createdAt, err := lr.readInt64()
	if err != nil {
		return fail(err)
	}
	deletedAt, err := lr.readInt64()
	if err != nil {
		return fail(err)
	}

	return Event{
		Kind: KindDelete,
		Delete: &DeleteEvent{
			PostID:    postID,
			CreatedAt: createdAt,
			DeletedAt: deletedAt,
		},
	}, nil
}

func (lr *legacyReader) decodeQuotedDelete() (Event, error) {
	quotingPostID, err := lr.readInt64()
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return Event{
		Kind:         KindQuotedDelete,
		QuotedDelete: &QuotedDeleteEvent{QuotingPostID: quotingPostID},
	}, nil
}

// EncodeLegacy is the inverse of DecodeLegacy, used by tests to construct
// fixtures without hand-assembling byte slices.
func EncodeLegacy(e Event) []byte {
	var buf bytes.Buffer
	buf.WriteByte(legacyVersion1)

	writeInt64 := func(v int64) {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(v))
		buf.Write(b[:])
	}
	writeOptionalInt64 := func(v *int64) {
		if v == nil {
			buf.WriteByte(0)
			return
		}
		buf.WriteByte(1)
		writeInt64(*v)
	}
	writeBool := func(v bool) {
		if v {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	}

	switch e.Kind {
	case KindCreate:
		buf.WriteByte(legacyTypeCreate)
		p := e.Create.Post
		writeInt64(p.PostID)
		writeInt64(p.AuthorID)
		writeInt64(p.CreatedAt)
		writeOptionalInt64(p.InReplyToPostID)
		writeOptionalInt64(p.InReplyToUserID)
		writeBool(p.IsRetweet)
		writeBool(p.IsReply)
		writeBool(p.Nullcast)
		writeOptionalInt64(p.SourcePostID)
		writeOptionalInt64(p.SourceUserID)
		writeOptionalInt64(p.ConversationID)
		buf.WriteByte(uint8(len(p.Media)))
		for _, m := range p.Media {
			writeBool(m.IsVideo)
			writeInt64(m.DurationMS)
		}
	case KindDelete:
		buf.WriteByte(legacyTypeDelete)
		writeInt64(e.Delete.PostID)
		writeInt64(e.Delete.CreatedAt)
		writeInt64(e.Delete.DeletedAt)
	case KindQuotedDelete:
		buf.WriteByte(legacyTypeQuotedDelete)
		writeInt64(e.QuotedDelete.QuotingPostID)
	default:
		buf.WriteByte(0xFF)
	}

	return buf.Bytes()
}
