package events

import (
	"bytes"
	"testing"
)

func int64p(v int64) *int64 { return &v }

func TestLegacyRoundTripCreate(t *testing.T) {
	original := Event{
		Kind: KindCreate,
		Create: &CreateEvent{Post: CreatePost{
			PostID:    1,
			AuthorID:  2,
			CreatedAt: 1000,
			IsRetweet: false,
			IsReply:   true,
			InReplyToPostID: int64p(5),
			Media: []MediaElement{{IsVideo: true, DurationMS: 4000}},
		}},
	}

	encoded := EncodeLegacy(original)
	decoded, err := DecodeLegacy(encoded)
	if err != nil {
		t.Fatalf("DecodeLegacy() error = %v", err)
	}
	if decoded.Kind != KindCreate {
		t.Fatalf("Kind = %v, want KindCreate", decoded.Kind)
	}
	if decoded.Create.Post.PostID != 1 || decoded.Create.Post.AuthorID != 2 {
		t.Errorf("decoded post mismatch: %+v", decoded.Create.Post)
	}
	if decoded.Create.Post.InReplyToPostID == nil || *decoded.Create.Post.InReplyToPostID != 5 {
		t.Errorf("InReplyToPostID mismatch: %+v", decoded.Create.Post.InReplyToPostID)
	}
	if len(decoded.Create.Post.Media) != 1 || !decoded.Create.Post.Media[0].IsVideo {
		t.Errorf("media mismatch: %+v", decoded.Create.Post.Media)
	}
}

func TestLegacyRoundTripCreateNullcast(t *testing.T) {
	original := Event{
		Kind: KindCreate,
		Create: &CreateEvent{Post: CreatePost{
			PostID:    3,
			AuthorID:  4,
			CreatedAt: 1000,
			Nullcast:  true,
		}},
	}

	decoded, err := DecodeLegacy(EncodeLegacy(original))
	if err != nil {
		t.Fatalf("DecodeLegacy() error = %v", err)
	}
	if !decoded.Create.Post.Nullcast {
		t.Error("expected Nullcast to round-trip as true")
	}
}

func TestLegacyRoundTripDelete(t *testing.T) {
	original := Event{Kind: KindDelete, Delete: &DeleteEvent{PostID: 7, CreatedAt: 100, DeletedAt: 200}}
	decoded, err := DecodeLegacy(EncodeLegacy(original))
	if err != nil {
		t.Fatalf("DecodeLegacy() error = %v", err)
	}
	if *decoded.Delete != *original.Delete {
		t.Errorf("decoded delete = %+v, want %+v", decoded.Delete, original.Delete)
	}
}

func TestLegacyTruncatedPayloadIsMalformed(t *testing.T) {
	full := EncodeLegacy(Event{Kind: KindDelete, Delete: &DeleteEvent{PostID: 1, CreatedAt: 2, DeletedAt: 3}})
	_, err := DecodeLegacy(full[:len(full)-3])
	if err == nil {
		t.Fatal("expected malformed payload error for truncated input")
	}
}

func TestLegacyUnknownTypeTagIsOther(t *testing.T) {
	decoded, err := DecodeLegacy([]byte{legacyVersion1, 0xAB})
	if err != nil {
		t.Fatalf("unexpected error = %v", err)
	}
	if decoded.Kind != KindOther {
		t.Errorf("Kind = %v, want KindOther", decoded.Kind)
	}
}

func TestStructuredRoundTripCreate(t *testing.T) {
	original := Event{
		Kind: KindCreate,
		Create: &CreateEvent{Post: CreatePost{
			PostID:    10,
			AuthorID:  20,
			CreatedAt: 500,
		}},
	}

	var buf bytes.Buffer
	if err := EncodeStructured(&buf, original, true); err != nil {
		t.Fatalf("EncodeStructured() error = %v", err)
	}

	decoded, err := DecodeStructured(buf.Bytes())
	if err != nil {
		t.Fatalf("DecodeStructured() error = %v", err)
	}
	if decoded.Kind != KindCreate || decoded.Create.Post.PostID != 10 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestStructuredRoundTripDelete(t *testing.T) {
	original := Event{Kind: KindDelete, Delete: &DeleteEvent{PostID: 3, DeletedAt: 99}}

	var buf bytes.Buffer
	if err := EncodeStructured(&buf, original, false); err != nil {
		t.Fatalf("EncodeStructured() error = %v", err)
	}
	decoded, err := DecodeStructured(buf.Bytes())
	if err != nil {
		t.Fatalf("DecodeStructured() error = %v", err)
	}
	if decoded.Delete.PostID != 3 || decoded.Delete.DeletedAt != 99 {
		t.Errorf("decoded delete mismatch: %+v", decoded.Delete)
	}
}

func TestStructuredBadLengthPrefixIsMalformed(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodeStructured(&buf, Event{Kind: KindDelete, Delete: &DeleteEvent{PostID: 1, DeletedAt: 2}}, false); err != nil {
		t.Fatalf("setup error = %v", err)
	}
	corrupted := append([]byte{}, buf.Bytes()...)
	corrupted[3] = 0xFF // blow up the declared length
	if _, err := DecodeStructured(corrupted); err == nil {
		t.Fatal("expected malformed payload error for bad length prefix")
	}
}

func TestDeriveHasVideo(t *testing.T) {
	cases := []struct {
		name  string
		media []MediaElement
		min   int64
		want  bool
	}{
		{"no media", nil, 1000, false},
		{"single eligible video", []MediaElement{{IsVideo: true, DurationMS: 2000}}, 1000, true},
		{"single too-short video", []MediaElement{{IsVideo: true, DurationMS: 500}}, 1000, false},
		{"single non-video", []MediaElement{{IsVideo: false, DurationMS: 5000}}, 1000, false},
		{"multiple elements", []MediaElement{{IsVideo: true, DurationMS: 5000}, {IsVideo: true, DurationMS: 5000}}, 1000, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DeriveHasVideo(tc.media, tc.min); got != tc.want {
				t.Errorf("DeriveHasVideo() = %v, want %v", got, tc.want)
			}
		})
	}
}
