package filters

import (
	"testing"

	"github.com/onnwee/thunderindex/internal/poststore"
)

func TestDedupRetweetsKeepsFirstOccurrence(t *testing.T) {
	sourceID := int64(1)
	posts := []poststore.Post{
		{PostID: 1, AuthorID: 10},
		{PostID: 2, AuthorID: 11, IsRetweet: true, SourcePostID: &sourceID},
	}
	got := DedupRetweets(posts)
	if len(got) != 1 || got[0].PostID != 1 {
		t.Errorf("DedupRetweets() = %+v, want only the original", got)
	}
}

func TestDedupRetweetsKeepsDistinctPosts(t *testing.T) {
	otherID := int64(99)
	posts := []poststore.Post{
		{PostID: 1, AuthorID: 10},
		{PostID: 2, AuthorID: 11, IsRetweet: true, SourcePostID: &otherID},
	}
	got := DedupRetweets(posts)
	if len(got) != 2 {
		t.Errorf("DedupRetweets() = %+v, want both kept", got)
	}
}

func TestDropSelfAuthored(t *testing.T) {
	posts := []poststore.Post{
		{PostID: 1, AuthorID: 10},
		{PostID: 2, AuthorID: 99},
	}
	got := DropSelfAuthored(posts, 99)
	if len(got) != 1 || got[0].PostID != 1 {
		t.Errorf("DropSelfAuthored() = %+v", got)
	}
}
