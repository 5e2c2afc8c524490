package query

import (
	"sort"

	"github.com/onnwee/thunderindex/internal/poststore"
)

// ScoreAndTruncate implements §4.5's scoring step: sort the collected union
// by created_at descending (newest first), stable so ties keep the order
// they were collected in, then truncate to maxResults.
func ScoreAndTruncate(posts []poststore.Post, maxResults int) []poststore.Post {
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].CreatedAt > posts[j].CreatedAt
	})
	if maxResults > 0 && len(posts) > maxResults {
		posts = posts[:maxResults]
	}
	return posts
}
