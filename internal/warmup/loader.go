// Package warmup implements the bulk loader that replays recent posts from
// Postgres into the index at process startup, so the service does not
// begin serving against an empty index after a restart. This supplements
// the distilled specification, which only describes steady-state ingestion;
// a production deployment restarting the index needs a way to repopulate
// it before accepting traffic.
package warmup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/onnwee/thunderindex/internal/poststore"
)

const selectRecentPosts = `
SELECT post_id, author_id, created_at, in_reply_to_post_id, in_reply_to_user_id,
       is_retweet, is_reply, source_post_id, source_user_id, has_video, conversation_id
FROM posts
WHERE created_at > $1
ORDER BY created_at ASC
`

// Loader bulk-loads posts newer than a retention cutoff into a Store, then
// calls FinalizeInit once the load completes.
type Loader struct {
	db        *sql.DB
	store     *poststore.Store
	logger    *slog.Logger
	batchSize int
}

func NewLoader(db *sql.DB, store *poststore.Store, logger *slog.Logger, batchSize int) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize <= 0 {
		batchSize = 5000
	}
	return &Loader{db: db, store: store, logger: logger, batchSize: batchSize}
}

// Run streams every post newer than cutoff from Postgres, feeding the store
// in batchSize-sized chunks, then finalizes the index.
func (l *Loader) Run(ctx context.Context, cutoff int64, now int64) error {
	rows, err := l.db.QueryContext(ctx, selectRecentPosts, cutoff)
	if err != nil {
		return fmt.Errorf("warmup: query recent posts: %w", err)
	}
	defer rows.Close()

	batch := make([]poststore.Post, 0, l.batchSize)
	total := 0

	flush := func() {
		if len(batch) == 0 {
			return
		}
		l.store.Insert(batch, now)
		total += len(batch)
		batch = batch[:0]
	}

	for rows.Next() {
		var p poststore.Post
		if err := rows.Scan(
			&p.PostID, &p.AuthorID, &p.CreatedAt,
			&p.InReplyToPostID, &p.InReplyToUserID,
			&p.IsRetweet, &p.IsReply,
			&p.SourcePostID, &p.SourceUserID,
			&p.HasVideo, &p.ConversationID,
		); err != nil {
			return fmt.Errorf("warmup: scan post row: %w", err)
		}
		batch = append(batch, p)
		if len(batch) >= l.batchSize {
			flush()
		}
	}
	flush()

	if err := rows.Err(); err != nil {
		return fmt.Errorf("warmup: row iteration: %w", err)
	}

	l.store.FinalizeInit(now)
	l.logger.Info("warm-up load complete", "posts_loaded", total)
	return nil
}
