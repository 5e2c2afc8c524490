//go:build integration

package warmup_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os/exec"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/onnwee/thunderindex/internal/poststore"
	"github.com/onnwee/thunderindex/internal/warmup"
)

func skipIfNoDocker(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if exec.CommandContext(ctx, "docker", "info").Run() != nil {
		t.Skip("skipping: docker not available")
	}
}

const schema = `
CREATE TABLE posts (
	post_id BIGINT PRIMARY KEY,
	author_id BIGINT NOT NULL,
	created_at BIGINT NOT NULL,
	in_reply_to_post_id BIGINT,
	in_reply_to_user_id BIGINT,
	is_retweet BOOLEAN NOT NULL,
	is_reply BOOLEAN NOT NULL,
	source_post_id BIGINT,
	source_user_id BIGINT,
	has_video BOOLEAN NOT NULL,
	conversation_id BIGINT
)`

func TestLoaderRunPopulatesStoreFromPostgres(t *testing.T) {
	skipIfNoDocker(t)

	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("thunderindex"),
		postgres.WithUsername("thunderindex"),
		postgres.WithPassword("thunderindex"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("warning: failed to terminate container: %v", err)
		}
	}()

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	now := int64(1_700_000_000)
	seed := []struct {
		postID, authorID, createdAt int64
		hasVideo                    bool
	}{
		{1, 10, now - 100, false},
		{2, 10, now - 50, true},
		{3, 20, now - 7200, false}, // outside cutoff window
	}
	for _, s := range seed {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO posts (post_id, author_id, created_at, is_retweet, is_reply, has_video)
			 VALUES ($1, $2, $3, false, false, $4)`,
			s.postID, s.authorID, s.createdAt, s.hasVideo,
		); err != nil {
			t.Fatalf("seed row %d: %v", s.postID, err)
		}
	}

	store := poststore.New(3600, 500)
	loader := warmup.NewLoader(db, store, slog.Default(), 1000)

	cutoff := now - 3600
	if err := loader.Run(ctx, cutoff, now); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := store.PostCount(); got != 2 {
		t.Errorf("PostCount() = %d, want 2 (row outside retention window must be excluded)", got)
	}

	refs := store.Snapshot("original", 10, 10)
	if len(refs) != 2 {
		t.Fatalf("Snapshot(original, 10) len = %d, want 2", len(refs))
	}
	if refs[0].PostID != 2 {
		t.Errorf("Snapshot()[0].PostID = %d, want 2 (newest first)", refs[0].PostID)
	}

	videoRefs := store.Snapshot("video", 10, 10)
	if len(videoRefs) != 1 || videoRefs[0].PostID != 2 {
		t.Errorf("video snapshot = %+v, want exactly post 2", videoRefs)
	}
}
