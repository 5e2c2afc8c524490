package service

import (
	"context"
	"errors"
	"testing"

	"github.com/onnwee/thunderindex/internal/poststore"
	"github.com/onnwee/thunderindex/internal/query"
)

type fakeDirectory struct {
	ids []int64
	err error
}

func (f fakeDirectory) FetchFollowingList(ctx context.Context, viewerID int64, limit int) ([]int64, error) {
	return f.ids, f.err
}

func newTestConfig() Config {
	return Config{
		MaxInputListSize:          1000,
		MaxOriginalPostsPerAuthor: 10,
		MaxReplyPostsPerAuthor:    10,
		MaxVideoPostsPerAuthor:    10,
		MaxTinyPostsPerUserScan:   1000,
		DirectoryFetchLimit:       1000,
		MaxPostsToReturn:          200,
		MaxVideosToReturn:         100,
	}
}

func TestGetInNetworkPostsReturnsPosts(t *testing.T) {
	store := poststore.New(3600, 1000)
	now := int64(1_000_000)
	store.Insert([]poststore.Post{{PostID: 1, AuthorID: 10, CreatedAt: now - 10}}, now)

	engine := query.NewEngine(store, nil)
	admission := NewAdmission(10, nil)
	svc := New(engine, admission, nil, nil, nil, newTestConfig())

	resp, err := svc.GetInNetworkPosts(context.Background(), Request{
		ViewerID:         1,
		FollowingUserIDs: []int64{10},
		MaxResults:       10,
	})
	if err != nil {
		t.Fatalf("GetInNetworkPosts() error = %v", err)
	}
	if len(resp.Posts) != 1 {
		t.Fatalf("len(resp.Posts) = %d, want 1", len(resp.Posts))
	}
}

func TestGetInNetworkPostsRejectsOverCapacity(t *testing.T) {
	store := poststore.New(3600, 1000)
	engine := query.NewEngine(store, nil)
	admission := NewAdmission(1, nil)
	svc := New(engine, admission, nil, nil, nil, newTestConfig())

	release, ok := admission.TryAcquire(context.Background())
	if !ok {
		t.Fatal("expected first acquire to succeed")
	}
	defer release()

	_, err := svc.GetInNetworkPosts(context.Background(), Request{ViewerID: 1, FollowingUserIDs: []int64{10}})
	if !errors.Is(err, ErrResourceExhausted) {
		t.Errorf("error = %v, want ErrResourceExhausted", err)
	}
}

func TestGetInNetworkPostsUsesDirectoryWhenDebugAndEmptyFollowList(t *testing.T) {
	store := poststore.New(3600, 1000)
	now := int64(1_000_000)
	store.Insert([]poststore.Post{{PostID: 1, AuthorID: 55, CreatedAt: now - 10}}, now)

	engine := query.NewEngine(store, nil)
	admission := NewAdmission(10, nil)
	dir := fakeDirectory{ids: []int64{55}}
	svc := New(engine, admission, dir, nil, nil, newTestConfig())

	resp, err := svc.GetInNetworkPosts(context.Background(), Request{
		ViewerID:   1,
		Debug:      true,
		MaxResults: 10,
	})
	if err != nil {
		t.Fatalf("GetInNetworkPosts() error = %v", err)
	}
	if len(resp.Posts) != 1 {
		t.Fatalf("expected directory-resolved author to yield a result, got %+v", resp.Posts)
	}
}

func TestGetInNetworkPostsDirectoryFailureIsInternal(t *testing.T) {
	store := poststore.New(3600, 1000)
	engine := query.NewEngine(store, nil)
	admission := NewAdmission(10, nil)
	dir := fakeDirectory{err: errors.New("rpc down")}
	svc := New(engine, admission, dir, nil, nil, newTestConfig())

	_, err := svc.GetInNetworkPosts(context.Background(), Request{ViewerID: 1, Debug: true})
	if !errors.Is(err, ErrInternal) {
		t.Errorf("error = %v, want ErrInternal", err)
	}
}

func TestEffectiveMaxResultsClampsToConfiguredCeiling(t *testing.T) {
	cfg := Config{MaxPostsToReturn: 200, MaxVideosToReturn: 100}

	if got := cfg.effectiveMaxResults(500, false); got != 200 {
		t.Errorf("effectiveMaxResults(500, false) = %d, want 200", got)
	}
	if got := cfg.effectiveMaxResults(500, true); got != 100 {
		t.Errorf("effectiveMaxResults(500, true) = %d, want 100", got)
	}
	if got := cfg.effectiveMaxResults(50, false); got != 50 {
		t.Errorf("effectiveMaxResults(50, false) = %d, want 50", got)
	}
	if got := cfg.effectiveMaxResults(0, false); got != 200 {
		t.Errorf("effectiveMaxResults(0, false) = %d, want 200", got)
	}
}

func TestGetInNetworkPostsDropsSelfAuthoredPosts(t *testing.T) {
	store := poststore.New(3600, 1000)
	now := int64(1_000_000)
	viewer := int64(1)
	store.Insert([]poststore.Post{{PostID: 1, AuthorID: viewer, CreatedAt: now - 10}}, now)

	engine := query.NewEngine(store, nil)
	admission := NewAdmission(10, nil)
	svc := New(engine, admission, nil, nil, nil, newTestConfig())

	resp, err := svc.GetInNetworkPosts(context.Background(), Request{
		ViewerID:         viewer,
		FollowingUserIDs: []int64{viewer},
		MaxResults:       10,
	})
	if err != nil {
		t.Fatalf("GetInNetworkPosts() error = %v", err)
	}
	if len(resp.Posts) != 0 {
		t.Errorf("expected self-authored post to be filtered out, got %+v", resp.Posts)
	}
}
