package service

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/onnwee/thunderindex/internal/auth"
	"github.com/onnwee/thunderindex/internal/poststore"
	"github.com/onnwee/thunderindex/internal/query"
)

func newTestHandler(t *testing.T) (*Handler, *auth.JWTService) {
	t.Helper()
	store := poststore.New(3600, 1000)
	now := int64(1_000_000)
	store.Insert([]poststore.Post{{PostID: 1, AuthorID: 10, CreatedAt: now - 10}}, now)

	engine := query.NewEngine(store, nil)
	admission := NewAdmission(10, nil)
	svc := New(engine, admission, nil, nil, nil, newTestConfig())
	jwtSvc := auth.NewJWTService("test-secret-key-1234567890")
	return NewHandler(svc, jwtSvc, nil), jwtSvc
}

func TestServeGetInNetworkPostsRejectsMissingToken(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/in-network-posts", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	h.ServeGetInNetworkPosts(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestServeGetInNetworkPostsReturnsPosts(t *testing.T) {
	h, jwtSvc := newTestHandler(t)
	token, err := jwtSvc.GenerateViewerToken("1")
	if err != nil {
		t.Fatalf("GenerateViewerToken() error = %v", err)
	}

	body, _ := json.Marshal(getInNetworkPostsRequest{
		FollowingUserIDs: []int64{10},
		MaxResults:       10,
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/in-network-posts", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeGetInNetworkPosts(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp getInNetworkPostsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(resp.Posts) != 1 || resp.Posts[0].PostID != 1 {
		t.Errorf("posts = %+v, want one post with id 1", resp.Posts)
	}
}

func TestServeGetInNetworkPostsRejectsMalformedBody(t *testing.T) {
	h, jwtSvc := newTestHandler(t)
	token, _ := jwtSvc.GenerateViewerToken("1")

	req := httptest.NewRequest(http.MethodPost, "/v1/in-network-posts", bytes.NewBufferString(`not json`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeGetInNetworkPosts(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}
