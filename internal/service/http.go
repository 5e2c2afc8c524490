package service

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/onnwee/thunderindex/internal/auth"
	"github.com/onnwee/thunderindex/internal/logging"
	"github.com/onnwee/thunderindex/internal/poststore"
)

// Error codes returned in the JSON error body, matching §6's error kinds.
const (
	ErrCodeUnauthenticated   = "unauthenticated"
	ErrCodeResourceExhausted = "resource_exhausted"
	ErrCodeInternal          = "internal"
	ErrCodeBadRequest        = "bad_request"
)

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, logger *slog.Logger, status int, code, message string) {
	var resp errorResponse
	resp.Error.Code = code
	resp.Error.Message = message
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error("failed to write error response", "error", err)
	}
}

// lightPost is the compressed wire shape for a post in a GetInNetworkPosts
// response, per §6.
type lightPost struct {
	PostID          int64  `json:"post_id"`
	AuthorID        int64  `json:"author_id"`
	CreatedAt       int64  `json:"created_at"`
	InReplyToPostID *int64 `json:"in_reply_to_post_id,omitempty"`
	InReplyToUserID *int64 `json:"in_reply_to_user_id,omitempty"`
	IsRetweet       bool   `json:"is_retweet"`
	IsReply         bool   `json:"is_reply"`
	SourcePostID    *int64 `json:"source_post_id,omitempty"`
	SourceUserID    *int64 `json:"source_user_id,omitempty"`
	HasVideo        bool   `json:"has_video"`
	ConversationID  *int64 `json:"conversation_id,omitempty"`
}

func toLightPost(p poststore.Post) lightPost {
	return lightPost{
		PostID:          p.PostID,
		AuthorID:        p.AuthorID,
		CreatedAt:       p.CreatedAt,
		InReplyToPostID: p.InReplyToPostID,
		InReplyToUserID: p.InReplyToUserID,
		IsRetweet:       p.IsRetweet,
		IsReply:         p.IsReply,
		SourcePostID:    p.SourcePostID,
		SourceUserID:    p.SourceUserID,
		HasVideo:        p.HasVideo,
		ConversationID:  p.ConversationID,
	}
}

type getInNetworkPostsRequest struct {
	FollowingUserIDs []int64 `json:"following_user_ids"`
	ExcludeTweetIDs  []int64 `json:"exclude_tweet_ids"`
	MaxResults       int     `json:"max_results"`
	IsVideoRequest   bool    `json:"is_video_request"`
	Debug            bool    `json:"debug"`
}

type getInNetworkPostsResponse struct {
	Posts []lightPost `json:"posts"`
}

// Handler exposes the single GetInNetworkPosts RPC method over HTTP+JSON.
// The caller's viewer identity comes from a Bearer JWT in the Authorization
// header, validated with authSvc.
type Handler struct {
	svc     *Service
	authSvc *auth.JWTService
	logger  *slog.Logger
}

func NewHandler(svc *Service, authSvc *auth.JWTService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, authSvc: authSvc, logger: logger}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimPrefix(h, prefix)
}

// ServeGetInNetworkPosts handles POST /v1/in-network-posts.
func (h *Handler) ServeGetInNetworkPosts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	viewerID, err := AuthenticateViewer(ctx, h.authSvc, bearerToken(r))
	if err != nil {
		writeError(w, h.logger, http.StatusUnauthorized, ErrCodeUnauthenticated, "invalid or missing viewer token")
		return
	}

	var body getInNetworkPostsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	resp, err := h.svc.GetInNetworkPosts(ctx, Request{
		ViewerID:         viewerID,
		FollowingUserIDs: body.FollowingUserIDs,
		ExcludeTweetIDs:  body.ExcludeTweetIDs,
		MaxResults:       body.MaxResults,
		IsVideoRequest:   body.IsVideoRequest,
		Debug:            body.Debug,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrResourceExhausted):
			writeError(w, h.logger, http.StatusTooManyRequests, ErrCodeResourceExhausted, "admission capacity exceeded")
		default:
			h.logger.Error("get in-network posts failed", "error", err, "request_id", logging.RequestID(ctx))
			writeError(w, h.logger, http.StatusInternalServerError, ErrCodeInternal, "internal error")
		}
		return
	}

	out := getInNetworkPostsResponse{Posts: make([]lightPost, 0, len(resp.Posts))}
	for _, p := range resp.Posts {
		out.Posts = append(out.Posts, toLightPost(p))
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(out); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}
