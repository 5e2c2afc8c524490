package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/onnwee/thunderindex/internal/directory"
	"github.com/onnwee/thunderindex/internal/filters"
	"github.com/onnwee/thunderindex/internal/metrics"
	"github.com/onnwee/thunderindex/internal/poststore"
	"github.com/onnwee/thunderindex/internal/query"
)

// ErrResourceExhausted is returned when the admission gate has no free
// permit; callers surface this as a resource-exhausted status.
var ErrResourceExhausted = errors.New("service: resource exhausted")

// ErrInternal wraps a directory RPC failure or a fan-out task failure.
var ErrInternal = errors.New("service: internal error")

// Request is the GetInNetworkPosts RPC request shape of §6.
type Request struct {
	ViewerID         int64
	FollowingUserIDs []int64
	ExcludeTweetIDs  []int64
	MaxResults       int
	IsVideoRequest   bool
	Debug            bool
}

// Response is the GetInNetworkPosts RPC response shape of §6.
type Response struct {
	Posts []poststore.Post
}

// Config bundles the per-request limits §6 enumerates.
type Config struct {
	MaxInputListSize          int
	RequestTimeout            time.Duration // 0 disables the deadline
	MaxOriginalPostsPerAuthor int
	MaxReplyPostsPerAuthor    int
	MaxVideoPostsPerAuthor    int
	MaxTinyPostsPerUserScan   int
	DirectoryFetchLimit       int
	MaxPostsToReturn          int
	MaxVideosToReturn         int
}

// effectiveMaxResults clamps a caller-supplied max_results against the
// configured ceiling for the request kind; a non-positive caller value
// means "use the ceiling".
func (c Config) effectiveMaxResults(requested int, isVideo bool) int {
	ceiling := c.MaxPostsToReturn
	if isVideo {
		ceiling = c.MaxVideosToReturn
	}
	if ceiling <= 0 {
		ceiling = requested
	}
	if requested <= 0 || requested > ceiling {
		return ceiling
	}
	return requested
}

// Service implements C6: admission, optional directory lookup, the
// blocking fan-out read, and the auxiliary filters.
type Service struct {
	engine    *query.Engine
	admission *Admission
	directory directory.Client
	metrics   *metrics.Metrics
	logger    *slog.Logger
	cfg       Config
}

func New(engine *query.Engine, admission *Admission, dirClient directory.Client, m *metrics.Metrics, logger *slog.Logger, cfg Config) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		engine:    engine,
		admission: admission,
		directory: dirClient,
		metrics:   m,
		logger:    logger,
		cfg:       cfg,
	}
}

// GetInNetworkPosts is the single exported RPC method.
func (s *Service) GetInNetworkPosts(ctx context.Context, req Request) (Response, error) {
	release, ok := s.admission.TryAcquire(ctx)
	if !ok {
		return Response{}, ErrResourceExhausted
	}
	defer release()

	authorIDs := req.FollowingUserIDs
	if len(authorIDs) == 0 && req.Debug {
		if s.directory == nil {
			return Response{}, errors.Join(ErrInternal, errors.New("directory client not configured"))
		}
		ids, err := s.directory.FetchFollowingList(ctx, req.ViewerID, s.cfg.DirectoryFetchLimit)
		if err != nil {
			if s.metrics != nil {
				s.metrics.IncDirectoryFailure()
			}
			return Response{}, errors.Join(ErrInternal, err)
		}
		authorIDs = ids
	}

	deadline := time.Now().Add(24 * time.Hour) // effectively unbounded when disabled
	if s.cfg.RequestTimeout > 0 {
		deadline = time.Now().Add(s.cfg.RequestTimeout)
	}

	result := s.engine.Query(ctx, deadline, query.Request{
		ViewerID:             req.ViewerID,
		AuthorIDs:            authorIDs,
		ExcludePostIDs:       req.ExcludeTweetIDs,
		MaxResults:           s.cfg.effectiveMaxResults(req.MaxResults, req.IsVideoRequest),
		MaxOriginalPerAuthor: s.cfg.MaxOriginalPostsPerAuthor,
		MaxReplyPerAuthor:    s.cfg.MaxReplyPostsPerAuthor,
		MaxVideoPerAuthor:    s.cfg.MaxVideoPostsPerAuthor,
		IsVideoRequest:       req.IsVideoRequest,
		Debug:                req.Debug,
		MaxInputListLen:      s.cfg.MaxInputListSize,
		MaxScanPerUser:       s.cfg.MaxTinyPostsPerUserScan,
	})

	posts := filters.DropSelfAuthored(result.Posts, req.ViewerID)
	posts = filters.DedupRetweets(posts)

	return Response{Posts: posts}, nil
}
