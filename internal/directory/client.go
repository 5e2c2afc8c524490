// Package directory provides the external collaborator C6 calls to resolve
// a viewer's follow set when a request arrives with an empty author list in
// debug mode.
package directory

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the directory RPC cannot be reached or
// returns a failure; the service surfaces this as an internal error.
var ErrUnavailable = errors.New("directory: fetch_following_list unavailable")

// Client resolves a viewer's follow set.
type Client interface {
	FetchFollowingList(ctx context.Context, viewerID int64, limit int) ([]int64, error)
}

// RPCClient is a minimal gRPC-style client stub: it dials a single address
// and exposes the one method the directory RPC exports. The transport is
// intentionally left to the caller-supplied dialFn so tests and the real
// binary can each wire whatever connection they already hold.
type RPCClient struct {
	addr   string
	dialFn func(ctx context.Context, addr string, viewerID int64, limit int) ([]int64, error)
}

// NewRPCClient builds a directory client bound to addr. dialFn performs the
// actual call; tests substitute a fake, production wiring substitutes a
// real RPC stub.
func NewRPCClient(addr string, dialFn func(ctx context.Context, addr string, viewerID int64, limit int) ([]int64, error)) *RPCClient {
	return &RPCClient{addr: addr, dialFn: dialFn}
}

func (c *RPCClient) FetchFollowingList(ctx context.Context, viewerID int64, limit int) ([]int64, error) {
	if c.dialFn == nil {
		return nil, ErrUnavailable
	}
	ids, err := c.dialFn(ctx, c.addr, viewerID, limit)
	if err != nil {
		return nil, errors.Join(ErrUnavailable, err)
	}
	return ids, nil
}
