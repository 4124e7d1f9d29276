package extract

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/iconidentify/clipgif/internal/domain"
)

// ErrUnknownRequest is returned when a response names no pending request.
var ErrUnknownRequest = errors.New("no pending delegated request with that id")

// Bridge carries a delegated extraction request to the context that owns
// the video and waits for its frames. Implementations must return when ctx
// is done.
type Bridge interface {
	RoundTrip(ctx context.Context, req domain.DelegatedRequest) ([]domain.Frame, error)
}

// ChannelBridge is an in-process Bridge. Requests are published on a
// channel; whoever serves them (the content-script websocket) answers with
// Respond.
type ChannelBridge struct {
	requests chan domain.DelegatedRequest

	mu      sync.Mutex
	pending map[string]chan domain.DelegatedResponse
}

// NewChannelBridge creates a bridge that buffers up to buffer unserved requests.
func NewChannelBridge(buffer int) *ChannelBridge {
	return &ChannelBridge{
		requests: make(chan domain.DelegatedRequest, buffer),
		pending:  make(map[string]chan domain.DelegatedResponse),
	}
}

// Requests is consumed by the serving side.
func (b *ChannelBridge) Requests() <-chan domain.DelegatedRequest {
	return b.requests
}

// Pending reports how many round trips are waiting for a response.
func (b *ChannelBridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Respond completes the round trip named by resp.ID.
func (b *ChannelBridge) Respond(resp domain.DelegatedResponse) error {
	b.mu.Lock()
	reply, ok := b.pending[resp.ID]
	delete(b.pending, resp.ID)
	b.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRequest, resp.ID)
	}
	reply <- resp
	return nil
}

func (b *ChannelBridge) RoundTrip(ctx context.Context, req domain.DelegatedRequest) ([]domain.Frame, error) {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	reply := make(chan domain.DelegatedResponse, 1)
	b.mu.Lock()
	b.pending[req.ID] = reply
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, req.ID)
		b.mu.Unlock()
	}()

	select {
	case b.requests <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case resp := <-reply:
		if resp.Error != "" {
			return nil, fmt.Errorf("delegated extraction: %s", resp.Error)
		}
		return resp.Frames, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
