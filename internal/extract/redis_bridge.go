package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/iconidentify/clipgif/internal/domain"
)

// Default Redis keys.
const (
	DefaultRequestKey  = "clipgif:extract:requests"
	DefaultReplyPrefix = "clipgif:extract:reply:"
)

const replyTTL = 2 * time.Minute

// RedisBridge delegates extraction through Redis lists: requests are pushed
// to one list, and each reply lands on a per-request list the caller
// blocks on.
type RedisBridge struct {
	client      *redis.Client
	requestKey  string
	replyPrefix string
	pollTimeout time.Duration
	logger      *slog.Logger
}

// RedisBridgeConfig configures a RedisBridge.
type RedisBridgeConfig struct {
	RequestKey  string
	ReplyPrefix string
	// PollTimeout bounds each BLPOP in Serve.
	PollTimeout time.Duration
}

// NewRedisBridge creates a bridge over an existing client.
func NewRedisBridge(client *redis.Client, cfg RedisBridgeConfig, logger *slog.Logger) *RedisBridge {
	if cfg.RequestKey == "" {
		cfg.RequestKey = DefaultRequestKey
	}
	if cfg.ReplyPrefix == "" {
		cfg.ReplyPrefix = DefaultReplyPrefix
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = time.Second
	}
	return &RedisBridge{
		client:      client,
		requestKey:  cfg.RequestKey,
		replyPrefix: cfg.ReplyPrefix,
		pollTimeout: cfg.PollTimeout,
		logger:      logger,
	}
}

func (b *RedisBridge) replyKey(id string) string {
	return b.replyPrefix + id
}

// RoundTrip pushes req and blocks on its reply list until ctx expires.
func (b *RedisBridge) RoundTrip(ctx context.Context, req domain.DelegatedRequest) ([]domain.Frame, error) {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	if err := b.client.RPush(ctx, b.requestKey, payload).Err(); err != nil {
		return nil, fmt.Errorf("push request: %w", err)
	}

	timeout := DefaultDelegationTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return nil, context.DeadlineExceeded
		}
	}

	res, err := b.client.BLPop(ctx, timeout, b.replyKey(req.ID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, context.DeadlineExceeded
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("await reply: %w", err)
	}
	if len(res) < 2 {
		return nil, errors.New("malformed reply")
	}

	var resp domain.DelegatedResponse
	if err := json.Unmarshal([]byte(res[1]), &resp); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("delegated extraction: %s", resp.Error)
	}
	return resp.Frames, nil
}

// ServeFunc handles one delegated request on the serving side.
type ServeFunc func(ctx context.Context, req domain.DelegatedRequest) ([]domain.Frame, error)

// Serve pops requests and answers them with fn until ctx is done.
func (b *RedisBridge) Serve(ctx context.Context, fn ServeFunc) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		res, err := b.client.BLPop(ctx, b.pollTimeout, b.requestKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Error("failed to pop extraction request", "error", err)
			time.Sleep(b.pollTimeout)
			continue
		}
		if len(res) < 2 {
			continue
		}

		var req domain.DelegatedRequest
		if err := json.Unmarshal([]byte(res[1]), &req); err != nil {
			b.logger.Error("invalid extraction request payload", "error", err)
			continue
		}

		resp := domain.DelegatedResponse{ID: req.ID}
		frames, err := fn(ctx, req)
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Frames = frames
		}

		if err := b.reply(ctx, resp); err != nil {
			b.logger.Error("failed to send extraction reply", "request_id", req.ID, "error", err)
		}
	}
}

func (b *RedisBridge) reply(ctx context.Context, resp domain.DelegatedResponse) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal reply: %w", err)
	}

	key := b.replyKey(resp.ID)
	pipe := b.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.Expire(ctx, key, replyTTL)
	_, err = pipe.Exec(ctx)
	return err
}
