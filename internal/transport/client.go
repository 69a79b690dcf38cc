package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	domain "github.com/alertdesk/alarm-console/internal/domain/alarm"
	"github.com/alertdesk/alarm-console/internal/logger"
	"github.com/alertdesk/alarm-console/internal/protocol"
)

// Handler is the console-side consumer of the connection adapter. The
// console core implements it.
type Handler interface {
	// Deliver feeds one raw envelope payload into the engine.
	Deliver(ctx context.Context, payload []byte) error
	// OnDisconnect reports that a category's channel went down.
	OnDisconnect(category domain.Category)
	// OnReconnect reports that a category's channel is up again.
	OnReconnect(category domain.Category)
}

// defaultResubscribeInterval is the delay between stream re-establishment
// attempts after a channel drops.
const defaultResubscribeInterval = 2 * time.Second

// ErrNotConnected is returned by Send while a category's channel is down.
var ErrNotConnected = errors.New("category channel is not connected")

// Client maintains one Channel stream per subscribed category against the
// feed server and pumps received envelopes into the handler.
type Client struct {
	// conn is the shared gRPC connection.
	conn *grpc.ClientConn
	// handler consumes delivered payloads and connectivity transitions.
	handler Handler
	// ctx bounds all stream goroutines; cancel tears them down.
	ctx    context.Context
	cancel context.CancelFunc
	// resubscribeInterval is the delay between reconnect attempts.
	resubscribeInterval time.Duration

	// mu protects streams.
	mu sync.Mutex
	// streams holds the live stream per category, absent while down.
	streams map[domain.Category]*sendStream
	// wg tracks the per-category pump goroutines.
	wg sync.WaitGroup
}

// sendStream serializes writes to one channel stream. SendMsg is not safe
// for concurrent callers, and backfill requests go out on their own
// goroutines while optimistic actions send on the caller's.
type sendStream struct {
	// mu serializes SendMsg calls.
	mu sync.Mutex
	// stream is the underlying channel stream.
	stream grpc.ClientStream
}

// send dispatches one message under the stream's write lock.
func (s *sendStream) send(msg any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.stream.SendMsg(msg)
}

// Option configures the client.
type Option func(*Client)

// WithResubscribeInterval overrides the stream re-establishment delay.
func WithResubscribeInterval(interval time.Duration) Option {
	return func(c *Client) {
		if interval > 0 {
			c.resubscribeInterval = interval
		}
	}
}

// Dial connects to the feed server. As in the rest of the system the
// transport is plaintext; run it on a trusted network.
func Dial(ctx context.Context, address string, handler Handler, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, errors.New("address must be provided")
	}

	conn, err := grpc.NewClient(address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("dial feed server: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)

	client := &Client{
		conn:                conn,
		handler:             handler,
		ctx:                 runCtx,
		cancel:              cancel,
		resubscribeInterval: defaultResubscribeInterval,
		streams:             make(map[domain.Category]*sendStream),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// Subscribe opens the category's channel and keeps it alive until the
// client is closed, reporting connectivity transitions to the handler.
func (c *Client) Subscribe(category domain.Category) error {
	if !category.Valid() {
		return fmt.Errorf("unknown category %q", category)
	}

	c.wg.Add(1)

	go c.run(category)

	return nil
}

// run is the per-category pump: establish the stream, read until it drops,
// report the transition, retry.
func (c *Client) run(category domain.Category) {
	defer c.wg.Done()

	for {
		if c.ctx.Err() != nil {
			return
		}

		stream, err := c.open(category)
		if err != nil {
			logger.WarnKV(c.ctx, "Channel subscribe failed",
				"category", category,
				"error", err,
			)

			if !c.sleep() {
				return
			}

			continue
		}

		c.setStream(category, stream)
		c.handler.OnReconnect(category)

		c.pump(category, stream)

		c.setStream(category, nil)
		c.handler.OnDisconnect(category)

		if !c.sleep() {
			return
		}
	}
}

// open establishes a Channel stream and sends the subscribe message.
func (c *Client) open(category domain.Category) (*sendStream, error) {
	raw, err := c.conn.NewStream(c.ctx, &channelStreamDesc, ChannelMethod)
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	stream := &sendStream{stream: raw}

	if err := stream.send(protocol.NewSubscribe(category)); err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	return stream, nil
}

// pump forwards received payloads to the handler until the stream fails.
// Reads need no lock; only writes share the stream with other goroutines.
func (c *Client) pump(category domain.Category, stream *sendStream) {
	for {
		var raw json.RawMessage
		if err := stream.stream.RecvMsg(&raw); err != nil {
			if c.ctx.Err() == nil {
				logger.WarnKV(c.ctx, "Channel stream dropped",
					"category", category,
					"error", err,
				)
			}

			return
		}

		// Delivery errors are validation failures, already reported by the
		// engine; the stream keeps going.
		_ = c.handler.Deliver(c.ctx, raw)
	}
}

// sleep waits out the resubscribe interval, returning false on shutdown.
func (c *Client) sleep() bool {
	select {
	case <-c.ctx.Done():
		return false
	case <-time.After(c.resubscribeInterval):
		return true
	}
}

// setStream records or clears the live stream for a category.
func (c *Client) setStream(category domain.Category, stream *sendStream) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if stream == nil {
		delete(c.streams, category)

		return
	}

	c.streams[category] = stream
}

// Send dispatches a client message on the category's channel. It fails with
// ErrNotConnected while the channel is down, which routes optimistic
// actions to their fallback path.
func (c *Client) Send(_ context.Context, category domain.Category, msg *protocol.ClientMessage) error {
	c.mu.Lock()
	stream, ok := c.streams[category]
	c.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotConnected, category)
	}

	if err := stream.send(msg); err != nil {
		return fmt.Errorf("send on %s channel: %w", category, err)
	}

	return nil
}

// Close tears down all streams and the underlying connection.
func (c *Client) Close() error {
	c.cancel()
	c.wg.Wait()

	return c.conn.Close()
}
