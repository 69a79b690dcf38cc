package transport

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/metadata"

	domain "github.com/alertdesk/alarm-console/internal/domain/alarm"
	"github.com/alertdesk/alarm-console/internal/protocol"
)

// slowStream is a channel stream whose SendMsg detects overlapping callers.
type slowStream struct {
	// inFlight counts concurrent SendMsg entries.
	inFlight atomic.Int32
	// overlapped is set if two sends ever ran at once.
	overlapped atomic.Bool
	// sent counts completed sends.
	sent atomic.Int32
}

func (s *slowStream) SendMsg(any) error {
	if s.inFlight.Add(1) > 1 {
		s.overlapped.Store(true)
	}

	// Widen the race window.
	time.Sleep(time.Millisecond)

	s.inFlight.Add(-1)
	s.sent.Add(1)

	return nil
}

func (s *slowStream) RecvMsg(any) error            { return io.EOF }
func (s *slowStream) Header() (metadata.MD, error) { return nil, nil }
func (s *slowStream) Trailer() metadata.MD         { return nil }
func (s *slowStream) CloseSend() error             { return nil }
func (s *slowStream) Context() context.Context     { return context.Background() }

// TestSendSerializesStreamWrites hammers one category channel from many
// goroutines, the way backfill requests race optimistic actions, and
// expects every write to reach the stream alone.
func TestSendSerializesStreamWrites(t *testing.T) {
	t.Parallel()

	raw := new(slowStream)
	c := &Client{
		streams: map[domain.Category]*sendStream{
			domain.CategoryEmergency: {stream: raw},
		},
	}

	const senders = 16

	var (
		wg       sync.WaitGroup
		sendErrs atomic.Int32
	)

	for range senders {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if err := c.Send(context.Background(), domain.CategoryEmergency,
				protocol.NewBackfillRequest([]uint64{1})); err != nil {
				sendErrs.Add(1)
			}
		}()
	}

	wg.Wait()

	require.Zero(t, sendErrs.Load())
	require.False(t, raw.overlapped.Load(), "concurrent SendMsg calls on one stream")
	require.Equal(t, int32(senders), raw.sent.Load())
}

// TestSendWhileDisconnected fails fast with ErrNotConnected so optimistic
// actions route to their fallback path.
func TestSendWhileDisconnected(t *testing.T) {
	t.Parallel()

	c := &Client{streams: make(map[domain.Category]*sendStream)}

	err := c.Send(context.Background(), domain.CategoryHistory,
		protocol.NewBackfillRequest([]uint64{2}))
	require.ErrorIs(t, err, ErrNotConnected)
}
