package pd

import (
	"context"
	"encoding/binary"
	"log/slog"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestSession(t *testing.T) *Session {
	t.Helper()
	sess, err := NewSession(SessionConfig{
		Logger:           testLogger(),
		BindIP:           "127.0.0.1",
		Port:             0,
		DefaultCycleTime: 20 * time.Millisecond,
		DefaultTimeout:   200 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })
	return sess
}

// TestSession_PublishSubscribeEndToEnd exercises E1 from the original
// scenario set: a publisher and a subscriber on two independent
// sessions exchange cyclic data over real loopback UDP sockets, and
// the subscriber's callback observes the change.
func TestSession_PublishSubscribeEndToEnd(t *testing.T) {
	t.Parallel()

	pub := newTestSession(t)
	sub := newTestSession(t)

	subAddr := sub.primary.raw.LocalAddr().(*net.UDPAddr)

	var mu sync.Mutex
	var received []byte
	done := make(chan struct{}, 1)

	_, err := sub.Subscribe(Addr{ComID: 500}, 500*time.Millisecond, FlagCallback, nil,
		func(info MsgInfo, payload []byte) {
			mu.Lock()
			received = append([]byte(nil), payload...)
			mu.Unlock()
			select {
			case done <- struct{}{}:
			default:
			}
		}, nil)
	require.NoError(t, err)

	pubElem, err := pub.Publish(Addr{ComID: 500, DstIP: subAddr.IP, DstPort: subAddr.Port}, 10*time.Millisecond, 0, 0, nil, nil)
	require.NoError(t, err)
	require.NoError(t, pub.Put(pubElem, []byte("hello-pd")))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go pub.RunTransmit(ctx)
	go sub.RunReceive(ctx)

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("timed out waiting for subscriber callback")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []byte("hello-pd"), received)
}

// TestSession_SubscriptionTimesOutWithoutData exercises E2: a
// subscription with no publisher ever sending ages past its timeout
// and the timeout callback fires exactly once.
func TestSession_SubscriptionTimesOutWithoutData(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	sess, err := NewSession(SessionConfig{
		Logger: testLogger(),
		BindIP: "127.0.0.1",
		Clock:  clock,
	})
	require.NoError(t, err)
	defer sess.Close()

	var calls int
	var mu sync.Mutex
	_, err = sess.Subscribe(Addr{ComID: 10}, 100*time.Millisecond, FlagCallback, nil,
		func(info MsgInfo, payload []byte) {
			mu.Lock()
			calls++
			mu.Unlock()
		}, nil)
	require.NoError(t, err)

	clock.Advance(150 * time.Millisecond)
	sess.handleTimeOuts()
	sess.handleTimeOuts() // idempotent: must not double-fire

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, calls)
}

func TestSession_PublishRejectsDuplicateComIDAndDstIP(t *testing.T) {
	t.Parallel()
	sess := newTestSession(t)
	addr := Addr{ComID: 1, DstIP: net.ParseIP("10.0.0.1")}
	_, err := sess.Publish(addr, 0, 0, 0, nil, nil)
	require.NoError(t, err)
	_, err = sess.Publish(addr, 0, 0, 0, nil, nil)
	require.Error(t, err)
}

func TestSession_GetReturnsNoDataBeforeFirstPut(t *testing.T) {
	t.Parallel()
	sess := newTestSession(t)
	e, err := sess.Subscribe(Addr{ComID: 2}, 0, 0, nil, nil, nil)
	require.NoError(t, err)
	_, _, err = sess.Get(e)
	require.Error(t, err)
}

func TestSession_StatisticsPublicationReflectsCounters(t *testing.T) {
	t.Parallel()
	sess := newTestSession(t)
	e, err := sess.PublishStatistics()
	require.NoError(t, err)

	sess.stats.mu.Lock()
	sess.stats.numSend = 7
	sess.stats.mu.Unlock()

	require.NoError(t, sess.Put(e, nil))
	payload, _, err := sess.Get(e)
	require.NoError(t, err)
	require.Len(t, payload, 32)
	require.Equal(t, uint32(7), binary.BigEndian.Uint32(payload[0:4]))

	stats := sess.Stats()
	require.Equal(t, uint32(7), stats.NumSend)
}
