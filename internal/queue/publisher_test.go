package queue

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/parking-reservation/internal/logger"
)

// silentBroker accepts TCP connections and never writes a byte.
func silentBroker(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	return "amqp://guest:guest@" + ln.Addr().String() + "/"
}

func TestPublishHonoursContextDeadline(t *testing.T) {
	p := NewPublisher(silentBroker(t), "smartparking", logger.Discard())
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := p.Publish(ctx, "smartparking/slot1/status", "1")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestPublishBacksOffAfterFailedDial(t *testing.T) {
	p := NewPublisher(silentBroker(t), "smartparking", logger.Discard())
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	require.Error(t, p.Publish(ctx, "smartparking/slot1/status", "1"))

	start := time.Now()
	for _, kind := range []string{"status", "reservationStatus", "confirmedParkID"} {
		err := p.Publish(context.Background(), "smartparking/slot1/"+kind, "1")
		assert.ErrorIs(t, err, ErrBrokerUnavailable)
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestPublishDoesNotQueueBehindDial(t *testing.T) {
	p := NewPublisher(silentBroker(t), "smartparking", logger.Discard())
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Publish(ctx, "smartparking/slot1/status", "1") }()

	require.Eventually(t, func() bool {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.dialing
	}, 500*time.Millisecond, 5*time.Millisecond)

	start := time.Now()
	assert.ErrorIs(t, p.Publish(context.Background(), "smartparking/slot2/status", "1"), ErrBrokerUnavailable)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	require.Error(t, <-done)
}
