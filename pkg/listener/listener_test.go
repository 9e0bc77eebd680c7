package listener

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestListener_HandlesUntilStopped(t *testing.T) {
	in := make(chan int)
	var sum atomic.Int64

	l := New("sum", in, func(v int) error {
		sum.Add(int64(v))
		if v == 2 {
			return errors.New("two is not welcome")
		}
		return nil
	})
	l.Start(context.Background())

	for i := 1; i <= 4; i++ {
		in <- i
	}
	l.Stop()
	l.Stop()

	require.Equal(t, int64(10), sum.Load(), "handler errors do not stop the listener")
	select {
	case <-l.Done():
	default:
		t.Fatal("loop still running after Stop")
	}
}

func TestListener_ClosedChannel(t *testing.T) {
	in := make(chan string)
	l := New("closed", in, func(string) error { return nil })
	l.Start(context.Background())
	close(in)

	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("listener kept running after its channel was closed")
	}
	l.Stop()
}

func TestListener_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l := New("ctx", make(chan int), func(int) error { return nil })
	l.Start(ctx)
	cancel()

	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("listener ignored context cancellation")
	}
	l.Stop()
}

func TestListener_StopWithoutStart(t *testing.T) {
	l := New("idle", make(chan int), func(int) error { return nil })
	l.Stop()
}
