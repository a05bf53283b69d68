package browser

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubSession struct {
	id     string
	err    error
	closed atomic.Bool
}

func (s *stubSession) ID() string { return s.id }

func (s *stubSession) Navigate(context.Context, string) (Page, error) {
	if s.err != nil {
		return Page{}, s.err
	}
	return Page{HTML: "<html></html>", FinalURL: "https://stub.test"}, nil
}

func (s *stubSession) Close() error {
	s.closed.Store(true)
	return nil
}

func newStubFactory() (Factory, *atomic.Int64) {
	var created atomic.Int64
	factory := func() (Session, error) {
		n := created.Add(1)
		return &stubSession{id: fmt.Sprintf("session-%d", n)}, nil
	}
	return factory, &created
}

func TestPoolReusesIdleSessions(t *testing.T) {
	factory, created := newStubFactory()
	pool, err := NewPool(2, factory, zap.NewNop())
	require.NoError(t, err)
	defer pool.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		lease, err := pool.Acquire(ctx)
		require.NoError(t, err)
		_, err = lease.Navigate(ctx, "https://stub.test")
		require.NoError(t, err)
		lease.Release()
	}
	require.Equal(t, int64(1), created.Load())
}

func TestPoolEnforcesCap(t *testing.T) {
	factory, created := newStubFactory()
	pool, err := NewPool(2, factory, zap.NewNop())
	require.NoError(t, err)
	defer pool.Close()

	ctx := context.Background()
	lease1, err := pool.Acquire(ctx)
	require.NoError(t, err)
	lease2, err := pool.Acquire(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), created.Load())

	// A third Acquire must block until a lease is released.
	acquired := make(chan *Lease, 1)
	go func() {
		lease, err := pool.Acquire(ctx)
		if err == nil {
			acquired <- lease
		}
	}()

	select {
	case <-acquired:
		t.Fatal("third acquire should block while pool is saturated")
	case <-time.After(50 * time.Millisecond):
	}

	lease1.Release()
	select {
	case lease3 := <-acquired:
		lease3.Release()
	case <-time.After(time.Second):
		t.Fatal("acquire did not unblock after release")
	}
	lease2.Release()
	require.Equal(t, int64(2), created.Load())
}

func TestPoolAcquireHonorsContext(t *testing.T) {
	factory, _ := newStubFactory()
	pool, err := NewPool(1, factory, zap.NewNop())
	require.NoError(t, err)
	defer pool.Close()

	lease, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer lease.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = pool.Acquire(ctx)
	require.Error(t, err)
}

func TestPoolRetiresSessionAfterRepeatedErrors(t *testing.T) {
	broken := &stubSession{id: "broken", err: fmt.Errorf("net::ERR_CONNECTION_REFUSED")}
	var created atomic.Int64
	factory := func() (Session, error) {
		if created.Add(1) == 1 {
			return broken, nil
		}
		return &stubSession{id: "fresh"}, nil
	}
	pool, err := NewPool(1, factory, zap.NewNop())
	require.NoError(t, err)
	defer pool.Close()

	ctx := context.Background()

	// Two failing navigations on the same session trigger retirement.
	for i := 0; i < 2; i++ {
		lease, err := pool.Acquire(ctx)
		require.NoError(t, err)
		require.Equal(t, "broken", lease.Session())
		_, err = lease.Navigate(ctx, "https://stub.test")
		require.Error(t, err)
		lease.Release()
	}
	require.True(t, broken.closed.Load())

	lease, err := pool.Acquire(ctx)
	require.NoError(t, err)
	require.Equal(t, "fresh", lease.Session())
	lease.Release()
}

func TestPoolCloseWaitsForLeasesAndClosesSessions(t *testing.T) {
	factory, _ := newStubFactory()
	pool, err := NewPool(1, factory, zap.NewNop())
	require.NoError(t, err)

	lease, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	closed := make(chan struct{})
	go func() {
		defer wg.Done()
		pool.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a lease was outstanding")
	case <-time.After(50 * time.Millisecond):
	}

	lease.Release()
	wg.Wait()

	_, err = pool.Acquire(context.Background())
	require.Error(t, err)
}
