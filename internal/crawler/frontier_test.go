package crawler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFrontierDeduplicates(t *testing.T) {
	f := NewFrontier(2)
	require.True(t, f.Add("https://example.com/a", 0, ""))
	require.False(t, f.Add("https://example.com/a", 0, ""))
	// Normalized equivalents are the same entry.
	require.False(t, f.Add("HTTPS://EXAMPLE.COM/a/", 1, ""))
	require.Equal(t, 1, f.Len())
}

func TestFrontierDepthCap(t *testing.T) {
	f := NewFrontier(1)
	require.True(t, f.Add("https://example.com/a", 1, ""))
	require.False(t, f.Add("https://example.com/b", 2, ""))
}

func TestFrontierRejectsInvalidURLs(t *testing.T) {
	f := NewFrontier(2)
	require.False(t, f.Add("/relative", 0, ""))
	require.False(t, f.Add("", 0, ""))
	require.Equal(t, 0, f.Len())
}

func TestFrontierFIFO(t *testing.T) {
	f := NewFrontier(2)
	f.Add("https://example.com/1", 0, "")
	f.Add("https://example.com/2", 0, "")
	f.Add("https://example.com/3", 0, "")

	for _, want := range []string{"https://example.com/1", "https://example.com/2", "https://example.com/3"} {
		task, ok := f.Next()
		require.True(t, ok)
		require.Equal(t, want, task.URL)
		f.Done()
	}
}

func TestFrontierDrainsWhenLastTaskCompletes(t *testing.T) {
	f := NewFrontier(2)
	f.Add("https://example.com/a", 0, "")

	task, ok := f.Next()
	require.True(t, ok)
	require.Equal(t, "https://example.com/a", task.URL)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ok := f.Next()
		require.False(t, ok)
	}()

	// The blocked Next must wake once the only in-flight task finishes.
	time.Sleep(20 * time.Millisecond)
	f.Done()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Next did not return after frontier drained")
	}
}

func TestFrontierInFlightTaskCanAddChildren(t *testing.T) {
	f := NewFrontier(2)
	f.Add("https://example.com/parent", 0, "")

	parent, ok := f.Next()
	require.True(t, ok)
	require.True(t, f.Add("https://example.com/child", 1, parent.URL))
	f.Done()

	child, ok := f.Next()
	require.True(t, ok)
	require.Equal(t, "https://example.com/child", child.URL)
	require.Equal(t, "https://example.com/parent", child.Origin)
	f.Done()

	_, ok = f.Next()
	require.False(t, ok)
}

func TestFrontierCloseWakesWaiters(t *testing.T) {
	f := NewFrontier(2)
	f.Add("https://example.com/a", 0, "")
	_, ok := f.Next()
	require.True(t, ok)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ok := f.Next()
		require.False(t, ok)
	}()

	time.Sleep(20 * time.Millisecond)
	f.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Next did not return after Close")
	}
	require.False(t, f.Add("https://example.com/b", 0, ""))
}

func TestFrontierConcurrentAddsClaimOnce(t *testing.T) {
	f := NewFrontier(2)
	const workers = 16

	var wg sync.WaitGroup
	accepted := make([]bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			accepted[idx] = f.Add("https://example.com/contested", 0, "")
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, ok := range accepted {
		if ok {
			wins++
		}
	}
	require.Equal(t, 1, wins)
	require.True(t, f.Visited("https://example.com/contested"))
}
