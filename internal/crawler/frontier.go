package crawler

import "sync"

// Frontier is the queue of URLs awaiting a crawl attempt. It deduplicates by
// normalized URL, enforces the depth cap, and pops in FIFO order so the crawl
// is breadth-first. The visited check and the insert happen under one lock so
// two workers can never claim the same URL.
type Frontier struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []CrawlTask
	visited  map[string]struct{}
	maxDepth int
	inFlight int
	closed   bool
}

// NewFrontier creates a frontier with the given depth cap.
func NewFrontier(maxDepth int) *Frontier {
	f := &Frontier{
		visited:  make(map[string]struct{}),
		maxDepth: maxDepth,
	}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Add enqueues a URL unless it is already visited, its depth exceeds the cap,
// or it fails normalization. Dropping is a policy outcome, not an error, so
// Add reports acceptance and never fails.
func (f *Frontier) Add(rawURL string, depth int, origin string) bool {
	if depth > f.maxDepth {
		return false
	}
	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	if _, seen := f.visited[normalized]; seen {
		return false
	}
	f.visited[normalized] = struct{}{}
	f.queue = append(f.queue, CrawlTask{URL: normalized, Depth: depth, Origin: origin})
	f.cond.Signal()
	return true
}

// Next blocks until a task is available and transfers ownership to the
// caller. It returns ok=false once the frontier is drained (empty queue and
// no task in flight) or closed. Every successful Next must be paired with a
// Done call.
func (f *Frontier) Next() (CrawlTask, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for {
		if len(f.queue) > 0 {
			task := f.queue[0]
			f.queue = f.queue[1:]
			f.inFlight++
			return task, true
		}
		if f.closed || f.inFlight == 0 {
			return CrawlTask{}, false
		}
		f.cond.Wait()
	}
}

// Done signals that a task handed out by Next has finished, including any
// child Add calls. When the last in-flight task completes with an empty
// queue, all blocked Next callers are released.
func (f *Frontier) Done() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inFlight > 0 {
		f.inFlight--
	}
	if f.inFlight == 0 && len(f.queue) == 0 {
		f.cond.Broadcast()
	}
}

// Close wakes all blocked Next callers and rejects further Adds. Used for the
// external stop signal; in-flight tasks finish on their own.
func (f *Frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.cond.Broadcast()
}

// Len reports the number of queued (not in-flight) tasks.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// Visited reports whether the normalized form of rawURL has been enqueued
// this session.
func (f *Frontier) Visited(rawURL string) bool {
	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, seen := f.visited[normalized]
	return seen
}
