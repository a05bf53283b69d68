// Package browser manages a fixed-size pool of headless Chrome sessions.
package browser

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
)

// Page is the outcome of a rendered navigation.
type Page struct {
	HTML          string
	FinalURL      string
	LoadTime      time.Duration
	Size          int
	ResourceCount int
}

// Session is one exclusive-use headless browser tab. Implementations must
// tolerate repeated navigations and a single Close.
type Session interface {
	ID() string
	Navigate(ctx context.Context, url string) (Page, error)
	Close() error
}

// Factory creates a fresh Session on demand. The pool calls it lazily, both
// for initial growth and to replace retired sessions.
type Factory func() (Session, error)

// chromeSession implements Session on a dedicated chromedp context sharing
// the pool's exec allocator.
type chromeSession struct {
	id        string
	taskCtx   context.Context
	cancel    context.CancelFunc
	timeout   time.Duration
	resources atomic.Int64
}

// NewChromeFactory returns a Factory producing sessions from one shared
// chromedp exec allocator. The returned cancel func tears the allocator down
// and must be called after the pool is closed.
func NewChromeFactory(userAgent string, navTimeout time.Duration) (Factory, context.CancelFunc) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.UserAgent(userAgent),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	factory := func() (Session, error) {
		taskCtx, cancel := chromedp.NewContext(allocCtx)
		if err := chromedp.Run(taskCtx); err != nil {
			cancel()
			return nil, fmt.Errorf("chromedp warmup: %w", err)
		}
		s := &chromeSession{
			id:      uuid.NewString(),
			taskCtx: taskCtx,
			cancel:  cancel,
			timeout: navTimeout,
		}
		chromedp.ListenTarget(taskCtx, func(ev any) {
			if _, ok := ev.(*network.EventResponseReceived); ok {
				s.resources.Add(1)
			}
		})
		return s, nil
	}
	return factory, allocCancel
}

func (s *chromeSession) ID() string {
	return s.id
}

// Navigate loads the URL and returns the rendered DOM with load metrics.
func (s *chromeSession) Navigate(ctx context.Context, url string) (Page, error) {
	runCtx, cancel := context.WithTimeout(s.taskCtx, s.timeout)
	defer cancel()

	// Propagate external cancellation into the chromedp run.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var (
		html     string
		finalURL string
	)
	resourcesBefore := s.resources.Load()
	start := time.Now()
	err := chromedp.Run(runCtx,
		network.Enable(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return Page{}, fmt.Errorf("navigation canceled: %w", ctx.Err())
		}
		return Page{}, fmt.Errorf("navigate %s: %w", url, err)
	}

	return Page{
		HTML:          html,
		FinalURL:      finalURL,
		LoadTime:      time.Since(start),
		Size:          len(html),
		ResourceCount: int(s.resources.Load() - resourcesBefore),
	}, nil
}

func (s *chromeSession) Close() error {
	s.cancel()
	return nil
}
