package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/chromedp/chromedp"

	"github.com/nao1215/placerank/internal/crawler"
	"github.com/nao1215/placerank/internal/geo"
	"github.com/nao1215/placerank/internal/identity"
	"github.com/nao1215/placerank/internal/model"
)

// Snapshot is the rendered list captured after scrolling.
type Snapshot struct {
	HTML string
	URL  string
}

// Session is one browser process with one tab on a result list.
type Session struct {
	tabCtx   context.Context
	cancels  []context.CancelFunc
	closed   atomic.Bool
	once     sync.Once
	closeErr error

	// URL is the list URL the session navigated to.
	URL string
	// Point is the geolocation the session reports.
	Point geo.Point
	// IdentitySource tells which identity level was used.
	IdentitySource identity.Source
}

var _ crawler.Page = (*Session)(nil)

// newSession wraps a chromedp tab context. cancels are called in order on
// Close, tab first.
func newSession(tabCtx context.Context, cancels ...context.CancelFunc) *Session {
	return &Session{tabCtx: tabCtx, cancels: cancels}
}

// run executes actions on the tab, aborting when ctx ends. The tab itself
// stays open if only ctx is cancelled.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	runCtx, cancel := context.WithCancel(s.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

const scrollScript = `(() => {
  const c = document.querySelector(%q);
  if (c) { c.scrollTo(0, c.scrollHeight); return true; }
  window.scrollTo(0, document.body.scrollHeight);
  return false;
})()`

const countScript = `(() => {
  const els = document.querySelectorAll(%q);
  let organic = 0;
  els.forEach(el => { if (el.getAttribute(%q) !== %q) organic++; });
  return {total: els.length, organic: organic};
})()`

// ScrollToBottom scrolls the list container (or the window when the
// container is missing) to its end.
func (s *Session) ScrollToBottom(ctx context.Context) error {
	var found bool
	script := fmt.Sprintf(scrollScript, crawler.ScrollContainerSelector)
	if err := s.run(ctx, chromedp.Evaluate(script, &found)); err != nil {
		return fmt.Errorf("failed to scroll: %w", err)
	}
	return nil
}

// CountItems counts list rows, total and without ads.
func (s *Session) CountItems(ctx context.Context) (model.Counts, error) {
	var c model.Counts
	script := fmt.Sprintf(countScript, crawler.ItemSelector, crawler.AdAttr, crawler.AdMarker)
	if err := s.run(ctx, chromedp.Evaluate(script, &c)); err != nil {
		return model.Counts{}, fmt.Errorf("failed to count items: %w", err)
	}
	return c, nil
}

// Snapshot captures the rendered document and its current URL.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.run(ctx,
		chromedp.OuterHTML("html", &snap.HTML, chromedp.ByQuery),
		chromedp.Location(&snap.URL),
	)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to capture snapshot: %w", err)
	}
	return snap, nil
}

// Close shuts the tab, the browser and the allocator. It is safe to call
// more than once; later calls return the result of the first.
func (s *Session) Close() error {
	s.once.Do(func() {
		s.closed.Store(true)
		err := chromedp.Cancel(s.tabCtx)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, chromedp.ErrInvalidContext) {
			s.closeErr = fmt.Errorf("failed to close browser: %w", err)
		}
		for _, cancel := range s.cancels {
			cancel()
		}
	})
	return s.closeErr
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	return s.closed.Load()
}
