package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/placerank/internal/browser"
	"github.com/nao1215/placerank/internal/model"
)

const listURL = "https://m.place.naver.com/restaurant/list?query=test&x=126.97&y=37.56&level=top&entry=pll"

func loadList(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "crawler", "testdata", "list_47.html"))
	if err != nil {
		t.Fatalf("failed to read fixture: %v", err)
	}
	return string(data)
}

// fakePage renders steps[n-1] after the n-th scroll and keeps the last
// step once they run out.
type fakePage struct {
	steps   []model.Counts
	scrolls int
	html    string
}

func (p *fakePage) ScrollToBottom(context.Context) error {
	p.scrolls++
	return nil
}

func (p *fakePage) CountItems(context.Context) (model.Counts, error) {
	i := min(max(p.scrolls-1, 0), len(p.steps)-1)
	return p.steps[i], nil
}

func (p *fakePage) Snapshot(context.Context) (browser.Snapshot, error) {
	return browser.Snapshot{HTML: p.html, URL: listURL}, nil
}

// fakeBrowser hands out a new fakePage per session and records targets.
type fakeBrowser struct {
	mu      sync.Mutex
	newPage func() *fakePage
	openErr error
	opens   int
	closes  int
	targets []browser.Target
}

func (b *fakeBrowser) With(_ context.Context, t browser.Target, fn func(Page) error) error {
	b.mu.Lock()
	b.opens++
	b.targets = append(b.targets, t)
	openErr := b.openErr
	b.mu.Unlock()

	if openErr != nil {
		return openErr
	}
	defer func() {
		b.mu.Lock()
		b.closes++
		b.mu.Unlock()
	}()
	return fn(b.newPage())
}

func (b *fakeBrowser) counts() (opens, closes int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opens, b.closes
}

// noDelay returns at once.
type noDelay struct{}

func (noDelay) Delay(ctx context.Context, _, _ time.Duration) error {
	return ctx.Err()
}

// countingDelay records calls.
type countingDelay struct {
	mu    sync.Mutex
	calls int
}

func (d *countingDelay) Delay(ctx context.Context, _, _ time.Duration) error {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	return ctx.Err()
}

func (d *countingDelay) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}
