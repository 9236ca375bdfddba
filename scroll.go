package qaboard

import (
	"context"
	"sync"
)

// ScrollTrigger turns a visibility signal (a sentinel row at the end of a
// rendered list) into LoadMore calls, at most one per hidden-to-visible
// transition.
type ScrollTrigger struct {
	feed *Feed

	mu      sync.Mutex
	visible bool
}

// NewScrollTrigger creates a trigger for feed. The sentinel starts hidden.
func NewScrollTrigger(feed *Feed) *ScrollTrigger {
	return &ScrollTrigger{feed: feed}
}

// SetVisible records the sentinel's visibility. On a transition to visible it
// loads the next page, unless the feed is exhausted or already loading.
func (t *ScrollTrigger) SetVisible(ctx context.Context, visible bool) error {
	t.mu.Lock()
	was := t.visible
	t.visible = visible
	t.mu.Unlock()

	if !visible || was {
		return nil
	}
	snap := t.feed.Snapshot()
	if !snap.HasMore || snap.Loading {
		return nil
	}
	return t.feed.LoadMore(ctx)
}
