package qaboard

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
)

// Pager is the paging collaborator behind a Feed.
//
// FetchPage must return questions already in feed order (see SortsBefore),
// consistent with the tail of the previous page. A Feed never re-validates
// that order. cursor is nil for the first page.
type Pager interface {
	FetchPage(ctx context.Context, pageSize int, cursor *Cursor) (*Page, error)
}

// DefaultPageSize is used when FeedOptions.PageSize is not set.
const DefaultPageSize = 20

// FeedOptions configures a Feed.
type FeedOptions struct {
	PageSize int
	Logger   *log.Logger
}

// ============================================================================
// Event Emitter
// ============================================================================

// Feed events.
const (
	EventReplaced = "feed.replaced"
	EventAppended = "feed.appended"
	EventChanged  = "feed.changed"
	EventError    = "feed.error"
)

// FeedEventHandler handles feed events. The payload is a FeedSnapshot for
// replaced/appended, a Change for changed and an error for error.
type FeedEventHandler func(event string, payload any)

type feedEmitter struct {
	mu        sync.RWMutex
	listeners map[string][]FeedEventHandler
}

// On registers handler for event.
func (e *feedEmitter) On(event string, handler FeedEventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listeners == nil {
		e.listeners = make(map[string][]FeedEventHandler)
	}
	e.listeners[event] = append(e.listeners[event], handler)
}

func (e *feedEmitter) emit(event string, payload any) {
	e.mu.RLock()
	handlers := append([]FeedEventHandler(nil), e.listeners[event]...)
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() { recover() }() // swallow panics in user callbacks
			h(event, payload)
		}()
	}
}

// ============================================================================
// Feed
// ============================================================================

// Feed is the locally materialized window over the server's question list:
// an ordered prefix of the collection, the cursor marking its end, and
// whether the server has more.
//
// All mutation happens under one lock; page fetches run without it.
type Feed struct {
	feedEmitter
	pager    Pager
	pageSize int
	logger   *log.Logger

	mu         sync.Mutex
	items      []Question
	cursor     *Cursor
	hasMore    bool
	loading    bool
	refreshing bool
	epoch      uint64
}

// FeedSnapshot is a consistent copy of a Feed's state.
type FeedSnapshot struct {
	Items      []Question
	Cursor     *Cursor
	HasMore    bool
	Loading    bool
	Refreshing bool
}

// NewFeed creates an empty Feed backed by pager.
func NewFeed(pager Pager, opts *FeedOptions) *Feed {
	f := &Feed{pager: pager, pageSize: DefaultPageSize}
	var logger *log.Logger
	if opts != nil {
		if opts.PageSize > 0 {
			f.pageSize = opts.PageSize
		}
		logger = opts.Logger
	}
	if logger == nil {
		logger = discardLogger()
	}
	f.logger = logger.With("component", "feed")
	return f
}

// PageSize returns the number of questions requested per page.
func (f *Feed) PageSize() int { return f.pageSize }

// FetchFirstPage loads the first page and replaces the window with it.
// On failure the window, cursor and exhaustion flag are left untouched.
// Overlapping calls are not deduplicated.
func (f *Feed) FetchFirstPage(ctx context.Context) error {
	f.mu.Lock()
	f.refreshing = true
	f.mu.Unlock()

	page, err := f.pager.FetchPage(ctx, f.pageSize, nil)

	f.mu.Lock()
	f.refreshing = false
	if err != nil {
		f.mu.Unlock()
		f.logger.Warn("first page fetch failed", "err", err)
		f.emit(EventError, err)
		return fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	if page == nil {
		page = &Page{}
	}
	f.items = append([]Question(nil), page.Questions...)
	f.cursor = copyCursor(page.NextCursor)
	f.hasMore = page.HasMore
	f.epoch++
	snap := f.snapshotLocked()
	f.mu.Unlock()

	f.logger.Debug("first page loaded", "count", len(snap.Items), "has_more", snap.HasMore)
	f.emit(EventReplaced, snap)
	return nil
}

// LoadMore fetches the page after the cursor and appends it. It returns nil
// without fetching when the feed is exhausted, has no cursor, or a load is
// already in flight, so redundant calls are safe.
func (f *Feed) LoadMore(ctx context.Context) error {
	f.mu.Lock()
	if !f.hasMore || f.loading || f.cursor == nil {
		f.mu.Unlock()
		return nil
	}
	f.loading = true
	cursor := *f.cursor
	epoch := f.epoch
	f.mu.Unlock()

	page, err := f.pager.FetchPage(ctx, f.pageSize, &cursor)

	f.mu.Lock()
	f.loading = false
	if err != nil {
		f.mu.Unlock()
		f.logger.Warn("next page fetch failed", "cursor", cursor, "err", err)
		f.emit(EventError, err)
		return fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	if epoch != f.epoch {
		// The window was replaced while this page was in flight; the page
		// belongs to the old window.
		f.mu.Unlock()
		f.logger.Debug("discarding page from replaced window", "cursor", cursor)
		return nil
	}
	if page == nil {
		page = &Page{}
	}
	for _, q := range page.Questions {
		if f.indexLocked(q.ID) >= 0 {
			continue
		}
		f.items = append(f.items, q)
	}
	f.cursor = copyCursor(page.NextCursor)
	f.hasMore = page.HasMore
	snap := f.snapshotLocked()
	f.mu.Unlock()

	f.logger.Debug("page appended", "count", len(page.Questions), "total", len(snap.Items), "has_more", snap.HasMore)
	f.emit(EventAppended, snap)
	return nil
}

// Items returns a copy of the current window.
func (f *Feed) Items() []Question {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Question(nil), f.items...)
}

// Len returns the number of questions in the window.
func (f *Feed) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.items)
}

// Cursor returns the continuation cursor, or nil if there is none.
func (f *Feed) Cursor() *Cursor {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copyCursor(f.cursor)
}

// HasMore reports whether the server has questions past the window.
func (f *Feed) HasMore() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasMore
}

// Loading reports whether a LoadMore fetch is in flight.
func (f *Feed) Loading() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loading
}

// Snapshot returns a consistent copy of the feed state.
func (f *Feed) Snapshot() FeedSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

func (f *Feed) snapshotLocked() FeedSnapshot {
	return FeedSnapshot{
		Items:      append([]Question(nil), f.items...),
		Cursor:     copyCursor(f.cursor),
		HasMore:    f.hasMore,
		Loading:    f.loading,
		Refreshing: f.refreshing,
	}
}

func (f *Feed) indexLocked(id int) int {
	for i := range f.items {
		if f.items[i].ID == id {
			return i
		}
	}
	return -1
}

func copyCursor(c *Cursor) *Cursor {
	if c == nil {
		return nil
	}
	v := *c
	return &v
}
