package qaboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// ============================================================================
// Fake transport
// ============================================================================

type fakeConn struct {
	frames    chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) Read(ctx context.Context) ([]byte, error) {
	select {
	case f, ok := <-c.frames:
		if !ok {
			return nil, io.EOF
		}
		return f, nil
	case <-c.closed:
		return nil, errors.New("connection closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) send(frame string) {
	c.frames <- []byte(frame)
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

type fakeDialer struct {
	mu    sync.Mutex
	err   error
	dials int
	urls  []string
	conns chan *fakeConn
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{conns: make(chan *fakeConn, 16)}
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	d.dials++
	d.urls = append(d.urls, url)
	err := d.err
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	c := newFakeConn()
	d.conns <- c
	return c, nil
}

func (d *fakeDialer) setErr(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// next waits for the next successfully dialed connection.
func (d *fakeDialer) next() *fakeConn {
	select {
	case c := <-d.conns:
		return c
	case <-time.After(2 * time.Second):
		panic("timed out waiting for dial")
	}
}

// ============================================================================
// Fake timers
// ============================================================================

type fakeTimers struct {
	mu     sync.Mutex
	timers []*fakeTimer
	delays []time.Duration
}

type fakeTimer struct {
	owner   *fakeTimers
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.owner.mu.Lock()
	defer t.owner.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (ft *fakeTimers) afterFunc(d time.Duration, f func()) stopper {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	t := &fakeTimer{owner: ft, f: f}
	ft.timers = append(ft.timers, t)
	ft.delays = append(ft.delays, d)
	return t
}

func (ft *fakeTimers) pending() int {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	n := 0
	for _, t := range ft.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// fire runs every pending timer, as if its delay had elapsed.
func (ft *fakeTimers) fire() int {
	ft.mu.Lock()
	var due []*fakeTimer
	for _, t := range ft.timers {
		if !t.stopped && !t.fired {
			t.fired = true
			due = append(due, t)
		}
	}
	ft.mu.Unlock()
	for _, t := range due {
		t.f()
	}
	return len(due)
}

func newTestConnection(dialer Dialer, handler func(Message)) (*Connection, *fakeTimers) {
	timers := &fakeTimers{}
	c := NewConnection(&RealtimeConfig{URL: "ws://test/ws", Dialer: dialer}, handler)
	c.afterFunc = timers.afterFunc
	return c, timers
}

func newTestHub(dialer Dialer) (*Hub, *fakeTimers) {
	timers := &fakeTimers{}
	h := NewHub(&RealtimeConfig{URL: "ws://test/ws", Dialer: dialer})
	h.conn.afterFunc = timers.afterFunc
	return h, timers
}

// ============================================================================
// Fake pager
// ============================================================================

type pageCall struct {
	pageSize int
	cursor   *Cursor
}

// fakePager serves pages keyed by cursor ("" for the first page).
type fakePager struct {
	mu    sync.Mutex
	pages map[Cursor]*Page
	errs  map[Cursor]error
	calls []pageCall
	gates map[Cursor]chan struct{}
}

func newFakePager() *fakePager {
	return &fakePager{pages: map[Cursor]*Page{}, errs: map[Cursor]error{}, gates: map[Cursor]chan struct{}{}}
}

func (p *fakePager) FetchPage(ctx context.Context, pageSize int, cursor *Cursor) (*Page, error) {
	key := Cursor("")
	if cursor != nil {
		key = *cursor
	}
	p.mu.Lock()
	p.calls = append(p.calls, pageCall{pageSize: pageSize, cursor: copyCursor(cursor)})
	gate := p.gates[key]
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.errs[key]; err != nil {
		return nil, err
	}
	page, ok := p.pages[key]
	if !ok {
		return nil, fmt.Errorf("no page for cursor %q", key)
	}
	cp := *page
	cp.Questions = append([]Question(nil), page.Questions...)
	return &cp, nil
}

func (p *fakePager) set(cursor Cursor, page *Page) {
	p.mu.Lock()
	p.pages[cursor] = page
	p.mu.Unlock()
}

func (p *fakePager) fail(cursor Cursor, err error) {
	p.mu.Lock()
	p.errs[cursor] = err
	p.mu.Unlock()
}

// block makes fetches of cursor wait until the returned func is called.
func (p *fakePager) block(cursor Cursor) (release func()) {
	ch := make(chan struct{})
	p.mu.Lock()
	p.gates[cursor] = ch
	p.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.gates, cursor)
			p.mu.Unlock()
			close(ch)
		})
	}
}

func (p *fakePager) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// ============================================================================
// Fixtures
// ============================================================================

func cursorOf(s string) *Cursor {
	c := Cursor(s)
	return &c
}

func ptr[T any](v T) *T { return &v }

// ts returns an ISO-8601 timestamp n minutes after a fixed base.
func ts(n int) string {
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	return base.Add(time.Duration(n) * time.Minute).Format("2006-01-02T15:04:05")
}

func question(id int, status Status, minute int) Question {
	return Question{
		ID:        id,
		Message:   fmt.Sprintf("question %d", id),
		Status:    status,
		Timestamp: ts(minute),
	}
}

func ids(qs []Question) []int {
	out := make([]int, len(qs))
	for i, q := range qs {
		out[i] = q.ID
	}
	return out
}

func isSorted(qs []Question) bool {
	for i := 1; i < len(qs); i++ {
		if SortsBefore(qs[i], qs[i-1]) {
			return false
		}
	}
	return true
}

// loadedFeed returns a feed whose window holds qs, with more pages after "c1".
func loadedFeed(qs ...Question) (*Feed, *fakePager) {
	pager := newFakePager()
	pager.set("", &Page{Questions: qs, NextCursor: cursorOf("c1"), HasMore: true})
	f := NewFeed(pager, &FeedOptions{PageSize: 3})
	if err := f.FetchFirstPage(context.Background()); err != nil {
		panic(err)
	}
	return f, pager
}
