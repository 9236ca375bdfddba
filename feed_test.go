package qaboard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFeedDefaults(t *testing.T) {
	f := NewFeed(newFakePager(), nil)
	assert.Equal(t, DefaultPageSize, f.PageSize())
	assert.Equal(t, 0, f.Len())
	assert.False(t, f.HasMore())
	assert.Nil(t, f.Cursor())
	assert.False(t, f.Loading())
}

func TestFetchFirstPageReplacesWindow(t *testing.T) {
	pager := newFakePager()
	pager.set("", &Page{
		Questions:  []Question{question(3, StatusEscalated, 2), question(2, StatusPending, 1), question(1, StatusPending, 0)},
		NextCursor: cursorOf("1"),
		HasMore:    true,
	})
	f := NewFeed(pager, &FeedOptions{PageSize: 3})

	require.NoError(t, f.FetchFirstPage(context.Background()))
	assert.Equal(t, []int{3, 2, 1}, ids(f.Items()))
	assert.Equal(t, Cursor("1"), *f.Cursor())
	assert.True(t, f.HasMore())

	require.Len(t, pager.calls, 1)
	assert.Equal(t, 3, pager.calls[0].pageSize)
	assert.Nil(t, pager.calls[0].cursor)

	// A refresh replaces rather than merges.
	pager.set("", &Page{Questions: []Question{question(9, StatusPending, 9)}, HasMore: false})
	require.NoError(t, f.FetchFirstPage(context.Background()))
	assert.Equal(t, []int{9}, ids(f.Items()))
	assert.Nil(t, f.Cursor())
	assert.False(t, f.HasMore())
}

func TestFetchFirstPageKeepsServerOrder(t *testing.T) {
	// The feed trusts the server's order and does not re-sort pages.
	pager := newFakePager()
	pager.set("", &Page{Questions: []Question{question(1, StatusAnswered, 0), question(2, StatusEscalated, 1)}})
	f := NewFeed(pager, nil)

	require.NoError(t, f.FetchFirstPage(context.Background()))
	assert.Equal(t, []int{1, 2}, ids(f.Items()))
}

func TestFetchFirstPageFailureLeavesStateUntouched(t *testing.T) {
	f, pager := loadedFeed(question(2, StatusPending, 1), question(1, StatusPending, 0))
	before := f.Snapshot()

	boom := errors.New("connection refused")
	pager.fail("", boom)

	err := f.FetchFirstPage(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, before, f.Snapshot())
}

func TestFetchFirstPageFailureOnEmptyFeed(t *testing.T) {
	pager := newFakePager()
	pager.fail("", errors.New("503"))
	f := NewFeed(pager, nil)

	require.ErrorIs(t, f.FetchFirstPage(context.Background()), ErrFetchFailed)
	assert.Equal(t, 0, f.Len())
	assert.False(t, f.HasMore())
	assert.Nil(t, f.Cursor())
}

func TestLoadMoreAppends(t *testing.T) {
	f, pager := loadedFeed(question(3, StatusPending, 3), question(2, StatusPending, 2))
	pager.set("c1", &Page{Questions: []Question{question(1, StatusPending, 1)}, NextCursor: cursorOf("c2"), HasMore: true})
	pager.set("c2", &Page{Questions: []Question{question(0, StatusAnswered, 0)}, HasMore: false})

	require.NoError(t, f.LoadMore(context.Background()))
	assert.Equal(t, []int{3, 2, 1}, ids(f.Items()))
	assert.Equal(t, Cursor("c2"), *f.Cursor())
	assert.True(t, f.HasMore())

	require.NoError(t, f.LoadMore(context.Background()))
	assert.Equal(t, []int{3, 2, 1, 0}, ids(f.Items()))
	assert.False(t, f.HasMore())

	assert.Equal(t, Cursor("c1"), *pager.calls[1].cursor)
	assert.Equal(t, Cursor("c2"), *pager.calls[2].cursor)
}

func TestLoadMoreGuards(t *testing.T) {
	t.Run("exhausted", func(t *testing.T) {
		pager := newFakePager()
		pager.set("", &Page{Questions: []Question{question(1, StatusPending, 0)}, NextCursor: cursorOf("x"), HasMore: false})
		f := NewFeed(pager, nil)
		require.NoError(t, f.FetchFirstPage(context.Background()))

		require.NoError(t, f.LoadMore(context.Background()))
		assert.Equal(t, 1, pager.callCount())
	})

	t.Run("no cursor", func(t *testing.T) {
		pager := newFakePager()
		pager.set("", &Page{Questions: []Question{question(1, StatusPending, 0)}, HasMore: true})
		f := NewFeed(pager, nil)
		require.NoError(t, f.FetchFirstPage(context.Background()))

		require.NoError(t, f.LoadMore(context.Background()))
		assert.Equal(t, 1, pager.callCount())
	})

	t.Run("before first page", func(t *testing.T) {
		pager := newFakePager()
		f := NewFeed(pager, nil)
		require.NoError(t, f.LoadMore(context.Background()))
		assert.Equal(t, 0, pager.callCount())
	})
}

func TestLoadMoreSingleFlight(t *testing.T) {
	f, pager := loadedFeed(question(2, StatusPending, 2))
	pager.set("c1", &Page{Questions: []Question{question(1, StatusPending, 1)}, HasMore: false})
	release := pager.block("c1")

	done := make(chan error, 1)
	go func() { done <- f.LoadMore(context.Background()) }()
	require.Eventually(t, f.Loading, time.Second, time.Millisecond)

	// Concurrent calls while one is in flight issue no request.
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.LoadMore(context.Background()))
		}()
	}
	wg.Wait()
	assert.Equal(t, 2, pager.callCount())

	release()
	require.NoError(t, <-done)
	assert.False(t, f.Loading())
	assert.Equal(t, []int{2, 1}, ids(f.Items()))
}

func TestLoadMoreFailureLeavesStateUntouched(t *testing.T) {
	f, pager := loadedFeed(question(2, StatusPending, 2))
	pager.fail("c1", errors.New("timeout"))
	before := f.Snapshot()

	err := f.LoadMore(context.Background())
	require.ErrorIs(t, err, ErrFetchFailed)
	assert.Equal(t, before, f.Snapshot())
	assert.False(t, f.Loading())

	// The same cursor is retried on the next call.
	pager.fail("c1", nil)
	pager.set("c1", &Page{Questions: []Question{question(1, StatusPending, 1)}})
	require.NoError(t, f.LoadMore(context.Background()))
	assert.Equal(t, []int{2, 1}, ids(f.Items()))
}

func TestLoadMoreSkipsQuestionsAlreadyInWindow(t *testing.T) {
	f, pager := loadedFeed(question(3, StatusPending, 3), question(2, StatusPending, 2))
	pager.set("c1", &Page{Questions: []Question{question(2, StatusPending, 2), question(1, StatusPending, 1)}})

	require.NoError(t, f.LoadMore(context.Background()))
	assert.Equal(t, []int{3, 2, 1}, ids(f.Items()))
}

func TestLoadMoreDiscardsPageAfterRefresh(t *testing.T) {
	f, pager := loadedFeed(question(2, StatusPending, 2))
	pager.set("c1", &Page{Questions: []Question{question(1, StatusPending, 1)}, NextCursor: cursorOf("c2"), HasMore: true})
	release := pager.block("c1")

	done := make(chan error, 1)
	go func() { done <- f.LoadMore(context.Background()) }()
	require.Eventually(t, f.Loading, time.Second, time.Millisecond)

	// Refresh the window while the next page is in flight.
	pager.set("", &Page{Questions: []Question{question(5, StatusEscalated, 5)}, NextCursor: cursorOf("r1"), HasMore: true})
	require.NoError(t, f.FetchFirstPage(context.Background()))

	release()
	require.NoError(t, <-done)

	assert.Equal(t, []int{5}, ids(f.Items()))
	assert.Equal(t, Cursor("r1"), *f.Cursor())
}

func TestFeedEvents(t *testing.T) {
	pager := newFakePager()
	pager.set("", &Page{Questions: []Question{question(2, StatusPending, 2)}, NextCursor: cursorOf("c1"), HasMore: true})
	pager.set("c1", &Page{Questions: []Question{question(1, StatusPending, 1)}})
	f := NewFeed(pager, nil)

	var mu sync.Mutex
	var events []string
	record := func(event string, payload any) {
		mu.Lock()
		events = append(events, event)
		mu.Unlock()
	}
	f.On(EventReplaced, record)
	f.On(EventAppended, func(event string, payload any) {
		snap, ok := payload.(FeedSnapshot)
		require.True(t, ok)
		assert.Len(t, snap.Items, 2)
		record(event, payload)
	})
	f.On(EventChanged, record)
	f.On(EventError, func(event string, payload any) {
		_, ok := payload.(error)
		assert.True(t, ok)
		record(event, payload)
	})
	// A panicking listener does not break the others.
	f.On(EventReplaced, func(string, any) { panic("listener bug") })

	require.NoError(t, f.FetchFirstPage(context.Background()))
	require.NoError(t, f.LoadMore(context.Background()))
	f.Apply(Change{Kind: ChangeDeleted, ID: 1})
	pager.fail("", errors.New("down"))
	require.Error(t, f.FetchFirstPage(context.Background()))

	assert.Equal(t, []string{EventReplaced, EventAppended, EventChanged, EventError}, events)
}

func TestSnapshotIsACopy(t *testing.T) {
	f, _ := loadedFeed(question(1, StatusPending, 0))
	snap := f.Snapshot()
	snap.Items[0].Message = "mutated"
	*snap.Cursor = "zzz"

	assert.Equal(t, "question 1", f.Items()[0].Message)
	assert.Equal(t, Cursor("c1"), *f.Cursor())
}
