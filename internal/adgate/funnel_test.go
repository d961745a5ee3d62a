package adgate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *clock {
	return &clock{t: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) (string, error) {
	return "", errors.New("connection refused")
}
func (failingStore) Set(context.Context, string, string, time.Duration) error {
	return errors.New("connection refused")
}
func (failingStore) Del(context.Context, string) error { return errors.New("connection refused") }

func counter() (func(), func() int) {
	n := 0
	return func() { n++ }, func() int { return n }
}

func TestMultiClickTwoAdsThenContinue(t *testing.T) {
	store := NewMemoryStore()
	f := NewMultiClick(store, NewToggle(store, quietLogger()), "https://ads.example/x", quietLogger())
	clk := newClock()
	f.now = clk.now

	var ads []string
	f.OnAd = func(visitor, contentID, adURL string) { ads = append(ads, visitor+"/"+contentID+"@"+adURL) }
	next, nextCalls := counter()
	ctx := context.Background()

	o1 := f.Click(ctx, "v1", "603", next)
	clk.advance(5 * time.Second)
	o2 := f.Click(ctx, "v1", "603", next)
	clk.advance(5 * time.Second)
	o3 := f.Click(ctx, "v1", "603", next)

	assert.Equal(t, Outcome{Count: 1, AdOpened: true, AdURL: "https://ads.example/x"}, o1)
	assert.Equal(t, Outcome{Count: 2, AdOpened: true, AdURL: "https://ads.example/x"}, o2)
	assert.Equal(t, Outcome{Count: 3, Continued: true}, o3)
	assert.Equal(t, 1, nextCalls())
	assert.Len(t, ads, 2)
	assert.Equal(t, "v1/603@https://ads.example/x", ads[0])

	// later clicks keep continuing
	o4 := f.Click(ctx, "v1", "603", next)
	assert.True(t, o4.Continued)
	assert.False(t, o4.AdOpened)
	assert.Equal(t, 2, nextCalls())
}

func TestMultiClickResetsAfterWindow(t *testing.T) {
	store := NewMemoryStore()
	f := NewMultiClick(store, NewToggle(store, quietLogger()), "ad", quietLogger())
	clk := newClock()
	f.now = clk.now
	next, nextCalls := counter()
	ctx := context.Background()

	f.Click(ctx, "v1", "603", next)
	clk.advance(61 * time.Second)
	o := f.Click(ctx, "v1", "603", next)

	assert.Equal(t, 1, o.Count)
	assert.True(t, o.AdOpened)
	assert.Zero(t, nextCalls())

	// exactly at the window edge the sequence is still alive
	clk.advance(60 * time.Second)
	o = f.Click(ctx, "v1", "603", next)
	assert.Equal(t, 2, o.Count)
}

func TestFunnelStateIsPerVisitorAndContent(t *testing.T) {
	store := NewMemoryStore()
	f := NewMultiClick(store, NewToggle(store, quietLogger()), "ad", quietLogger())
	ctx := context.Background()

	f.Click(ctx, "v1", "603", nil)
	f.Click(ctx, "v1", "603", nil)

	assert.Equal(t, 1, f.Click(ctx, "v2", "603", nil).Count)
	assert.Equal(t, 1, f.Click(ctx, "v1", "604", nil).Count)
	assert.Equal(t, 3, f.Click(ctx, "v1", "603", nil).Count)

	raw, err := store.Get(ctx, Key(KindMulti, "v1", "603"))
	require.NoError(t, err)
	assert.Contains(t, raw, `"count":3`)
}

func TestSingleClickAdAndContinueOnce(t *testing.T) {
	store := NewMemoryStore()
	f := NewSingleClick(store, NewToggle(store, quietLogger()), "ad", quietLogger())
	clk := newClock()
	f.now = clk.now
	next, nextCalls := counter()
	ads := 0
	f.OnAd = func(string, string, string) { ads++ }
	ctx := context.Background()

	o1 := f.Click(ctx, "v1", "603", next)
	assert.True(t, o1.AdOpened)
	assert.True(t, o1.Continued)

	o2 := f.Click(ctx, "v1", "603", next)
	assert.False(t, o2.AdOpened)
	assert.True(t, o2.Continued)

	clk.advance(61 * time.Second)
	o3 := f.Click(ctx, "v1", "603", next)
	assert.True(t, o3.AdOpened)
	assert.Equal(t, 1, o3.Count)

	assert.Equal(t, 3, nextCalls())
	assert.Equal(t, 2, ads)
}

func TestDisabledToggleBypassesFunnel(t *testing.T) {
	store := NewMemoryStore()
	toggle := NewToggle(store, quietLogger())
	require.NoError(t, toggle.Set(context.Background(), false))
	before := store.Len()

	for _, f := range []*Funnel{
		NewMultiClick(store, toggle, "ad", quietLogger()),
		NewSingleClick(store, toggle, "ad", quietLogger()),
	} {
		next, nextCalls := counter()
		f.OnAd = func(string, string, string) { t.Fatal("ad opened while disabled") }
		for i := 0; i < 3; i++ {
			o := f.Click(context.Background(), "v1", "603", next)
			assert.True(t, o.Continued)
			assert.True(t, o.Bypassed)
			assert.Zero(t, o.Count)
		}
		assert.Equal(t, 3, nextCalls())
	}
	assert.Equal(t, before, store.Len(), "no click state written")
}

func TestStoreFailureFallsBackToMemory(t *testing.T) {
	f := NewMultiClick(failingStore{}, NewToggle(nil, quietLogger()), "ad", quietLogger())
	next, nextCalls := counter()
	ctx := context.Background()

	assert.True(t, f.Click(ctx, "v1", "603", next).AdOpened)
	assert.True(t, f.Click(ctx, "v1", "603", next).AdOpened)
	o := f.Click(ctx, "v1", "603", next)
	assert.True(t, o.Continued)
	assert.Equal(t, 3, o.Count)
	assert.Equal(t, 1, nextCalls())
}

func TestConcurrentClicksAreSerialized(t *testing.T) {
	store := NewMemoryStore()
	f := NewMultiClick(store, NewToggle(store, quietLogger()), "ad", quietLogger())

	var mu sync.Mutex
	counts := map[int]int{}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o := f.Click(context.Background(), "v1", "603", nil)
			mu.Lock()
			counts[o.Count]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, counts, 20)
	for n := 1; n <= 20; n++ {
		assert.Equal(t, 1, counts[n])
	}
	assert.Empty(t, f.locks.locks)
}
